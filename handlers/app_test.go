package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"we-planet-api/config"
	"we-planet-api/database"
	"we-planet-api/models"
	"we-planet-api/services"
	"we-planet-api/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	app *fiber.App
	db  *gorm.DB
}

func newTestServer(t *testing.T, configure ...func(*AppOptions)) *testServer {
	t.Helper()
	db, err := database.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := utils.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	hasher := utils.NewPasswordHasher(4)
	tokens := services.NewTokenService(services.TokenConfig{
		Secret: "handler-test-secret", Issuer: "we-planet-test",
		AccessTTL: 30 * time.Minute, RefreshTTL: 24 * time.Hour,
	})
	badges := services.NewBadgeService(db)
	uploads := services.NewUploadService(db, store, 1024*1024, []string{"image/png", "image/jpeg"})
	svc := Services{
		DB:         db,
		Auth:       services.NewAuthService(db, tokens, hasher, config.RefreshPolicySingle),
		Users:      services.NewUserService(db, hasher, badges),
		Families:   services.NewFamilyService(db),
		Activities: services.NewActivityService(db, badges, uploads),
		Badges:     badges,
		Missions:   services.NewMissionService(db, badges),
		Uploads:    uploads,
	}
	opts := AppOptions{AllowedOrigins: []string{"*"}, BodyLimit: 4 * 1024 * 1024}
	for _, fn := range configure {
		fn(&opts)
	}
	app := NewApp(svc, opts)
	return &testServer{app: app, db: db}
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details map[string]any  `json:"details"`
}

func (s *testServer) do(t *testing.T, req *http.Request, token string) (int, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) json(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.do(t, req, token)
}

func decodeData(t *testing.T, env envelope, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

// register creates a user through the API and returns its access token and id.
func (s *testServer) register(t *testing.T, username string) (string, string) {
	t.Helper()
	status, env := s.json(t, http.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"email": username + "@example.com", "username": username, "password": "Secret123",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var pair services.TokenPair
	decodeData(t, env, &pair)
	return pair.AccessToken, pair.User.ID
}

func (s *testServer) createFamily(t *testing.T, token, name string) services.FamilyDetail {
	t.Helper()
	status, env := s.json(t, http.MethodPost, "/api/v1/families", token, fiber.Map{"name": name})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var family services.FamilyDetail
	decodeData(t, env, &family)
	return family
}

func TestScenario_BadgeAwardedOnceOnRetry(t *testing.T) {
	s := newTestServer(t)
	require.NoError(t, s.db.Create(&models.Badge{
		Code: "POINTS_100", Name: "Green Sprout", Category: "beginner", IsActive: true,
		Criteria: models.Criteria{Type: models.RequirementPointsTotal, Threshold: 100},
	}).Error)

	_, userID := s.register(t, "alice")

	status, env := s.json(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"identifier": "alice", "password": "Secret123",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", env.Status)
	var pair services.TokenPair
	decodeData(t, env, &pair)
	token := pair.AccessToken

	family := s.createFamily(t, token, "Green House")
	assert.Equal(t, models.FamilyRoleOwner, family.CurrentUserRole)

	activity := fiber.Map{"family_id": family.ID, "title": "Cleanup", "category": "recycle", "points": 100}

	status, env = s.json(t, http.MethodPost, "/api/v1/activities", token, activity)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var first services.ActivityResult
	decodeData(t, env, &first)
	require.Len(t, first.AwardedBadges, 1)
	assert.Equal(t, "POINTS_100", first.AwardedBadges[0].Code)

	status, env = s.json(t, http.MethodPost, "/api/v1/activities", token, activity)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var second services.ActivityResult
	decodeData(t, env, &second)
	assert.Empty(t, second.AwardedBadges)

	status, env = s.json(t, http.MethodGet, "/api/v1/badges/user/"+userID, token, nil)
	require.Equal(t, http.StatusOK, status)
	var awards []models.UserBadge
	decodeData(t, env, &awards)
	assert.Len(t, awards, 1)

	status, env = s.json(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	var me models.User
	decodeData(t, env, &me)
	assert.EqualValues(t, 200, me.TotalPoints)
}

func TestGuard_RejectsBadTokens(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "alice")

	status, env := s.json(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{
		"identifier": "alice@example.com", "password": "Secret123",
	})
	require.Equal(t, http.StatusOK, status)
	var pair services.TokenPair
	decodeData(t, env, &pair)

	for name, tok := range map[string]string{
		"missing":       "",
		"garbled":       "not-a-token",
		"refresh-typed": pair.RefreshToken,
	} {
		t.Run(name, func(t *testing.T) {
			status, env := s.json(t, http.MethodGet, "/api/v1/auth/me", tok, nil)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Equal(t, "error", env.Status)
		})
	}

	status, _ = s.json(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRefreshAndLogout(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "alice")

	status, env := s.json(t, http.MethodPost, "/api/v1/auth/login", "", fiber.Map{"identifier": "alice", "password": "Secret123"})
	require.Equal(t, http.StatusOK, status)
	var pair services.TokenPair
	decodeData(t, env, &pair)

	status, env = s.json(t, http.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	var access services.AccessTokenResponse
	decodeData(t, env, &access)
	assert.NotEmpty(t, access.AccessToken)
	assert.Equal(t, "bearer", access.TokenType)

	status, _ = s.json(t, http.MethodPost, "/api/v1/auth/logout", access.AccessToken, fiber.Map{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, status)

	status, env = s.json(t, http.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_token", env.Error)
}

func TestErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "alice")

	t.Run("duplicate registration", func(t *testing.T) {
		status, env := s.json(t, http.MethodPost, "/api/v1/auth/register", "", fiber.Map{
			"email": "alice@example.com", "username": "alice2", "password": "Secret123",
		})
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "email_taken", env.Error)
	})

	t.Run("field validation", func(t *testing.T) {
		status, env := s.json(t, http.MethodPost, "/api/v1/auth/register", "", fiber.Map{
			"email": "not-an-email", "username": "bob", "password": "Secret123",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, "validation_failed", env.Error)
		assert.Contains(t, env.Details, "email")
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/families", bytes.NewBufferString("{nope"))
		req.Header.Set("Content-Type", "application/json")
		status, env := s.do(t, req, token)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "invalid_json", env.Error)
	})

	t.Run("not found", func(t *testing.T) {
		status, env := s.json(t, http.MethodGet, "/api/v1/families/"+uuid.NewString(), token, nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "not_found", env.Error)
	})

	t.Run("unknown route", func(t *testing.T) {
		status, env := s.json(t, http.MethodGet, "/nowhere", "", nil)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "error", env.Status)
	})

	t.Run("check username", func(t *testing.T) {
		status, env := s.json(t, http.MethodGet, "/api/v1/auth/check-username/alice", "", nil)
		require.Equal(t, http.StatusOK, status)
		var res map[string]any
		decodeData(t, env, &res)
		assert.Equal(t, false, res["available"])
	})
}

func TestFamilyDelete_OwnerOnly(t *testing.T) {
	s := newTestServer(t)
	ownerToken, _ := s.register(t, "alice")
	memberToken, _ := s.register(t, "bob")
	family := s.createFamily(t, ownerToken, "Green House")

	status, env := s.json(t, http.MethodPost, "/api/v1/families/"+family.ID+"/join", memberToken,
		fiber.Map{"invite_code": family.InviteCode})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = s.json(t, http.MethodDelete, "/api/v1/families/"+family.ID, memberToken, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", env.Error)

	status, _ = s.json(t, http.MethodDelete, "/api/v1/families/"+family.ID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.json(t, http.MethodGet, "/api/v1/families/"+family.ID, ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMissionComplete_Expired(t *testing.T) {
	s := newTestServer(t)
	token, userID := s.register(t, "alice")

	now := time.Now().UTC()
	mission := models.Mission{
		Code: "OPEN", Title: "Open", MissionType: models.MissionWeekly, IsActive: true,
		StartDate: now.Add(-2 * time.Hour), EndDate: now.Add(-time.Hour), RewardPoints: 50,
	}
	require.NoError(t, s.db.Create(&mission).Error)
	require.NoError(t, s.db.Create(&models.UserMission{
		UserID: userID, MissionID: mission.ID, Status: models.ParticipationJoined,
	}).Error)

	status, env := s.json(t, http.MethodPost, "/api/v1/missions/"+mission.ID+"/complete", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "mission_expired", env.Error)

	open := models.Mission{
		Code: "NOW", Title: "Now", MissionType: models.MissionDaily, IsActive: true,
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour),
	}
	require.NoError(t, s.db.Create(&open).Error)
	status, env = s.json(t, http.MethodPost, "/api/v1/missions/"+open.ID+"/complete", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "not_participating", env.Error)

	status, env = s.json(t, http.MethodPost, "/api/v1/missions/"+uuid.NewString()+"/complete", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", env.Error)

	status, _ = s.json(t, http.MethodPost, "/api/v1/missions", token, fiber.Map{"code": "X"})
	assert.Equal(t, http.StatusForbidden, status)
}

func testPNG() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 32)...)
}

// multipartImage builds a request whose "file" field holds content.
func multipartImage(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "alice")
	png := testPNG()

	status, env := s.do(t, multipartImage(t, "/api/v1/upload/image", "garden.png", png), token)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var image models.Image
	decodeData(t, env, &image)
	assert.Equal(t, "image/png", image.ContentType)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/upload/image/"+image.Filename, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, png, got)

	status, env = s.json(t, http.MethodPost, "/api/v1/upload/image", token, fiber.Map{})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "validation_failed", env.Error)
}

func TestUploadAvatar(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "alice")

	status, env := s.do(t, multipartImage(t, "/api/v1/upload/avatar", "me.png", testPNG()), token)
	require.Equal(t, http.StatusCreated, status, env.Error)
	var out struct {
		Image     models.Image `json:"image"`
		AvatarURL string       `json:"avatar_url"`
	}
	decodeData(t, env, &out)
	assert.NotEmpty(t, out.AvatarURL)
	assert.Equal(t, out.Image.URL, out.AvatarURL)

	status, env = s.json(t, http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	var me models.User
	decodeData(t, env, &me)
	require.NotNil(t, me.AvatarURL)
	assert.Equal(t, out.AvatarURL, *me.AvatarURL)

	status, env = s.do(t, multipartImage(t, "/api/v1/upload/avatar", "notes.txt", []byte("just some text")), token)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "error", env.Status)
}

func TestDeactivateAndReactivate(t *testing.T) {
	s := newTestServer(t)
	token, _ := s.register(t, "alice")
	creds := fiber.Map{"identifier": "alice", "password": "Secret123"}

	status, env := s.json(t, http.MethodPost, "/api/v1/users/me/deactivate", token, nil)
	require.Equal(t, http.StatusOK, status, env.Error)

	status, _ = s.json(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.json(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "inactive_user", env.Error)

	status, env = s.json(t, http.MethodPost, "/api/v1/auth/reactivate", "", fiber.Map{"identifier": "alice", "password": "Wrong1234"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", env.Error)

	status, env = s.json(t, http.MethodPost, "/api/v1/auth/reactivate", "", creds)
	require.Equal(t, http.StatusOK, status, env.Error)
	var pair services.TokenPair
	decodeData(t, env, &pair)
	status, _ = s.json(t, http.MethodGet, "/api/v1/auth/me", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = s.json(t, http.MethodPost, "/api/v1/auth/reactivate", "", creds)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "already_active", env.Error)

	status, _ = s.json(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	assert.Equal(t, http.StatusOK, status)
}

func TestAuthRateLimit(t *testing.T) {
	s := newTestServer(t, func(o *AppOptions) { o.RateLimitPerMinute = 1 })
	creds := fiber.Map{"identifier": "nobody", "password": "Secret123"}

	status, env := s.json(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", env.Error)

	status, env = s.json(t, http.MethodPost, "/api/v1/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "rate_limited", env.Error)

	status, _ = s.json(t, http.MethodGet, "/api/v1/auth/check-username/alice", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
