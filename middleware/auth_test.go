package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"we-planet-api/models"
	"we-planet-api/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	users map[string]*models.User
	err   error
	seen  []string
}

func (s *stubResolver) ResolveAccessToken(token string) (*models.User, error) {
	s.seen = append(s.seen, token)
	if s.err != nil {
		return nil, s.err
	}
	if u, ok := s.users[token]; ok {
		return u, nil
	}
	return nil, services.ErrTokenMalformed
}

func newGuardedApp(resolver TokenResolver) *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireAuth(resolver), func(c *fiber.Ctx) error {
		return c.JSON(IdentityFrom(c))
	})
	app.Get("/admin", RequireAuth(resolver), RequireAdmin(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestRequireAuth(t *testing.T) {
	resolver := &stubResolver{users: map[string]*models.User{
		"good-token":  {ID: "u-1", Username: "alice"},
		"admin-token": {ID: "u-2", Username: "root", IsAdmin: true},
	}}
	app := newGuardedApp(resolver)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"missing header", "", http.StatusUnauthorized, "unauthorized"},
		{"basic scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, "unauthorized"},
		{"bearer without token", "Bearer", http.StatusUnauthorized, "unauthorized"},
		{"garbled token", "Bearer garbage", http.StatusUnauthorized, "invalid_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decode(t, resp)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer good-token")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "u-1", body["user_id"])
	assert.Equal(t, "alice", body["username"])
	assert.Contains(t, resolver.seen, "good-token")
}

func TestRequireAdmin(t *testing.T) {
	resolver := &stubResolver{users: map[string]*models.User{
		"good-token":  {ID: "u-1", Username: "alice"},
		"admin-token": {ID: "u-2", Username: "root", IsAdmin: true},
	}}
	app := newGuardedApp(resolver)

	for token, want := range map[string]int{
		"good-token":  http.StatusForbidden,
		"admin-token": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, token)
	}
}

func TestRequireAuth_UpstreamFailure(t *testing.T) {
	app := newGuardedApp(&stubResolver{err: services.Upstream("failed to load user", errors.New("db down"))})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream_error", decode(t, resp)["error"])
}
