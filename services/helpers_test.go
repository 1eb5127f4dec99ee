package services

import (
	"fmt"
	"testing"
	"time"

	"we-planet-api/config"
	"we-planet-api/database"
	"we-planet-api/models"
	"we-planet-api/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	url := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(url, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type fixture struct {
	db         *gorm.DB
	hasher     *utils.PasswordHasher
	tokens     *TokenService
	auth       *AuthService
	badges     *BadgeService
	users      *UserService
	families   *FamilyService
	activities *ActivityService
	missions   *MissionService
	uploads    *UploadService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	clock := func() time.Time { return testNow }

	store, err := utils.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	f := &fixture{db: db, hasher: utils.NewPasswordHasher(4)}
	f.tokens = newTestTokenService().WithClock(clock)
	f.auth = NewAuthService(db, f.tokens, f.hasher, config.RefreshPolicySingle)
	f.badges = NewBadgeService(db)
	f.users = NewUserService(db, f.hasher, f.badges)
	f.families = NewFamilyService(db)
	f.uploads = NewUploadService(db, store, 1024*1024, []string{"image/jpeg", "image/png", "image/gif", "image/webp"})
	f.activities = NewActivityService(db, f.badges, f.uploads)
	f.missions = NewMissionService(db, f.badges)

	f.auth.now = clock
	f.badges.now = clock
	f.users.now = clock
	f.families.now = clock
	f.activities.now = clock
	f.missions.now = clock
	f.uploads.now = clock
	return f
}

// createUser inserts an active user with password "Secret123".
func (f *fixture) createUser(t *testing.T, username string) Identity {
	t.Helper()
	hash, err := f.hasher.Hash("Secret123")
	require.NoError(t, err)
	user := models.User{
		Email:           username + "@example.com",
		Username:        username,
		PasswordHash:    hash,
		IsActive:        true,
		IsPublicProfile: true,
		Level:           1,
	}
	require.NoError(t, f.db.Create(&user).Error)
	return Identity{UserID: user.ID, Username: user.Username}
}

func (f *fixture) createBadge(t *testing.T, code string, criteria models.Criteria, reward int64) models.Badge {
	t.Helper()
	badge := models.Badge{
		Code:         code,
		Name:         code,
		Category:     "beginner",
		Criteria:     criteria,
		PointsReward: reward,
		IsActive:     true,
	}
	require.NoError(t, f.db.Create(&badge).Error)
	return badge
}

func (f *fixture) createFamily(t *testing.T, owner Identity, name string) *FamilyDetail {
	t.Helper()
	family, err := f.families.Create(owner, CreateFamilyInput{Name: name})
	require.NoError(t, err)
	return family
}

func (f *fixture) user(t *testing.T, id string) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, f.db.Where("id = ?", id).First(&user).Error)
	return user
}

func (f *fixture) countAwards(t *testing.T, userID, badgeID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).Count(&n).Error)
	return n
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }
