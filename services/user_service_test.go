package services

import (
	"testing"

	"we-planet-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_ProfilePrivacy(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")

	_, err := f.users.UpdateProfile(alice, UpdateProfileInput{
		FullName:        strPtr("  Alice Green "),
		Bio:             strPtr("Composting enthusiast"),
		IsPublicProfile: func() *bool { v := false; return &v }(),
	})
	require.NoError(t, err)

	own, err := f.users.Profile(alice, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Green", own.FullName)
	assert.Equal(t, "Composting enthusiast", own.Bio)

	seen, err := f.users.Profile(bob, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, seen.FullName)
	assert.Equal(t, "This profile is private", seen.Bio)
	assert.Equal(t, "alice", seen.Username)

	_, err = f.users.Profile(bob, "missing")
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, KindNotFound, appErr.Kind)
}

func TestUser_ChangePassword(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	pair, err := f.auth.Login(LoginInput{Identifier: "alice", Password: "Secret123"})
	require.NoError(t, err)

	err = f.users.ChangePassword(alice, ChangePasswordInput{CurrentPassword: "wrong", NewPassword: "Greener456"})
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "invalid_password", appErr.Code)

	err = f.users.ChangePassword(alice, ChangePasswordInput{CurrentPassword: "Secret123", NewPassword: "weak"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "validation_failed", appErr.Code)

	require.NoError(t, f.users.ChangePassword(alice, ChangePasswordInput{CurrentPassword: "Secret123", NewPassword: "Greener456"}))

	_, err = f.auth.Refresh(pair.RefreshToken)
	assert.Error(t, err)
	_, err = f.auth.Login(LoginInput{Identifier: "alice", Password: "Secret123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.auth.Login(LoginInput{Identifier: "alice", Password: "Greener456"})
	assert.NoError(t, err)
}

func TestUser_Deactivate(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	pair, err := f.auth.Login(LoginInput{Identifier: "alice", Password: "Secret123"})
	require.NoError(t, err)

	require.NoError(t, f.users.Deactivate(alice))

	_, err = f.auth.ResolveAccessToken(pair.AccessToken)
	assert.Error(t, err)
	_, err = f.auth.Login(LoginInput{Identifier: "alice", Password: "Secret123"})
	assert.Error(t, err)

	_, err = f.users.Profile(f.createUser(t, "bob"), alice.UserID)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, KindNotFound, appErr.Kind)
}

func TestUser_SetAvatar(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")

	user, err := f.users.SetAvatar(alice, "/uploads/images/avatar.png")
	require.NoError(t, err)
	require.NotNil(t, user.AvatarURL)
	assert.Equal(t, "/uploads/images/avatar.png", *user.AvatarURL)
}

func TestUser_Stats(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	family := f.createFamily(t, alice, "Green House")
	f.createBadge(t, "FIRST_STEP", models.Criteria{Type: models.RequirementActivityCount, Threshold: 1}, 10)

	_, err := f.activities.Create(alice, CreateActivityInput{
		FamilyID: family.ID, Title: "x", Category: models.CategoryRecycle, Points: int64Ptr(90),
	})
	require.NoError(t, err)

	stats, err := f.users.Stats(alice)
	require.NoError(t, err)
	assert.EqualValues(t, 100, stats.TotalPoints)
	assert.EqualValues(t, 100, stats.ExperiencePoints)
	assert.Equal(t, 2, stats.Level)
	assert.EqualValues(t, 400, stats.NextLevelAt)
	assert.EqualValues(t, 1, stats.BadgesEarned)
	assert.EqualValues(t, 1, stats.FamiliesJoined)
	assert.EqualValues(t, 1, stats.ActivitiesThisWeek)
	assert.EqualValues(t, 1, stats.TotalActivities)
}

func TestUser_RankingAndSearch(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	bob := f.createUser(t, "bob")
	carol := f.createUser(t, "carol")
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", bob.UserID).Update("total_points", 300).Error)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", alice.UserID).Update("total_points", 100).Error)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", carol.UserID).Updates(map[string]any{
		"total_points": 500, "is_public_profile": false,
	}).Error)

	ranking, err := f.users.Ranking(alice, 10)
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "bob", ranking[0].Profile.Username)
	assert.Equal(t, 1, ranking[0].Rank)
	assert.Equal(t, "alice", ranking[1].Profile.Username)

	ranking, err = f.users.Ranking(carol, 10)
	require.NoError(t, err)
	require.Len(t, ranking, 3)
	assert.Equal(t, "carol", ranking[0].Profile.Username)

	found, err := f.users.Search(alice, "BO", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "bob", found[0].Username)
}

func TestUser_Dashboard(t *testing.T) {
	f := newFixture(t)
	alice := f.createUser(t, "alice")
	family := f.createFamily(t, alice, "Green House")
	f.createBadge(t, "FIRST_STEP", models.Criteria{Type: models.RequirementActivityCount, Threshold: 1}, 0)

	yesterday := testNow.AddDate(0, 0, -1)
	for _, in := range []CreateActivityInput{
		{Category: models.CategoryRecycle, Points: int64Ptr(10), CO2Reduction: 0.5},
		{Category: models.CategoryRecycle, Points: int64Ptr(20), CO2Reduction: 0.5, ActivityDate: &yesterday},
	} {
		in.FamilyID, in.Title = family.ID, "x"
		_, err := f.activities.Create(alice, in)
		require.NoError(t, err)
	}
	mission := f.openMission(t, "WEEKLY", 0)
	_, err := f.missions.Participate(alice, mission.ID)
	require.NoError(t, err)

	summary, err := f.users.Dashboard(alice)
	require.NoError(t, err)
	assert.Equal(t, "alice", summary.User.Username)
	assert.EqualValues(t, 30, summary.User.TotalPoints)
	assert.Equal(t, 2, summary.User.StreakDays)
	assert.Equal(t, PeriodSummary{Activities: 1, Points: 10}, summary.Today)
	assert.Equal(t, PeriodSummary{Activities: 2, Points: 30}, summary.Week)
	assert.InDelta(t, 1.0, summary.EnvironmentalImpact.TotalCO2Saved, 0.0001)
	assert.InDelta(t, 50, summary.EnvironmentalImpact.EquivalentTrees, 1)
	require.Len(t, summary.RecentBadges, 1)
	require.NotNil(t, summary.RecentBadges[0].Badge)
	assert.Equal(t, "FIRST_STEP", summary.RecentBadges[0].Badge.Code)
	assert.EqualValues(t, 1, summary.ActiveMissions)
}
