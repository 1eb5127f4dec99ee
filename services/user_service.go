package services

import (
	"strings"
	"time"

	"we-planet-api/models"
	"we-planet-api/utils"

	"gorm.io/gorm"
)

type UserService struct {
	DB     *gorm.DB
	Hasher *utils.PasswordHasher
	Badges *BadgeService
	now    func() time.Time
}

func NewUserService(db *gorm.DB, hasher *utils.PasswordHasher, badges *BadgeService) *UserService {
	return &UserService{DB: db, Hasher: hasher, Badges: badges, now: time.Now}
}

func (s *UserService) Get(id string) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &user, nil
}

// Profile returns another user's public view. Inactive users are not visible.
func (s *UserService) Profile(viewer Identity, id string) (*models.PublicProfile, error) {
	user, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive && user.ID != viewer.UserID {
		return nil, NotFound("user")
	}
	p := user.Public(viewer.UserID)
	return &p, nil
}

type UpdateProfileInput struct {
	FullName        *string `json:"full_name" validate:"omitempty,max=100"`
	Bio             *string `json:"bio" validate:"omitempty,max=500"`
	Location        *string `json:"location" validate:"omitempty,max=100"`
	AvatarURL       *string `json:"avatar_url" validate:"omitempty,url,max=500"`
	IsPublicProfile *bool   `json:"is_public_profile"`
}

func (s *UserService) UpdateProfile(actor Identity, in UpdateProfileInput) (*models.User, error) {
	updates := map[string]any{}
	if in.FullName != nil {
		updates["full_name"] = utils.NormalizeText(*in.FullName)
	}
	if in.Bio != nil {
		updates["bio"] = strings.TrimSpace(*in.Bio)
	}
	if in.Location != nil {
		updates["location"] = utils.NormalizeText(*in.Location)
	}
	if in.AvatarURL != nil {
		updates["avatar_url"] = *in.AvatarURL
	}
	if in.IsPublicProfile != nil {
		updates["is_public_profile"] = *in.IsPublicProfile
	}
	if len(updates) > 0 {
		if err := s.DB.Model(&models.User{}).Where("id = ?", actor.UserID).Updates(updates).Error; err != nil {
			return nil, Upstream("failed to update profile", err)
		}
	}
	return s.Get(actor.UserID)
}

// SetAvatar points the caller's avatar at an already uploaded image URL.
func (s *UserService) SetAvatar(actor Identity, url string) (*models.User, error) {
	if err := s.DB.Model(&models.User{}).Where("id = ?", actor.UserID).Update("avatar_url", url).Error; err != nil {
		return nil, Upstream("failed to update avatar", err)
	}
	return s.Get(actor.UserID)
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
}

// ChangePassword replaces the password and revokes every refresh token of the user.
func (s *UserService) ChangePassword(actor Identity, in ChangePasswordInput) error {
	user, err := s.Get(actor.UserID)
	if err != nil {
		return err
	}
	if !s.Hasher.Verify(in.CurrentPassword, user.PasswordHash) {
		return Validation("invalid_password", "current password is incorrect")
	}
	if issues := utils.PasswordIssues(in.NewPassword); len(issues) > 0 {
		return Validation("validation_failed", "new password is too weak").WithDetails(issues)
	}
	if in.NewPassword == in.CurrentPassword {
		return Validation("validation_failed", "new password must differ from the current one")
	}

	hash, err := s.Hasher.Hash(in.NewPassword)
	if err != nil {
		return Upstream("failed to hash password", err)
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error; err != nil {
			return Upstream("failed to update password", err)
		}
		if err := tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", user.ID).
			Update("revoked_at", s.now().UTC()).Error; err != nil {
			return Upstream("failed to revoke sessions", err)
		}
		return nil
	})
}

// Deactivate marks the account inactive and revokes its refresh tokens. The guard
// rejects inactive users, so outstanding access tokens stop working immediately.
func (s *UserService) Deactivate(actor Identity) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", actor.UserID).Update("is_active", false).Error; err != nil {
			return Upstream("failed to deactivate user", err)
		}
		if err := tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked_at IS NULL", actor.UserID).
			Update("revoked_at", s.now().UTC()).Error; err != nil {
			return Upstream("failed to revoke sessions", err)
		}
		return nil
	})
}

// UserStatsView is the caller's own progress summary.
type UserStatsView struct {
	models.UserStats
	Level              int   `json:"level"`
	ExperiencePoints   int64 `json:"experience_points"`
	NextLevelAt        int64 `json:"next_level_at"`
	BadgesEarned       int64 `json:"badges_earned"`
	FamiliesJoined     int64 `json:"families_joined"`
	ActivitiesThisWeek int64 `json:"activities_this_week"`
}

func (s *UserService) Stats(actor Identity) (*UserStatsView, error) {
	user, err := s.Get(actor.UserID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Badges.ComputeUserStats(s.DB, user.ID)
	if err != nil {
		return nil, err
	}

	view := &UserStatsView{
		UserStats:        stats,
		Level:            user.Level,
		ExperiencePoints: user.ExperiencePoints,
		NextLevelAt:      int64(user.Level*user.Level) * XPPerLevelUnit,
	}
	if err := s.DB.Model(&models.UserBadge{}).Where("user_id = ?", user.ID).Count(&view.BadgesEarned).Error; err != nil {
		return nil, Upstream("failed to count badges", err)
	}
	if err := s.DB.Model(&models.FamilyMember{}).Where("user_id = ?", user.ID).Count(&view.FamiliesJoined).Error; err != nil {
		return nil, Upstream("failed to count families", err)
	}
	if err := s.DB.Model(&models.Activity{}).
		Where("user_id = ? AND activity_date >= ?", user.ID, weekStart(s.now())).
		Count(&view.ActivitiesThisWeek).Error; err != nil {
		return nil, Upstream("failed to count activities", err)
	}
	return view, nil
}

// RankingEntry is one row of the points leaderboard.
type RankingEntry struct {
	Rank    int                  `json:"rank"`
	Profile models.PublicProfile `json:"user"`
}

// Ranking lists active public profiles by total points. The viewer always appears
// in their own ranking even when their profile is private.
func (s *UserService) Ranking(viewer Identity, limit int) ([]RankingEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var users []models.User
	if err := s.DB.
		Where("is_active = ? AND (is_public_profile = ? OR id = ?)", true, true, viewer.UserID).
		Order("total_points DESC, created_at ASC").
		Limit(limit).
		Find(&users).Error; err != nil {
		return nil, Upstream("failed to load ranking", err)
	}

	entries := make([]RankingEntry, len(users))
	for i := range users {
		entries[i] = RankingEntry{Rank: i + 1, Profile: users[i].Public(viewer.UserID)}
	}
	return entries, nil
}

// Search matches active users by username or full name, case-insensitively.
func (s *UserService) Search(viewer Identity, query string, limit int) ([]models.PublicProfile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	db := s.DB.Model(&models.User{}).Where("is_active = ?", true).Limit(limit)
	if query = strings.TrimSpace(query); query != "" {
		term := "%" + strings.ToLower(query) + "%"
		db = db.Where("LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?", term, term)
	}

	var users []models.User
	if err := db.Order("username ASC").Find(&users).Error; err != nil {
		return nil, Upstream("search failed", err)
	}
	res := make([]models.PublicProfile, len(users))
	for i := range users {
		res[i] = users[i].Public(viewer.UserID)
	}
	return res, nil
}

// PeriodSummary counts activities and points in a time window.
type PeriodSummary struct {
	Activities int64 `json:"activities"`
	Points     int64 `json:"points"`
}

type DashboardSummary struct {
	User struct {
		Username        string `json:"username"`
		Level           int    `json:"level"`
		TotalPoints     int64  `json:"total_points"`
		TotalActivities int64  `json:"total_activities"`
		StreakDays      int    `json:"streak_days"`
	} `json:"user"`
	Today               PeriodSummary `json:"today"`
	Week                PeriodSummary `json:"week"`
	EnvironmentalImpact struct {
		TotalCO2Saved   float64 `json:"total_co2_saved"`
		EquivalentTrees int64   `json:"equivalent_trees"`
	} `json:"environmental_impact"`
	RecentBadges   []models.UserBadge `json:"recent_badges"`
	ActiveMissions int64              `json:"active_missions"`
}

// CO2PerTree is the kg of CO2 counted as one tree in the dashboard equivalent.
const CO2PerTree = 0.02

func (s *UserService) Dashboard(actor Identity) (*DashboardSummary, error) {
	user, err := s.Get(actor.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var summary DashboardSummary
	summary.User.Username = user.Username
	summary.User.Level = user.Level
	summary.User.TotalPoints = user.TotalPoints
	summary.User.TotalActivities = user.TotalActivities
	summary.User.StreakDays = user.StreakDays
	summary.EnvironmentalImpact.TotalCO2Saved = user.TotalCO2Saved
	summary.EnvironmentalImpact.EquivalentTrees = int64(user.TotalCO2Saved / CO2PerTree)

	if summary.Today, err = s.period(user.ID, truncateDay(now)); err != nil {
		return nil, err
	}
	if summary.Week, err = s.period(user.ID, weekStart(now)); err != nil {
		return nil, err
	}

	if err := s.DB.Preload("Badge").Where("user_id = ?", user.ID).
		Order("awarded_at DESC").Limit(3).Find(&summary.RecentBadges).Error; err != nil {
		return nil, Upstream("failed to load badges", err)
	}
	if err := s.DB.Model(&models.UserMission{}).
		Where("user_id = ? AND status = ?", user.ID, models.ParticipationJoined).
		Count(&summary.ActiveMissions).Error; err != nil {
		return nil, Upstream("failed to count missions", err)
	}
	return &summary, nil
}

func (s *UserService) period(userID string, since time.Time) (PeriodSummary, error) {
	var p PeriodSummary
	err := s.DB.Model(&models.Activity{}).
		Select("COUNT(*) AS activities, COALESCE(SUM(points), 0) AS points").
		Where("user_id = ? AND activity_date >= ?", userID, since).
		Scan(&p).Error
	if err != nil {
		return p, Upstream("failed to summarize activities", err)
	}
	return p, nil
}

// weekStart is Monday 00:00 UTC of the week containing t.
func weekStart(t time.Time) time.Time {
	day := truncateDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
