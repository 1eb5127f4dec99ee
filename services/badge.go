package services

import (
	"log"
	"time"

	"we-planet-api/metrics"
	"we-planet-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeService struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewBadgeService(db *gorm.DB) *BadgeService {
	return &BadgeService{DB: db, now: time.Now}
}

// ComputeUserStats aggregates everything badge criteria can be measured against.
func (s *BadgeService) ComputeUserStats(tx *gorm.DB, userID string) (models.UserStats, error) {
	stats := models.UserStats{UserID: userID, CategoryCounts: map[models.ActivityCategory]int64{}}

	var user models.User
	if err := tx.Select("id", "total_points").Where("id = ?", userID).First(&user).Error; err != nil {
		return stats, notFoundOr(err, "user")
	}
	stats.TotalPoints = user.TotalPoints

	var rows []struct {
		Category models.ActivityCategory
		Count    int64
		CO2      float64
	}
	if err := tx.Model(&models.Activity{}).
		Select("category, COUNT(*) AS count, COALESCE(SUM(co2_reduction), 0) AS co2").
		Where("user_id = ?", userID).
		Group("category").
		Scan(&rows).Error; err != nil {
		return stats, Upstream("failed to aggregate activities", err)
	}
	for _, r := range rows {
		stats.CategoryCounts[r.Category] = r.Count
		stats.TotalActivities += r.Count
		stats.TotalCO2Saved += r.CO2
	}

	var dates []time.Time
	if err := tx.Model(&models.Activity{}).Where("user_id = ?", userID).
		Order("activity_date DESC").Limit(400).
		Pluck("activity_date", &dates).Error; err != nil {
		return stats, Upstream("failed to load activity dates", err)
	}
	stats.StreakDays = StreakDays(dates, s.now())

	if err := tx.Model(&models.Activity{}).
		Where("user_id = ? AND family_id IN (?)", userID,
			tx.Model(&models.FamilyMember{}).Select("family_id").Where("user_id = ?", userID)).
		Count(&stats.FamilyActivities).Error; err != nil {
		return stats, Upstream("failed to count family activities", err)
	}

	if err := tx.Model(&models.UserMission{}).
		Where("user_id = ? AND status = ?", userID, models.ParticipationCompleted).
		Count(&stats.MissionsCompleted).Error; err != nil {
		return stats, Upstream("failed to count missions", err)
	}
	return stats, nil
}

// EvaluateBadges awards every active badge whose criteria the user now meets.
// Badge point rewards can unlock further point badges, so evaluation repeats until
// a pass awards nothing. Returns the badges newly awarded.
func (s *BadgeService) EvaluateBadges(tx *gorm.DB, userID string, source models.AwardSource) ([]models.Badge, error) {
	stats, err := s.ComputeUserStats(tx, userID)
	if err != nil {
		return nil, err
	}

	var badges []models.Badge
	if err := tx.Where("is_active = ?", true).Order("created_at ASC").Find(&badges).Error; err != nil {
		return nil, Upstream("failed to load badges", err)
	}

	var held []string
	if err := tx.Model(&models.UserBadge{}).Where("user_id = ?", userID).Pluck("badge_id", &held).Error; err != nil {
		return nil, Upstream("failed to load awarded badges", err)
	}
	owned := make(map[string]bool, len(held))
	for _, id := range held {
		owned[id] = true
	}

	var awarded []models.Badge
	for {
		progressed := false
		for _, badge := range badges {
			if owned[badge.ID] || !badge.Criteria.SatisfiedBy(stats) {
				continue
			}
			created, err := s.awardBadge(tx, userID, &badge, source)
			if err != nil {
				return nil, err
			}
			owned[badge.ID] = true
			if created {
				awarded = append(awarded, badge)
				stats.TotalPoints += badge.PointsReward
				progressed = progressed || badge.PointsReward > 0
			}
		}
		if !progressed {
			return awarded, nil
		}
	}
}

// awardBadge inserts the award unless one already exists for (user, badge). The
// badge's point reward is credited only when this call created the row.
func (s *BadgeService) awardBadge(tx *gorm.DB, userID string, badge *models.Badge, source models.AwardSource) (bool, error) {
	award := models.UserBadge{UserID: userID, BadgeID: badge.ID, Source: source}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(&award)
	if res.Error != nil {
		return false, Upstream("failed to award badge", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	if err := creditPoints(tx, userID, badge.PointsReward); err != nil {
		return false, Upstream("failed to credit badge reward", err)
	}
	metrics.RecordBadgeAward(string(source))
	log.Printf("🎖️ [BADGE] %s awarded to %s (source=%s)", badge.Code, userID, source)
	return true, nil
}

// ListBadges returns active badges. Hidden badges are only listed for admins.
func (s *BadgeService) ListBadges(includeHidden bool) ([]models.Badge, error) {
	q := s.DB.Where("is_active = ?", true)
	if !includeHidden {
		q = q.Where("is_hidden = ?", false)
	}
	var badges []models.Badge
	if err := q.Order("category ASC, requirement_value ASC").Find(&badges).Error; err != nil {
		return nil, Upstream("failed to list badges", err)
	}
	return badges, nil
}

func (s *BadgeService) GetBadge(id string) (*models.Badge, error) {
	var badge models.Badge
	if err := s.DB.Where("id = ?", id).First(&badge).Error; err != nil {
		return nil, notFoundOr(err, "badge")
	}
	return &badge, nil
}

// UserBadges lists a user's awards, newest first, with the badge definitions loaded.
// A private profile's awards are only listed for its owner and admins.
func (s *BadgeService) UserBadges(viewer Identity, userID string) ([]models.UserBadge, error) {
	var user models.User
	if err := s.DB.Select("id", "is_public_profile").Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	if !user.IsPublicProfile && viewer.UserID != userID && !viewer.IsAdmin {
		return []models.UserBadge{}, nil
	}

	var awards []models.UserBadge
	if err := s.DB.Preload("Badge").Where("user_id = ?", userID).
		Order("awarded_at DESC").Find(&awards).Error; err != nil {
		return nil, Upstream("failed to list user badges", err)
	}
	return awards, nil
}

// AwardResult is the outcome of an explicit award request.
type AwardResult struct {
	Award   models.UserBadge `json:"award"`
	Created bool             `json:"created"`
}

// Award grants badgeID to targetUserID on behalf of actor. Admins award any user
// unconditionally. Other users can only claim a badge for themselves, and only when
// its criteria hold. Awarding an already held badge returns the existing award.
func (s *BadgeService) Award(actor Identity, badgeID, targetUserID string) (*AwardResult, error) {
	if targetUserID == "" {
		targetUserID = actor.UserID
	}
	if !actor.IsAdmin && targetUserID != actor.UserID {
		return nil, Forbidden("only admins can award badges to other users")
	}

	var result AwardResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var badge models.Badge
		if err := tx.Where("id = ? AND is_active = ?", badgeID, true).First(&badge).Error; err != nil {
			return notFoundOr(err, "badge")
		}

		var target models.User
		if err := tx.Select("id").Where("id = ?", targetUserID).First(&target).Error; err != nil {
			return notFoundOr(err, "user")
		}

		source := models.AwardSourceManual
		if !actor.IsAdmin {
			source = models.AwardSourceClaim
			stats, err := s.ComputeUserStats(tx, targetUserID)
			if err != nil {
				return err
			}
			if !badge.Criteria.SatisfiedBy(stats) {
				return ErrCriteriaNotMet.WithDetails(map[string]any{"badge_code": badge.Code})
			}
		}

		created, err := s.awardBadge(tx, targetUserID, &badge, source)
		if err != nil {
			return err
		}
		result.Created = created
		if created && badge.PointsReward > 0 {
			if _, err := s.EvaluateBadges(tx, targetUserID, models.AwardSourceReward); err != nil {
				return err
			}
		}

		if err := tx.Preload("Badge").
			Where("user_id = ? AND badge_id = ?", targetUserID, badge.ID).
			First(&result.Award).Error; err != nil {
			return Upstream("failed to load award", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
