package services

import (
	"context"
	"log"
	"time"

	"we-planet-api/models"
	"we-planet-api/utils"

	"gorm.io/gorm"
)

type ActivityService struct {
	DB      *gorm.DB
	Badges  *BadgeService
	Uploads *UploadService
	now     func() time.Time
}

func NewActivityService(db *gorm.DB, badges *BadgeService, uploads *UploadService) *ActivityService {
	return &ActivityService{DB: db, Badges: badges, Uploads: uploads, now: time.Now}
}

type CreateActivityInput struct {
	FamilyID     string                  `json:"family_id" validate:"required"`
	Title        string                  `json:"title" validate:"required,min=1,max=200"`
	Description  string                  `json:"description" validate:"max=1000"`
	Category     models.ActivityCategory `json:"category" validate:"required"`
	Points       *int64                  `json:"points" validate:"omitempty,min=0,max=10000"`
	CO2Reduction float64                 `json:"co2_reduction" validate:"min=0,max=10000"`
	WaterSaved   float64                 `json:"water_saved" validate:"min=0"`
	EnergySaved  float64                 `json:"energy_saved" validate:"min=0"`
	LocationName string                  `json:"location_name" validate:"max=200"`
	ActivityDate *time.Time              `json:"activity_date"`
}

type UpdateActivityInput struct {
	Title        *string                  `json:"title" validate:"omitempty,min=1,max=200"`
	Description  *string                  `json:"description" validate:"omitempty,max=1000"`
	Category     *models.ActivityCategory `json:"category"`
	Points       *int64                   `json:"points" validate:"omitempty,min=0,max=10000"`
	CO2Reduction *float64                 `json:"co2_reduction" validate:"omitempty,min=0,max=10000"`
	WaterSaved   *float64                 `json:"water_saved" validate:"omitempty,min=0"`
	EnergySaved  *float64                 `json:"energy_saved" validate:"omitempty,min=0"`
	LocationName *string                  `json:"location_name" validate:"omitempty,max=200"`
	ActivityDate *time.Time               `json:"activity_date"`
}

type ActivityFilter struct {
	FamilyID string
	Category models.ActivityCategory
	Page     int
	Size     int
}

// ActivityResult is a saved activity plus the badges the save unlocked.
type ActivityResult struct {
	Activity      models.Activity `json:"activity"`
	AwardedBadges []models.Badge  `json:"awarded_badges"`
}

// maxFutureSkew bounds how far ahead of the server clock an activity date may be.
const maxFutureSkew = 24 * time.Hour

func (s *ActivityService) checkDate(d time.Time) error {
	if d.After(s.now().Add(maxFutureSkew)) {
		return Validation("validation_failed", "activity_date cannot be in the future")
	}
	return nil
}

// Create logs an activity into a family the caller belongs to, updates user, family
// and member counters, and runs badge evaluation, all in one transaction.
func (s *ActivityService) Create(actor Identity, in CreateActivityInput) (*ActivityResult, error) {
	if !in.Category.Valid() {
		return nil, Validation("validation_failed", "unknown activity category").
			WithDetails(map[string]any{"allowed": models.ActivityCategories})
	}
	date := s.now().UTC()
	if in.ActivityDate != nil {
		if err := s.checkDate(*in.ActivityDate); err != nil {
			return nil, err
		}
		date = in.ActivityDate.UTC()
	}
	points := CalculatePoints(in.Category, in.CO2Reduction)
	if in.Points != nil && *in.Points > 0 {
		points = *in.Points
	}

	var result ActivityResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		member, err := membership(tx, in.FamilyID, actor.UserID)
		if err != nil {
			return err
		}

		activity := models.Activity{
			UserID:       actor.UserID,
			FamilyID:     in.FamilyID,
			Title:        utils.NormalizeText(in.Title),
			Description:  in.Description,
			Category:     in.Category,
			Points:       points,
			CO2Reduction: in.CO2Reduction,
			WaterSaved:   in.WaterSaved,
			EnergySaved:  in.EnergySaved,
			LocationName: in.LocationName,
			ActivityDate: date,
		}
		if err := tx.Create(&activity).Error; err != nil {
			return Upstream("failed to create activity", err)
		}

		if err := s.applyCounters(tx, &activity, member.ID, points, in.CO2Reduction, 1); err != nil {
			return err
		}
		if err := refreshStreak(tx, actor.UserID, s.now()); err != nil {
			return Upstream("failed to update streak", err)
		}

		awarded, err := s.Badges.EvaluateBadges(tx, actor.UserID, models.AwardSourceActivity)
		if err != nil {
			return err
		}
		result = ActivityResult{Activity: activity, AwardedBadges: awarded}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AwardedBadges == nil {
		result.AwardedBadges = []models.Badge{}
	}
	log.Printf("🌱 [ACTIVITY] %s logged %q (+%d pts, %d badge(s))",
		actor.Username, result.Activity.Title, points, len(result.AwardedBadges))
	return &result, nil
}

// applyCounters moves user, family and member counters by the given deltas.
// memberID may be empty when the author has since left the family.
func (s *ActivityService) applyCounters(tx *gorm.DB, a *models.Activity, memberID string, points int64, co2 float64, count int64) error {
	if err := tx.Model(&models.User{}).Where("id = ?", a.UserID).Updates(map[string]any{
		"total_activities": gorm.Expr("total_activities + ?", count),
		"total_co2_saved":  gorm.Expr("total_co2_saved + ?", co2),
	}).Error; err != nil {
		return Upstream("failed to update user totals", err)
	}
	if err := creditPoints(tx, a.UserID, points); err != nil {
		return Upstream("failed to credit points", err)
	}

	if err := tx.Model(&models.Family{}).Where("id = ?", a.FamilyID).Updates(map[string]any{
		"total_points":     gorm.Expr("total_points + ?", points),
		"total_activities": gorm.Expr("total_activities + ?", count),
	}).Error; err != nil {
		return Upstream("failed to update family totals", err)
	}

	if memberID == "" {
		return nil
	}
	updates := map[string]any{
		"points_contributed": gorm.Expr("points_contributed + ?", points),
		"activities_count":   gorm.Expr("activities_count + ?", count),
	}
	if count > 0 {
		updates["last_activity_at"] = s.now().UTC()
	}
	if err := tx.Model(&models.FamilyMember{}).Where("id = ?", memberID).Updates(updates).Error; err != nil {
		return Upstream("failed to update member totals", err)
	}
	return nil
}

// memberID returns the author's membership id in the activity's family, or "".
func memberID(tx *gorm.DB, a *models.Activity) string {
	var m models.FamilyMember
	if err := tx.Select("id").Where("family_id = ? AND user_id = ?", a.FamilyID, a.UserID).First(&m).Error; err != nil {
		return ""
	}
	return m.ID
}

// Get returns an activity visible to the caller: their own, or one in a family they belong to.
func (s *ActivityService) Get(actor Identity, id string) (*models.Activity, error) {
	var activity models.Activity
	if err := s.DB.Where("id = ?", id).First(&activity).Error; err != nil {
		return nil, notFoundOr(err, "activity")
	}
	if activity.UserID == actor.UserID || actor.IsAdmin {
		return &activity, nil
	}
	if _, err := membership(s.DB, activity.FamilyID, actor.UserID); err != nil {
		return nil, Forbidden("you cannot view this activity")
	}
	return &activity, nil
}

// owned loads an activity the caller may modify.
func owned(tx *gorm.DB, actor Identity, id string) (*models.Activity, error) {
	var activity models.Activity
	if err := tx.Where("id = ?", id).First(&activity).Error; err != nil {
		return nil, notFoundOr(err, "activity")
	}
	if activity.UserID != actor.UserID && !actor.IsAdmin {
		return nil, Forbidden("only the author can change this activity")
	}
	return &activity, nil
}

// List pages through the caller's activities, or a family's when FamilyID is set.
func (s *ActivityService) List(actor Identity, f ActivityFilter) (*Page[models.Activity], error) {
	page, size := normalizePage(f.Page, f.Size)

	q := s.DB.Model(&models.Activity{})
	if f.FamilyID != "" {
		if _, err := membership(s.DB, f.FamilyID, actor.UserID); err != nil {
			return nil, err
		}
		q = q.Where("family_id = ?", f.FamilyID)
	} else {
		q = q.Where("user_id = ?", actor.UserID)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Upstream("failed to count activities", err)
	}
	var items []models.Activity
	if err := q.Order("activity_date DESC, created_at DESC").
		Limit(size).Offset((page - 1) * size).
		Find(&items).Error; err != nil {
		return nil, Upstream("failed to list activities", err)
	}
	p := newPage(items, page, size, total)
	return &p, nil
}

// Update edits an activity. Counter deltas are applied for changed points and CO2,
// and badges are re-evaluated. Author only.
func (s *ActivityService) Update(actor Identity, id string, in UpdateActivityInput) (*ActivityResult, error) {
	if in.Category != nil && !in.Category.Valid() {
		return nil, Validation("validation_failed", "unknown activity category")
	}
	if in.ActivityDate != nil {
		if err := s.checkDate(*in.ActivityDate); err != nil {
			return nil, err
		}
	}

	var result ActivityResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		activity, err := owned(tx, actor, id)
		if err != nil {
			return err
		}

		updates := map[string]any{}
		if in.Title != nil {
			updates["title"] = utils.NormalizeText(*in.Title)
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.Category != nil {
			updates["category"] = *in.Category
		}
		if in.WaterSaved != nil {
			updates["water_saved"] = *in.WaterSaved
		}
		if in.EnergySaved != nil {
			updates["energy_saved"] = *in.EnergySaved
		}
		if in.LocationName != nil {
			updates["location_name"] = *in.LocationName
		}
		if in.ActivityDate != nil {
			updates["activity_date"] = in.ActivityDate.UTC()
		}

		var pointsDelta int64
		var co2Delta float64
		if in.Points != nil && *in.Points > 0 {
			pointsDelta = *in.Points - activity.Points
			updates["points"] = *in.Points
		}
		if in.CO2Reduction != nil {
			co2Delta = *in.CO2Reduction - activity.CO2Reduction
			updates["co2_reduction"] = *in.CO2Reduction
		}

		if len(updates) > 0 {
			if err := tx.Model(activity).Updates(updates).Error; err != nil {
				return Upstream("failed to update activity", err)
			}
		}
		if pointsDelta != 0 || co2Delta != 0 {
			if err := s.applyCounters(tx, activity, memberID(tx, activity), pointsDelta, co2Delta, 0); err != nil {
				return err
			}
		}
		if in.ActivityDate != nil {
			if err := refreshStreak(tx, activity.UserID, s.now()); err != nil {
				return Upstream("failed to update streak", err)
			}
		}

		awarded, err := s.Badges.EvaluateBadges(tx, activity.UserID, models.AwardSourceActivity)
		if err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).First(&result.Activity).Error; err != nil {
			return Upstream("failed to reload activity", err)
		}
		result.AwardedBadges = awarded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AwardedBadges == nil {
		result.AwardedBadges = []models.Badge{}
	}
	return &result, nil
}

// Delete soft-deletes an activity and reverses its counters. Badges already earned
// are kept. Author only.
func (s *ActivityService) Delete(actor Identity, id string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		activity, err := owned(tx, actor, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(activity).Error; err != nil {
			return Upstream("failed to delete activity", err)
		}
		if err := s.applyCounters(tx, activity, memberID(tx, activity), -activity.Points, -activity.CO2Reduction, -1); err != nil {
			return err
		}
		if err := refreshStreak(tx, activity.UserID, s.now()); err != nil {
			return Upstream("failed to update streak", err)
		}
		return nil
	})
}

type ActivityStats struct {
	TotalActivities          int64                             `json:"total_activities"`
	TotalPoints              int64                             `json:"total_points"`
	TotalCO2Saved            float64                           `json:"total_co2_saved"`
	TotalWaterSaved          float64                           `json:"total_water_saved"`
	TotalEnergySaved         float64                           `json:"total_energy_saved"`
	ActivitiesThisWeek       int64                             `json:"activities_this_week"`
	ActivitiesThisMonth      int64                             `json:"activities_this_month"`
	PointsThisWeek           int64                             `json:"points_this_week"`
	PointsThisMonth          int64                             `json:"points_this_month"`
	FavoriteCategory         models.ActivityCategory           `json:"favorite_category,omitempty"`
	ByCategory               map[models.ActivityCategory]int64 `json:"by_category"`
	StreakDays               int                               `json:"streak_days"`
	AveragePointsPerActivity float64                           `json:"average_points_per_activity"`
	EnvironmentalImpactScore float64                           `json:"environmental_impact_score"`
}

// Stats aggregates the caller's activity history.
func (s *ActivityService) Stats(actor Identity) (*ActivityStats, error) {
	stats := &ActivityStats{ByCategory: map[models.ActivityCategory]int64{}}

	var totals struct {
		Activities int64
		Points     int64
		CO2        float64
		Water      float64
		Energy     float64
	}
	if err := s.DB.Model(&models.Activity{}).
		Select("COUNT(*) AS activities, COALESCE(SUM(points), 0) AS points, " +
			"COALESCE(SUM(co2_reduction), 0) AS co2, COALESCE(SUM(water_saved), 0) AS water, " +
			"COALESCE(SUM(energy_saved), 0) AS energy").
		Where("user_id = ?", actor.UserID).
		Scan(&totals).Error; err != nil {
		return nil, Upstream("failed to aggregate activities", err)
	}
	stats.TotalActivities = totals.Activities
	stats.TotalPoints = totals.Points
	stats.TotalCO2Saved = totals.CO2
	stats.TotalWaterSaved = totals.Water
	stats.TotalEnergySaved = totals.Energy
	if totals.Activities > 0 {
		stats.AveragePointsPerActivity = float64(totals.Points) / float64(totals.Activities)
	}
	stats.EnvironmentalImpactScore = totals.CO2 * 10

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, p := range []struct {
		since      time.Time
		activities *int64
		points     *int64
	}{
		{weekStart(now), &stats.ActivitiesThisWeek, &stats.PointsThisWeek},
		{monthStart, &stats.ActivitiesThisMonth, &stats.PointsThisMonth},
	} {
		var sum PeriodSummary
		if err := s.DB.Model(&models.Activity{}).
			Select("COUNT(*) AS activities, COALESCE(SUM(points), 0) AS points").
			Where("user_id = ? AND activity_date >= ?", actor.UserID, p.since).
			Scan(&sum).Error; err != nil {
			return nil, Upstream("failed to summarize activities", err)
		}
		*p.activities, *p.points = sum.Activities, sum.Points
	}

	var rows []struct {
		Category models.ActivityCategory
		Count    int64
	}
	if err := s.DB.Model(&models.Activity{}).
		Select("category, COUNT(*) AS count").
		Where("user_id = ?", actor.UserID).
		Group("category").
		Scan(&rows).Error; err != nil {
		return nil, Upstream("failed to group activities", err)
	}
	var best int64
	for _, r := range rows {
		stats.ByCategory[r.Category] = r.Count
		if r.Count > best {
			best, stats.FavoriteCategory = r.Count, r.Category
		}
	}

	var user models.User
	if err := s.DB.Select("streak_days").Where("id = ?", actor.UserID).First(&user).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	stats.StreakDays = user.StreakDays
	return stats, nil
}

// AttachPhoto uploads a photo and links it to the caller's activity.
func (s *ActivityService) AttachPhoto(ctx context.Context, actor Identity, id string, in UploadInput) (*models.Activity, error) {
	activity, err := owned(s.DB, actor, id)
	if err != nil {
		return nil, err
	}
	image, err := s.Uploads.Upload(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	if err := s.DB.Model(activity).Updates(map[string]any{
		"photo_url":      image.URL,
		"photo_filename": image.Filename,
	}).Error; err != nil {
		return nil, Upstream("failed to attach photo", err)
	}
	activity.PhotoURL = image.URL
	activity.PhotoFilename = image.Filename
	return activity, nil
}
