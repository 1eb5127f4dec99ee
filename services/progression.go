package services

import (
	"math"
	"sort"
	"time"

	"we-planet-api/models"

	"gorm.io/gorm"
)

// CategoryMultipliers weight the base points of an activity by category.
var CategoryMultipliers = map[models.ActivityCategory]float64{
	models.CategoryRecycle:        1.0,
	models.CategoryEnergySaving:   1.2,
	models.CategoryWaterSaving:    1.1,
	models.CategoryTransportation: 1.5,
	models.CategoryWasteReduction: 1.3,
	models.CategoryGreenPurchase:  1.4,
	models.CategoryOther:          1.0,
}

// BaseActivityPoints is what any logged activity is worth before CO2 and category weighting.
const BaseActivityPoints = 10

// CalculatePoints scores an activity: (10 + co2*10) * multiplier, never below 1.
func CalculatePoints(category models.ActivityCategory, co2Reduction float64) int64 {
	multiplier, ok := CategoryMultipliers[category]
	if !ok {
		multiplier = 1.0
	}
	if co2Reduction < 0 {
		co2Reduction = 0
	}
	points := int64((BaseActivityPoints + co2Reduction*10) * multiplier)
	if points < 1 {
		return 1
	}
	return points
}

// XPPerLevelUnit scales the level curve: level n starts at 100*(n-1)^2 XP.
const XPPerLevelUnit = 100

// LevelFor returns floor(sqrt(xp/100)) + 1.
func LevelFor(xp int64) int {
	if xp <= 0 {
		return 1
	}
	return int(math.Sqrt(float64(xp)/XPPerLevelUnit)) + 1
}

// StreakDays counts consecutive calendar days (UTC) with at least one activity,
// ending at the most recent day in dates. The streak is broken, and 0 is returned,
// when the most recent day is before yesterday relative to now.
func StreakDays(dates []time.Time, now time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	days := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		days[truncateDay(d)] = true
	}
	unique := make([]time.Time, 0, len(days))
	for d := range days {
		unique = append(unique, d)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].After(unique[j]) })

	today := truncateDay(now)
	if unique[0].Before(today.AddDate(0, 0, -1)) {
		return 0
	}

	streak := 1
	for i := 1; i < len(unique); i++ {
		if !unique[i].Equal(unique[i-1].AddDate(0, 0, -1)) {
			break
		}
		streak++
	}
	return streak
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// creditPoints adds points to a user's total and experience and recomputes the level.
// It must run inside the caller's transaction.
func creditPoints(tx *gorm.DB, userID string, points int64) error {
	if points == 0 {
		return nil
	}
	if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"total_points":      gorm.Expr("total_points + ?", points),
		"experience_points": gorm.Expr("experience_points + ?", points),
	}).Error; err != nil {
		return err
	}
	return refreshLevel(tx, userID)
}

func refreshLevel(tx *gorm.DB, userID string) error {
	var xp int64
	if err := tx.Model(&models.User{}).Where("id = ?", userID).
		Select("experience_points").Scan(&xp).Error; err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).
		Update("level", LevelFor(xp)).Error
}

// refreshStreak recomputes the user's streak and last activity date from their activities.
func refreshStreak(tx *gorm.DB, userID string, now time.Time) error {
	var dates []time.Time
	if err := tx.Model(&models.Activity{}).Where("user_id = ?", userID).
		Order("activity_date DESC").Limit(400).
		Pluck("activity_date", &dates).Error; err != nil {
		return err
	}

	updates := map[string]any{"streak_days": StreakDays(dates, now)}
	if len(dates) > 0 {
		updates["last_activity_date"] = dates[0]
	} else {
		updates["last_activity_date"] = nil
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}
