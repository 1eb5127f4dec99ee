package models

import (
	"time"

	"gorm.io/gorm"
)

// RequirementType names the aggregate a badge criteria is measured against.
type RequirementType string

const (
	RequirementPointsTotal       RequirementType = "points_total"
	RequirementActivityCount     RequirementType = "activity_count"
	RequirementCategoryCount     RequirementType = "category_count"
	RequirementCO2Reduction      RequirementType = "co2_reduction"
	RequirementStreakDays        RequirementType = "streak_days"
	RequirementFamilyActivities  RequirementType = "family_activities"
	RequirementMissionsCompleted RequirementType = "missions_completed"
)

// Criteria is a threshold over one aggregate of a user's activity history.
type Criteria struct {
	Type      RequirementType  `gorm:"column:requirement_type;type:varchar(32);not null" json:"type"`
	Threshold float64          `gorm:"column:requirement_value;not null" json:"threshold"`
	Category  ActivityCategory `gorm:"column:requirement_category;type:varchar(32)" json:"category,omitempty"`
}

// SatisfiedBy reports whether the aggregate in stats reaches the threshold.
// Unknown requirement types never match.
func (c Criteria) SatisfiedBy(stats UserStats) bool {
	var have float64
	switch c.Type {
	case RequirementPointsTotal:
		have = float64(stats.TotalPoints)
	case RequirementActivityCount:
		have = float64(stats.TotalActivities)
	case RequirementCategoryCount:
		have = float64(stats.CategoryCounts[c.Category])
	case RequirementCO2Reduction:
		have = stats.TotalCO2Saved
	case RequirementStreakDays:
		have = float64(stats.StreakDays)
	case RequirementFamilyActivities:
		have = float64(stats.FamilyActivities)
	case RequirementMissionsCompleted:
		have = float64(stats.MissionsCompleted)
	default:
		return false
	}
	return have >= c.Threshold
}

// Badge is a static reward definition.
type Badge struct {
	ID           string   `gorm:"primaryKey;type:uuid" json:"id"`
	Code         string   `gorm:"uniqueIndex;not null" json:"code"` // e.g., "FIRST_STEP", "POINTS_100"
	Name         string   `gorm:"not null" json:"name"`
	Description  string   `gorm:"type:text" json:"description"`
	IconURL      string   `gorm:"type:text" json:"icon_url,omitempty"`
	Category     string   `gorm:"type:varchar(16)" json:"category"` // beginner, intermediate, advanced, special, seasonal
	Criteria     Criteria `gorm:"embedded" json:"criteria"`
	PointsReward int64    `gorm:"default:0" json:"points_reward"`
	IsActive     bool     `gorm:"not null" json:"is_active"`
	IsHidden     bool     `gorm:"not null" json:"is_hidden"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (b *Badge) BeforeCreate(tx *gorm.DB) error {
	ensureID(&b.ID)
	return nil
}

// AwardSource records what caused a badge to be granted.
type AwardSource string

const (
	AwardSourceActivity AwardSource = "activity"
	AwardSourceMission  AwardSource = "mission"
	AwardSourceManual   AwardSource = "manual"
	AwardSourceClaim    AwardSource = "claim"
	// AwardSourceReward marks badges unlocked by another badge's point reward.
	AwardSourceReward AwardSource = "reward"
)

// UserBadge: awarded instance (many-to-many). At most one per (user, badge).
type UserBadge struct {
	ID        string      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string      `gorm:"uniqueIndex:idx_user_badge;not null" json:"user_id"`
	BadgeID   string      `gorm:"uniqueIndex:idx_user_badge;index;not null" json:"badge_id"`
	Source    AwardSource `gorm:"type:varchar(16);not null" json:"source"`
	AwardedAt time.Time   `gorm:"autoCreateTime" json:"awarded_at"`

	Badge *Badge `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
}

func (ub *UserBadge) BeforeCreate(tx *gorm.DB) error {
	ensureID(&ub.ID)
	return nil
}

// DefaultBadges are seeded at startup, keyed by Code.
var DefaultBadges = []Badge{
	{
		Code:         "FIRST_STEP",
		Name:         "First Step",
		Description:  "Logged your first eco activity",
		Category:     "beginner",
		Criteria:     Criteria{Type: RequirementActivityCount, Threshold: 1},
		PointsReward: 10,
	},
	{
		Code:        "POINTS_100",
		Name:        "Green Sprout",
		Description: "Earned 100 points",
		Category:    "beginner",
		Criteria:    Criteria{Type: RequirementPointsTotal, Threshold: 100},
	},
	{
		Code:         "POINTS_1000",
		Name:         "Eco Champion",
		Description:  "Earned 1,000 points",
		Category:     "advanced",
		Criteria:     Criteria{Type: RequirementPointsTotal, Threshold: 1000},
		PointsReward: 100,
	},
	{
		Code:        "RECYCLER_10",
		Name:        "Recycling Hero",
		Description: "Logged 10 recycling activities",
		Category:    "intermediate",
		Criteria:    Criteria{Type: RequirementCategoryCount, Threshold: 10, Category: CategoryRecycle},
	},
	{
		Code:        "CO2_10KG",
		Name:        "Carbon Cutter",
		Description: "Saved 10 kg of CO2",
		Category:    "intermediate",
		Criteria:    Criteria{Type: RequirementCO2Reduction, Threshold: 10},
	},
	{
		Code:        "STREAK_7",
		Name:        "Week Warrior",
		Description: "Logged activities 7 days in a row",
		Category:    "intermediate",
		Criteria:    Criteria{Type: RequirementStreakDays, Threshold: 7},
	},
	{
		Code:        "MISSION_3",
		Name:        "Mission Specialist",
		Description: "Completed 3 missions",
		Category:    "special",
		Criteria:    Criteria{Type: RequirementMissionsCompleted, Threshold: 3},
	},
}
