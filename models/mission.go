package models

import (
	"time"

	"gorm.io/gorm"
)

type MissionType string

const (
	MissionDaily     MissionType = "daily"
	MissionWeekly    MissionType = "weekly"
	MissionMonthly   MissionType = "monthly"
	MissionSpecial   MissionType = "special"
	MissionChallenge MissionType = "challenge"
)

// Mission is a time-bounded challenge. Completion is only accepted inside [StartDate, EndDate].
type Mission struct {
	ID            string      `gorm:"primaryKey;type:uuid" json:"id"`
	Code          string      `gorm:"uniqueIndex;not null" json:"code"`
	Title         string      `gorm:"not null" json:"title"`
	Description   string      `gorm:"type:text" json:"description"`
	MissionType   MissionType `gorm:"type:varchar(16);not null" json:"mission_type"`
	Category      string      `gorm:"type:varchar(32)" json:"category,omitempty"`
	StartDate     time.Time   `gorm:"index;not null" json:"start_date"`
	EndDate       time.Time   `gorm:"index;not null" json:"end_date"`
	RewardPoints  int64       `gorm:"default:0" json:"reward_points"`
	BadgeRewardID *string     `gorm:"type:uuid" json:"badge_reward_id,omitempty"`
	IsActive      bool        `gorm:"index;not null" json:"is_active"`

	Timestamps
}

func (m *Mission) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// OpenAt reports whether t falls inside the mission window (both ends inclusive).
func (m *Mission) OpenAt(t time.Time) bool {
	return !t.Before(m.StartDate) && !t.After(m.EndDate)
}

// ParticipationStatus: joined → completed | withdrawn. Both outcomes are terminal.
type ParticipationStatus string

const (
	ParticipationJoined    ParticipationStatus = "joined"
	ParticipationCompleted ParticipationStatus = "completed"
	ParticipationWithdrawn ParticipationStatus = "withdrawn"
)

// UserMission links a user to a mission they joined. At most one per (user, mission).
type UserMission struct {
	ID            string              `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string              `gorm:"uniqueIndex:idx_user_mission;not null" json:"user_id"`
	MissionID     string              `gorm:"uniqueIndex:idx_user_mission;index;not null" json:"mission_id"`
	Status        ParticipationStatus `gorm:"type:varchar(16);not null" json:"status"`
	PointsAwarded int64               `gorm:"default:0" json:"points_awarded"`
	JoinedAt      time.Time           `gorm:"autoCreateTime" json:"joined_at"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	WithdrawnAt   *time.Time          `json:"withdrawn_at,omitempty"`

	Mission *Mission `gorm:"foreignKey:MissionID" json:"mission,omitempty"`
}

func (um *UserMission) BeforeCreate(tx *gorm.DB) error {
	ensureID(&um.ID)
	return nil
}

// DefaultMissions returns the missions seeded at startup, windows anchored at now.
func DefaultMissions(now time.Time) []Mission {
	day := now.Truncate(24 * time.Hour)
	return []Mission{
		{
			Code:         "WEEKLY_RECYCLE",
			Title:        "Recycling Week",
			Description:  "Sort and recycle household waste every day this week",
			MissionType:  MissionWeekly,
			Category:     string(CategoryRecycle),
			StartDate:    day,
			EndDate:      day.Add(7*24*time.Hour - time.Second),
			RewardPoints: 50,
		},
		{
			Code:         "MONTHLY_NO_CAR",
			Title:        "Car-Free Month",
			Description:  "Walk, cycle or take public transport instead of driving",
			MissionType:  MissionMonthly,
			Category:     string(CategoryTransportation),
			StartDate:    day,
			EndDate:      day.AddDate(0, 1, 0).Add(-time.Second),
			RewardPoints: 200,
		},
	}
}
