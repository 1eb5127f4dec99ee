package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the credential record plus the denormalized eco counters shown on profiles.
type User struct {
	ID              string  `gorm:"primaryKey;type:uuid" json:"id"`
	Email           string  `gorm:"uniqueIndex;not null" json:"email"`
	Username        string  `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash    string  `gorm:"not null" json:"-"`
	FullName        string  `json:"full_name,omitempty"`
	Bio             string  `gorm:"type:text" json:"bio,omitempty"`
	Location        string  `json:"location,omitempty"`
	AvatarURL       *string `json:"avatar_url,omitempty"`
	IsActive        bool    `gorm:"not null" json:"is_active"`
	IsAdmin         bool    `gorm:"default:false" json:"is_admin"`
	IsPublicProfile bool    `gorm:"not null" json:"is_public_profile"`

	// Progression
	TotalPoints      int64   `gorm:"default:0;index" json:"total_points"`
	TotalActivities  int64   `gorm:"default:0" json:"total_activities"`
	TotalCO2Saved    float64 `gorm:"column:total_co2_saved;default:0" json:"total_co2_saved"`
	ExperiencePoints int64   `gorm:"default:0" json:"experience_points"`
	Level            int     `gorm:"default:1" json:"level"`
	StreakDays       int     `gorm:"default:0" json:"streak_days"`

	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`

	Timestamps
	SoftDelete
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// PublicProfile is what other users get to see.
type PublicProfile struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	FullName        string    `json:"full_name,omitempty"`
	AvatarURL       *string   `json:"avatar_url,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	Location        string    `json:"location,omitempty"`
	Level           int       `json:"level"`
	TotalPoints     int64     `json:"total_points"`
	TotalActivities int64     `json:"total_activities"`
	CreatedAt       time.Time `json:"created_at"`
}

// Public returns the profile view, masking details of private profiles.
func (u *User) Public(viewerID string) PublicProfile {
	p := PublicProfile{
		ID:        u.ID,
		Username:  u.Username,
		Level:     u.Level,
		CreatedAt: u.CreatedAt,
	}
	if !u.IsPublicProfile && u.ID != viewerID {
		p.Bio = "This profile is private"
		return p
	}
	p.FullName = u.FullName
	p.AvatarURL = u.AvatarURL
	p.Bio = u.Bio
	p.Location = u.Location
	p.TotalPoints = u.TotalPoints
	p.TotalActivities = u.TotalActivities
	return p
}
