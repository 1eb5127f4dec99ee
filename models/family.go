package models

import (
	"time"

	"gorm.io/gorm"
)

// FamilyRole is a member's role inside a family.
type FamilyRole string

const (
	FamilyRoleOwner  FamilyRole = "owner"
	FamilyRoleMember FamilyRole = "member"
)

// DefaultMaxFamilyMembers caps family size unless a family overrides it.
const DefaultMaxFamilyMembers = 10

type Family struct {
	ID                  string `gorm:"primaryKey;type:uuid" json:"id"`
	Name                string `gorm:"not null" json:"name"`
	Description         string `gorm:"type:text" json:"description,omitempty"`
	InviteCode          string `gorm:"uniqueIndex;size:16;not null" json:"invite_code,omitempty"`
	CreatorID           string `gorm:"index;not null" json:"creator_id"`
	IsPublic            bool   `gorm:"not null" json:"is_public"`
	MaxMembers          int    `gorm:"not null" json:"max_members"`
	FamilyGoal          string `gorm:"type:text" json:"family_goal,omitempty"`
	MonthlyTargetPoints int64  `gorm:"not null" json:"monthly_target_points"`

	// Denormalized counters
	TotalPoints     int64 `gorm:"default:0" json:"total_points"`
	TotalActivities int64 `gorm:"default:0" json:"total_activities"`
	MemberCount     int   `gorm:"default:0" json:"member_count"`

	Members []FamilyMember `gorm:"constraint:OnDelete:CASCADE" json:"members,omitempty"`

	Timestamps
}

func (f *Family) BeforeCreate(tx *gorm.DB) error {
	ensureID(&f.ID)
	if f.MaxMembers <= 0 {
		f.MaxMembers = DefaultMaxFamilyMembers
	}
	return nil
}

// FamilyMember joins a user to a family. One row per (family, user).
type FamilyMember struct {
	ID                string     `gorm:"primaryKey;type:uuid" json:"id"`
	FamilyID          string     `gorm:"uniqueIndex:idx_family_member;not null" json:"family_id"`
	UserID            string     `gorm:"uniqueIndex:idx_family_member;index;not null" json:"user_id"`
	Role              FamilyRole `gorm:"type:varchar(16);not null" json:"role"`
	Nickname          string     `json:"nickname,omitempty"`
	PointsContributed int64      `gorm:"default:0" json:"points_contributed"`
	ActivitiesCount   int64      `gorm:"default:0" json:"activities_count"`
	JoinedAt          time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LastActivityAt    *time.Time `json:"last_activity_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"-"`
}

func (m *FamilyMember) BeforeCreate(tx *gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

func (m *FamilyMember) IsOwner() bool {
	return m.Role == FamilyRoleOwner
}
