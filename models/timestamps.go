package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// SoftDelete marks rows that are hidden instead of removed.
type SoftDelete struct {
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// ensureID fills an empty primary key before insert. IDs are generated here rather
// than by the database so the schema works on both Postgres and SQLite.
func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}
