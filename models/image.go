package models

import (
	"time"

	"gorm.io/gorm"
)

// Image is an uploaded file living in the object store under Key.
type Image struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	Filename         string    `gorm:"uniqueIndex;not null" json:"filename"`
	Key              string    `gorm:"not null" json:"-"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `gorm:"not null" json:"content_type"`
	Size             int64     `json:"size"`
	URL              string    `gorm:"type:text;not null" json:"url"`
	OwnerID          string    `gorm:"index;not null" json:"owner_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (i *Image) BeforeCreate(tx *gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
