package models

import (
	"time"

	"gorm.io/gorm"
)

// ActivityCategory is the kind of eco action a user logged.
type ActivityCategory string

const (
	CategoryRecycle        ActivityCategory = "recycle"
	CategoryEnergySaving   ActivityCategory = "energy_saving"
	CategoryWaterSaving    ActivityCategory = "water_saving"
	CategoryTransportation ActivityCategory = "transportation"
	CategoryWasteReduction ActivityCategory = "waste_reduction"
	CategoryGreenPurchase  ActivityCategory = "green_purchase"
	CategoryOther          ActivityCategory = "other"
)

// ActivityCategories lists every accepted category, in display order.
var ActivityCategories = []ActivityCategory{
	CategoryRecycle,
	CategoryEnergySaving,
	CategoryWaterSaving,
	CategoryTransportation,
	CategoryWasteReduction,
	CategoryGreenPurchase,
	CategoryOther,
}

func (c ActivityCategory) Valid() bool {
	for _, known := range ActivityCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Activity is a logged eco action. Points are fixed at creation unless explicitly updated.
type Activity struct {
	ID           string           `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string           `gorm:"index;not null" json:"user_id"`
	FamilyID     string           `gorm:"index;not null" json:"family_id"`
	Title        string           `gorm:"not null" json:"title"`
	Description  string           `gorm:"type:text" json:"description,omitempty"`
	Category     ActivityCategory `gorm:"type:varchar(32);index;not null" json:"category"`
	Points       int64            `gorm:"not null" json:"points"`
	CO2Reduction float64          `gorm:"column:co2_reduction;default:0" json:"co2_reduction"`
	WaterSaved   float64          `gorm:"default:0" json:"water_saved"`
	EnergySaved  float64          `gorm:"default:0" json:"energy_saved"`

	PhotoURL      string `gorm:"type:text" json:"photo_url,omitempty"`
	PhotoFilename string `json:"photo_filename,omitempty"`
	LocationName  string `json:"location_name,omitempty"`

	ActivityDate time.Time `gorm:"index;not null" json:"activity_date"`

	Timestamps
	SoftDelete
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
