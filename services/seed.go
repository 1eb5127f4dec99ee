package services

import (
	"log"
	"time"

	"we-planet-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedDefaults inserts the built-in badges and missions. Rows are keyed by code, so
// running it again leaves existing definitions untouched.
func SeedDefaults(db *gorm.DB, now time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var badges, missions int64
		for _, b := range models.DefaultBadges {
			badge := b
			badge.IsActive = true
			res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).Create(&badge)
			if res.Error != nil {
				return res.Error
			}
			badges += res.RowsAffected
		}
		for _, m := range models.DefaultMissions(now.UTC()) {
			mission := m
			mission.IsActive = true
			res := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).Create(&mission)
			if res.Error != nil {
				return res.Error
			}
			missions += res.RowsAffected
		}
		log.Printf("🌱 [SEED] %d badge(s) and %d mission(s) added", badges, missions)
		return nil
	})
}
