package models

// UserStats is the aggregate view of one user that badge criteria are evaluated against.
type UserStats struct {
	UserID            string                     `json:"user_id"`
	TotalPoints       int64                      `json:"total_points"`
	TotalActivities   int64                      `json:"total_activities"`
	TotalCO2Saved     float64                    `json:"total_co2_saved"`
	StreakDays        int                        `json:"streak_days"`
	FamilyActivities  int64                      `json:"family_activities"`
	MissionsCompleted int64                      `json:"missions_completed"`
	CategoryCounts    map[ActivityCategory]int64 `json:"category_counts"`
}
