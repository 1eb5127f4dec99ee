package services

import (
	"errors"
	"log"
	"time"

	"we-planet-api/metrics"
	"we-planet-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MissionService struct {
	DB     *gorm.DB
	Badges *BadgeService
	now    func() time.Time
}

func NewMissionService(db *gorm.DB, badges *BadgeService) *MissionService {
	return &MissionService{DB: db, Badges: badges, now: time.Now}
}

type CreateMissionInput struct {
	Code          string             `json:"code" validate:"required,max=50"`
	Title         string             `json:"title" validate:"required,max=200"`
	Description   string             `json:"description" validate:"max=1000"`
	MissionType   models.MissionType `json:"mission_type" validate:"required,oneof=daily weekly monthly special challenge"`
	Category      string             `json:"category" validate:"max=32"`
	StartDate     time.Time          `json:"start_date" validate:"required"`
	EndDate       time.Time          `json:"end_date" validate:"required"`
	RewardPoints  int64              `json:"reward_points" validate:"min=0,max=100000"`
	BadgeRewardID *string            `json:"badge_reward_id"`
}

// MissionDetail is a mission plus the caller's participation, if any.
type MissionDetail struct {
	models.Mission
	Participation    *models.UserMission `json:"participation,omitempty"`
	ParticipantCount int64               `json:"participant_count"`
}

// CompletionResult is returned when a mission is completed.
type CompletionResult struct {
	Participation models.UserMission `json:"participation"`
	PointsAwarded int64              `json:"points_awarded"`
	AwardedBadges []models.Badge     `json:"awarded_badges"`
}

// Create adds a mission. Admin only.
func (s *MissionService) Create(actor Identity, in CreateMissionInput) (*models.Mission, error) {
	if !actor.IsAdmin {
		return nil, Forbidden("only admins can create missions")
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, Validation("validation_failed", "end_date must be after start_date")
	}
	if in.BadgeRewardID != nil {
		if _, err := s.Badges.GetBadge(*in.BadgeRewardID); err != nil {
			return nil, err
		}
	}

	mission := models.Mission{
		Code:          in.Code,
		Title:         in.Title,
		Description:   in.Description,
		MissionType:   in.MissionType,
		Category:      in.Category,
		StartDate:     in.StartDate.UTC(),
		EndDate:       in.EndDate.UTC(),
		RewardPoints:  in.RewardPoints,
		BadgeRewardID: in.BadgeRewardID,
		IsActive:      true,
	}
	if err := s.DB.Create(&mission).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Conflict("mission_exists", "a mission with this code already exists")
		}
		return nil, Upstream("failed to create mission", err)
	}
	return &mission, nil
}

// List returns missions, optionally only active ones, filtered by type.
func (s *MissionService) List(activeOnly bool, missionType models.MissionType) ([]models.Mission, error) {
	q := s.DB.Model(&models.Mission{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if missionType != "" {
		q = q.Where("mission_type = ?", missionType)
	}
	var missions []models.Mission
	if err := q.Order("end_date ASC").Find(&missions).Error; err != nil {
		return nil, Upstream("failed to list missions", err)
	}
	return missions, nil
}

// Active returns active missions whose window contains now.
func (s *MissionService) Active() ([]models.Mission, error) {
	now := s.now().UTC()
	var missions []models.Mission
	if err := s.DB.Where("is_active = ? AND start_date <= ? AND end_date >= ?", true, now, now).
		Order("end_date ASC").Find(&missions).Error; err != nil {
		return nil, Upstream("failed to list active missions", err)
	}
	return missions, nil
}

// Mine returns the caller's participations with their missions.
func (s *MissionService) Mine(actor Identity, status models.ParticipationStatus) ([]models.UserMission, error) {
	q := s.DB.Preload("Mission").Where("user_id = ?", actor.UserID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var participations []models.UserMission
	if err := q.Order("joined_at DESC").Find(&participations).Error; err != nil {
		return nil, Upstream("failed to list participations", err)
	}
	return participations, nil
}

func (s *MissionService) Get(actor Identity, id string) (*MissionDetail, error) {
	var mission models.Mission
	if err := s.DB.Where("id = ?", id).First(&mission).Error; err != nil {
		return nil, notFoundOr(err, "mission")
	}
	detail := &MissionDetail{Mission: mission}

	var p models.UserMission
	err := s.DB.Where("user_id = ? AND mission_id = ?", actor.UserID, id).First(&p).Error
	switch {
	case err == nil:
		detail.Participation = &p
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, Upstream("failed to load participation", err)
	}

	if err := s.DB.Model(&models.UserMission{}).
		Where("mission_id = ? AND status <> ?", id, models.ParticipationWithdrawn).
		Count(&detail.ParticipantCount).Error; err != nil {
		return nil, Upstream("failed to count participants", err)
	}
	return detail, nil
}

// checkWindow reports why the mission cannot be acted on at now, if at all.
func checkWindow(m *models.Mission, now time.Time) error {
	if !m.OpenAt(now) {
		if now.After(m.EndDate) {
			return ErrMissionExpired
		}
		return ErrMissionNotStarted
	}
	if !m.IsActive {
		return ErrMissionInactive
	}
	return nil
}

// Participate joins the caller to an open mission. A participation can exist only
// once per (user, mission), so rejoining after completing or withdrawing is a conflict.
func (s *MissionService) Participate(actor Identity, id string) (*models.UserMission, error) {
	var mission models.Mission
	if err := s.DB.Where("id = ?", id).First(&mission).Error; err != nil {
		return nil, notFoundOr(err, "mission")
	}
	if err := checkWindow(&mission, s.now()); err != nil {
		return nil, err
	}

	p := models.UserMission{UserID: actor.UserID, MissionID: id, Status: models.ParticipationJoined}
	res := s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "mission_id"}},
		DoNothing: true,
	}).Create(&p)
	if res.Error != nil {
		return nil, Upstream("failed to join mission", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyJoined
	}

	metrics.RecordMissionTransition(string(models.ParticipationJoined))
	log.Printf("🎯 [MISSION] %s joined %s", actor.Username, mission.Code)
	p.Mission = &mission
	return &p, nil
}

// Complete moves the caller's participation from joined to completed inside the
// mission window, credits reward points once, and grants the reward badge.
func (s *MissionService) Complete(actor Identity, id string) (*CompletionResult, error) {
	var result CompletionResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var mission models.Mission
		if err := tx.Where("id = ?", id).First(&mission).Error; err != nil {
			return notFoundOr(err, "mission")
		}

		var p models.UserMission
		if err := tx.Where("user_id = ? AND mission_id = ?", actor.UserID, id).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotParticipating
			}
			return Upstream("failed to load participation", err)
		}
		switch p.Status {
		case models.ParticipationCompleted:
			return ErrAlreadyCompleted
		case models.ParticipationWithdrawn:
			return ErrNotParticipating
		}

		now := s.now().UTC()
		if err := checkWindow(&mission, now); err != nil {
			return err
		}

		res := tx.Model(&models.UserMission{}).
			Where("id = ? AND status = ?", p.ID, models.ParticipationJoined).
			Updates(map[string]any{
				"status":         models.ParticipationCompleted,
				"completed_at":   now,
				"points_awarded": mission.RewardPoints,
			})
		if res.Error != nil {
			return Upstream("failed to complete mission", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyCompleted
		}

		if err := creditPoints(tx, actor.UserID, mission.RewardPoints); err != nil {
			return Upstream("failed to credit mission reward", err)
		}

		if mission.BadgeRewardID != nil {
			var badge models.Badge
			err := tx.Where("id = ? AND is_active = ?", *mission.BadgeRewardID, true).First(&badge).Error
			switch {
			case err == nil:
				created, err := s.Badges.awardBadge(tx, actor.UserID, &badge, models.AwardSourceMission)
				if err != nil {
					return err
				}
				if created {
					result.AwardedBadges = append(result.AwardedBadges, badge)
				}
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return Upstream("failed to load reward badge", err)
			}
		}

		awarded, err := s.Badges.EvaluateBadges(tx, actor.UserID, models.AwardSourceMission)
		if err != nil {
			return err
		}
		result.AwardedBadges = append(result.AwardedBadges, awarded...)

		if err := tx.Preload("Mission").Where("id = ?", p.ID).First(&result.Participation).Error; err != nil {
			return Upstream("failed to reload participation", err)
		}
		result.PointsAwarded = mission.RewardPoints
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.AwardedBadges == nil {
		result.AwardedBadges = []models.Badge{}
	}

	metrics.RecordMissionTransition(string(models.ParticipationCompleted))
	log.Printf("🏁 [MISSION] %s completed mission %s (+%d pts)", actor.Username, id, result.PointsAwarded)
	return &result, nil
}

// Withdraw moves a joined participation to withdrawn.
func (s *MissionService) Withdraw(actor Identity, id string) (*models.UserMission, error) {
	var p models.UserMission
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND mission_id = ?", actor.UserID, id).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotParticipating
			}
			return Upstream("failed to load participation", err)
		}

		now := s.now().UTC()
		res := tx.Model(&models.UserMission{}).
			Where("id = ? AND status = ?", p.ID, models.ParticipationJoined).
			Updates(map[string]any{"status": models.ParticipationWithdrawn, "withdrawn_at": now})
		if res.Error != nil {
			return Upstream("failed to withdraw", res.Error)
		}
		if res.RowsAffected == 0 {
			if p.Status == models.ParticipationCompleted {
				return ErrAlreadyCompleted
			}
			return ErrNotParticipating
		}
		p.Status = models.ParticipationWithdrawn
		p.WithdrawnAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordMissionTransition(string(models.ParticipationWithdrawn))
	return &p, nil
}

// DeactivateEnded switches off active missions whose end date has passed.
func (s *MissionService) DeactivateEnded() (int64, error) {
	res := s.DB.Model(&models.Mission{}).
		Where("is_active = ? AND end_date < ?", true, s.now().UTC()).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
