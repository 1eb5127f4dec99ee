package services

import (
	"errors"
	"log"
	"time"

	"we-planet-api/models"
	"we-planet-api/utils"

	"gorm.io/gorm"
)

// DefaultMonthlyTargetPoints is the monthly goal of a family created without one.
const DefaultMonthlyTargetPoints = 1000

type FamilyService struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewFamilyService(db *gorm.DB) *FamilyService {
	return &FamilyService{DB: db, now: time.Now}
}

type CreateFamilyInput struct {
	Name                string `json:"name" validate:"required,min=1,max=100"`
	Description         string `json:"description" validate:"max=500"`
	IsPublic            bool   `json:"is_public"`
	FamilyGoal          string `json:"family_goal" validate:"max=500"`
	MonthlyTargetPoints *int64 `json:"monthly_target_points" validate:"omitempty,min=0,max=1000000"`
	MaxMembers          int    `json:"max_members" validate:"omitempty,min=1,max=50"`
}

type UpdateFamilyInput struct {
	Name                *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description         *string `json:"description" validate:"omitempty,max=500"`
	IsPublic            *bool   `json:"is_public"`
	FamilyGoal          *string `json:"family_goal" validate:"omitempty,max=500"`
	MonthlyTargetPoints *int64  `json:"monthly_target_points" validate:"omitempty,min=0,max=1000000"`
	MaxMembers          *int    `json:"max_members" validate:"omitempty,min=1,max=50"`
}

type UpdateMemberInput struct {
	Nickname *string            `json:"nickname" validate:"omitempty,max=50"`
	Role     *models.FamilyRole `json:"role" validate:"omitempty,oneof=owner member"`
}

// FamilySummary is one entry of the caller's family list.
type FamilySummary struct {
	models.Family
	CurrentUserRole models.FamilyRole `json:"current_user_role"`
}

// MemberUser is the part of a member's account other users may see.
type MemberUser struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	FullName  string  `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// MemberView is a membership row with the member's public identity.
type MemberView struct {
	models.FamilyMember
	User *MemberUser `json:"user,omitempty"`
}

// FamilyDetail is a family with its members, as seen by the caller.
type FamilyDetail struct {
	models.Family
	Members             []MemberView      `json:"members"`
	CurrentUserRole     models.FamilyRole `json:"current_user_role,omitempty"`
	CurrentUserIsMember bool              `json:"current_user_is_member"`
}

func memberViews(members []models.FamilyMember, viewerID string) []MemberView {
	out := make([]MemberView, 0, len(members))
	for _, m := range members {
		view := MemberView{FamilyMember: m}
		if m.User != nil {
			p := m.User.Public(viewerID)
			view.User = &MemberUser{ID: p.ID, Username: p.Username, FullName: p.FullName, AvatarURL: p.AvatarURL}
		}
		view.FamilyMember.User = nil
		out = append(out, view)
	}
	return out
}

// membership returns the caller's membership, ErrNotFamilyMember when there is none,
// or NotFound when the family itself does not exist.
func membership(tx *gorm.DB, familyID, userID string) (*models.FamilyMember, error) {
	var m models.FamilyMember
	err := tx.Where("family_id = ? AND user_id = ?", familyID, userID).First(&m).Error
	if err == nil {
		return &m, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Upstream("failed to load membership", err)
	}

	var count int64
	if err := tx.Model(&models.Family{}).Where("id = ?", familyID).Count(&count).Error; err != nil {
		return nil, Upstream("failed to load family", err)
	}
	if count == 0 {
		return nil, NotFound("family")
	}
	return nil, ErrNotFamilyMember
}

func ownerMembership(tx *gorm.DB, familyID, userID string) (*models.FamilyMember, error) {
	m, err := membership(tx, familyID, userID)
	if err != nil {
		return nil, err
	}
	if !m.IsOwner() {
		return nil, ErrNotFamilyOwner
	}
	return m, nil
}

// uniqueInviteCode draws codes until one is unused.
func uniqueInviteCode(tx *gorm.DB) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := utils.GenerateInviteCode()
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&models.Family{}).Where("invite_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique invite code")
}

// Create makes a family with the caller as its owner and only member.
func (s *FamilyService) Create(actor Identity, in CreateFamilyInput) (*FamilyDetail, error) {
	name := utils.NormalizeText(in.Name)
	if name == "" {
		return nil, Validation("validation_failed", "family name is required")
	}
	target := int64(DefaultMonthlyTargetPoints)
	if in.MonthlyTargetPoints != nil {
		target = *in.MonthlyTargetPoints
	}

	var family models.Family
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		code, err := uniqueInviteCode(tx)
		if err != nil {
			return Upstream("failed to generate invite code", err)
		}
		family = models.Family{
			Name:                name,
			Description:         in.Description,
			InviteCode:          code,
			CreatorID:           actor.UserID,
			IsPublic:            in.IsPublic,
			MaxMembers:          in.MaxMembers,
			FamilyGoal:          in.FamilyGoal,
			MonthlyTargetPoints: target,
			MemberCount:         1,
		}
		if err := tx.Create(&family).Error; err != nil {
			return Upstream("failed to create family", err)
		}
		owner := models.FamilyMember{FamilyID: family.ID, UserID: actor.UserID, Role: models.FamilyRoleOwner}
		if err := tx.Create(&owner).Error; err != nil {
			return Upstream("failed to add owner", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("🏠 [FAMILY] %s created %q (%s)", actor.Username, family.Name, family.ID)
	return s.Get(actor, family.ID)
}

// ListMine returns the families the caller belongs to.
func (s *FamilyService) ListMine(actor Identity) ([]FamilySummary, error) {
	var memberships []models.FamilyMember
	if err := s.DB.Where("user_id = ?", actor.UserID).Order("joined_at ASC").Find(&memberships).Error; err != nil {
		return nil, Upstream("failed to list memberships", err)
	}
	if len(memberships) == 0 {
		return []FamilySummary{}, nil
	}

	ids := make([]string, len(memberships))
	roles := make(map[string]models.FamilyRole, len(memberships))
	for i, m := range memberships {
		ids[i] = m.FamilyID
		roles[m.FamilyID] = m.Role
	}
	var families []models.Family
	if err := s.DB.Where("id IN ?", ids).Find(&families).Error; err != nil {
		return nil, Upstream("failed to list families", err)
	}

	byID := make(map[string]models.Family, len(families))
	for _, f := range families {
		byID[f.ID] = f
	}
	out := make([]FamilySummary, 0, len(families))
	for _, id := range ids {
		if f, ok := byID[id]; ok {
			out = append(out, FamilySummary{Family: f, CurrentUserRole: roles[id]})
		}
	}
	return out, nil
}

// Get loads a family with its members. Private families are visible to members only,
// and only members see the invite code.
func (s *FamilyService) Get(actor Identity, id string) (*FamilyDetail, error) {
	var family models.Family
	if err := s.DB.Preload("Members", func(db *gorm.DB) *gorm.DB {
		return db.Order("joined_at ASC")
	}).Preload("Members.User").Where("id = ?", id).First(&family).Error; err != nil {
		return nil, notFoundOr(err, "family")
	}

	detail := &FamilyDetail{Family: family, Members: memberViews(family.Members, actor.UserID)}
	detail.Family.Members = nil
	for _, m := range family.Members {
		if m.UserID == actor.UserID {
			detail.CurrentUserRole = m.Role
			detail.CurrentUserIsMember = true
		}
	}
	if !detail.CurrentUserIsMember {
		if !family.IsPublic {
			return nil, ErrNotFamilyMember
		}
		detail.InviteCode = ""
	}
	return detail, nil
}

// Update changes family settings. Owner only.
func (s *FamilyService) Update(actor Identity, id string, in UpdateFamilyInput) (*FamilyDetail, error) {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := ownerMembership(tx, id, actor.UserID); err != nil {
			return err
		}

		updates := map[string]any{}
		if in.Name != nil {
			name := utils.NormalizeText(*in.Name)
			if name == "" {
				return Validation("validation_failed", "family name cannot be empty")
			}
			updates["name"] = name
		}
		if in.Description != nil {
			updates["description"] = *in.Description
		}
		if in.IsPublic != nil {
			updates["is_public"] = *in.IsPublic
		}
		if in.FamilyGoal != nil {
			updates["family_goal"] = *in.FamilyGoal
		}
		if in.MonthlyTargetPoints != nil {
			updates["monthly_target_points"] = *in.MonthlyTargetPoints
		}
		if in.MaxMembers != nil {
			var family models.Family
			if err := tx.Select("member_count").Where("id = ?", id).First(&family).Error; err != nil {
				return notFoundOr(err, "family")
			}
			if *in.MaxMembers < family.MemberCount {
				return Validation("validation_failed", "max_members cannot be below the current member count")
			}
			updates["max_members"] = *in.MaxMembers
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Family{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return Upstream("failed to update family", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(actor, id)
}

// Delete removes the family and its memberships and soft-deletes its activities.
// Points already credited to members stay with them. Owner only.
func (s *FamilyService) Delete(actor Identity, id string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := ownerMembership(tx, id, actor.UserID); err != nil {
			return err
		}
		return deleteFamily(tx, id)
	})
}

func deleteFamily(tx *gorm.DB, id string) error {
	if err := tx.Where("family_id = ?", id).Delete(&models.Activity{}).Error; err != nil {
		return Upstream("failed to delete family activities", err)
	}
	if err := tx.Where("family_id = ?", id).Delete(&models.FamilyMember{}).Error; err != nil {
		return Upstream("failed to delete memberships", err)
	}
	if err := tx.Where("id = ?", id).Delete(&models.Family{}).Error; err != nil {
		return Upstream("failed to delete family", err)
	}
	log.Printf("🗑️ [FAMILY] deleted family %s", id)
	return nil
}

// RotateInviteCode replaces the invite code so old invitations stop working. Owner only.
func (s *FamilyService) RotateInviteCode(actor Identity, id string) (string, error) {
	var code string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := ownerMembership(tx, id, actor.UserID); err != nil {
			return err
		}
		var err error
		if code, err = uniqueInviteCode(tx); err != nil {
			return Upstream("failed to generate invite code", err)
		}
		if err := tx.Model(&models.Family{}).Where("id = ?", id).Update("invite_code", code).Error; err != nil {
			return Upstream("failed to update invite code", err)
		}
		return nil
	})
	return code, err
}

// Join adds the caller to family id when the invite code matches.
func (s *FamilyService) Join(actor Identity, id, code string) (*FamilyDetail, error) {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var family models.Family
		if err := tx.Where("id = ? AND invite_code = ?", id, code).First(&family).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidInvite
			}
			return Upstream("failed to load family", err)
		}
		return s.addMember(tx, &family, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(actor, id)
}

// JoinByCode finds the family by invite code alone and joins it.
func (s *FamilyService) JoinByCode(actor Identity, code string) (*FamilyDetail, error) {
	var family models.Family
	if err := s.DB.Where("invite_code = ?", code).First(&family).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidInvite
		}
		return nil, Upstream("failed to load family", err)
	}
	return s.Join(actor, family.ID, code)
}

func (s *FamilyService) addMember(tx *gorm.DB, family *models.Family, actor Identity) error {
	var existing int64
	if err := tx.Model(&models.FamilyMember{}).
		Where("family_id = ? AND user_id = ?", family.ID, actor.UserID).
		Count(&existing).Error; err != nil {
		return Upstream("failed to check membership", err)
	}
	if existing > 0 {
		return ErrAlreadyMember
	}

	// Conditional increment so two joiners cannot both take the last seat.
	res := tx.Model(&models.Family{}).
		Where("id = ? AND member_count < max_members", family.ID).
		Update("member_count", gorm.Expr("member_count + 1"))
	if res.Error != nil {
		return Upstream("failed to update member count", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrFamilyFull
	}

	member := models.FamilyMember{FamilyID: family.ID, UserID: actor.UserID, Role: models.FamilyRoleMember}
	if err := tx.Create(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyMember
		}
		return Upstream("failed to add member", err)
	}
	log.Printf("👪 [FAMILY] %s joined %q", actor.Username, family.Name)
	return nil
}

// Leave removes the caller from the family. An owner leaving a family that still has
// other members must hand ownership to transferTo. The last member leaving deletes it.
func (s *FamilyService) Leave(actor Identity, id, transferTo string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		m, err := membership(tx, id, actor.UserID)
		if err != nil {
			return err
		}

		var others int64
		if err := tx.Model(&models.FamilyMember{}).
			Where("family_id = ? AND user_id <> ?", id, actor.UserID).
			Count(&others).Error; err != nil {
			return Upstream("failed to count members", err)
		}
		if others == 0 {
			return deleteFamily(tx, id)
		}

		if m.IsOwner() {
			if transferTo == "" {
				return ErrOwnerMustTransfer
			}
			if err := transferOwnership(tx, id, m, transferTo); err != nil {
				return err
			}
		}

		if err := tx.Delete(m).Error; err != nil {
			return Upstream("failed to leave family", err)
		}
		if err := tx.Model(&models.Family{}).Where("id = ?", id).
			Update("member_count", gorm.Expr("member_count - 1")).Error; err != nil {
			return Upstream("failed to update member count", err)
		}
		log.Printf("👋 [FAMILY] %s left family %s", actor.Username, id)
		return nil
	})
}

// transferOwnership demotes current and promotes the member with user id newOwnerID.
func transferOwnership(tx *gorm.DB, familyID string, current *models.FamilyMember, newOwnerID string) error {
	var next models.FamilyMember
	if err := tx.Where("family_id = ? AND user_id = ?", familyID, newOwnerID).First(&next).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Validation("invalid_transfer", "ownership can only be transferred to another member")
		}
		return Upstream("failed to load member", err)
	}
	if next.ID == current.ID {
		return Validation("invalid_transfer", "ownership can only be transferred to another member")
	}
	if err := tx.Model(current).Update("role", models.FamilyRoleMember).Error; err != nil {
		return Upstream("failed to demote owner", err)
	}
	if err := tx.Model(&next).Update("role", models.FamilyRoleOwner).Error; err != nil {
		return Upstream("failed to promote member", err)
	}
	if err := tx.Model(&models.Family{}).Where("id = ?", familyID).Update("creator_id", newOwnerID).Error; err != nil {
		return Upstream("failed to update family owner", err)
	}
	current.Role = models.FamilyRoleMember
	return nil
}

// UpdateMember changes a member's nickname or role. Setting role owner transfers
// ownership. Owner only.
func (s *FamilyService) UpdateMember(actor Identity, familyID, memberID string, in UpdateMemberInput) (*models.FamilyMember, error) {
	var target models.FamilyMember
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		owner, err := ownerMembership(tx, familyID, actor.UserID)
		if err != nil {
			return err
		}
		if err := tx.Where("id = ? AND family_id = ?", memberID, familyID).First(&target).Error; err != nil {
			return notFoundOr(err, "member")
		}

		if in.Nickname != nil {
			if err := tx.Model(&target).Update("nickname", utils.NormalizeText(*in.Nickname)).Error; err != nil {
				return Upstream("failed to update member", err)
			}
		}
		if in.Role != nil && *in.Role != target.Role {
			switch *in.Role {
			case models.FamilyRoleOwner:
				if err := transferOwnership(tx, familyID, owner, target.UserID); err != nil {
					return err
				}
			case models.FamilyRoleMember:
				return Validation("invalid_transfer", "transfer ownership to another member to step down")
			}
		}
		return tx.Preload("User").Where("id = ?", memberID).First(&target).Error
	})
	if err != nil {
		return nil, err
	}
	return &target, nil
}

// RemoveMember removes another member from the family. Owner only.
func (s *FamilyService) RemoveMember(actor Identity, familyID, memberID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if _, err := ownerMembership(tx, familyID, actor.UserID); err != nil {
			return err
		}
		var target models.FamilyMember
		if err := tx.Where("id = ? AND family_id = ?", memberID, familyID).First(&target).Error; err != nil {
			return notFoundOr(err, "member")
		}
		if target.UserID == actor.UserID {
			return Validation("validation_failed", "use leave to remove yourself")
		}
		if err := tx.Delete(&target).Error; err != nil {
			return Upstream("failed to remove member", err)
		}
		return tx.Model(&models.Family{}).Where("id = ?", familyID).
			Update("member_count", gorm.Expr("member_count - 1")).Error
	})
}

// MostActiveMember is the member with the most activities this month.
type MostActiveMember struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	ActivityCount int64  `json:"activity_count"`
}

type FamilyStats struct {
	TotalActivities        int64             `json:"total_activities"`
	TotalPoints            int64             `json:"total_points"`
	MemberCount            int               `json:"member_count"`
	ActivitiesThisWeek     int64             `json:"activities_this_week"`
	ActivitiesThisMonth    int64             `json:"activities_this_month"`
	PointsThisWeek         int64             `json:"points_this_week"`
	PointsThisMonth        int64             `json:"points_this_month"`
	AveragePointsPerMember float64           `json:"average_points_per_member"`
	MostActiveMember       *MostActiveMember `json:"most_active_member,omitempty"`
	FavoriteCategory       string            `json:"favorite_category,omitempty"`
	MonthlyGoalProgress    float64           `json:"monthly_goal_progress"`
}

// Stats summarizes family activity for the current week and month. Members only.
func (s *FamilyService) Stats(actor Identity, id string) (*FamilyStats, error) {
	if _, err := membership(s.DB, id, actor.UserID); err != nil {
		return nil, err
	}
	var family models.Family
	if err := s.DB.Where("id = ?", id).First(&family).Error; err != nil {
		return nil, notFoundOr(err, "family")
	}

	now := s.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	stats := &FamilyStats{
		TotalActivities: family.TotalActivities,
		TotalPoints:     family.TotalPoints,
		MemberCount:     family.MemberCount,
	}
	if family.MemberCount > 0 {
		stats.AveragePointsPerMember = float64(family.TotalPoints) / float64(family.MemberCount)
	}

	var week, month PeriodSummary
	if err := s.familyPeriod(id, weekStart(now), &week); err != nil {
		return nil, err
	}
	if err := s.familyPeriod(id, monthStart, &month); err != nil {
		return nil, err
	}
	stats.ActivitiesThisWeek, stats.PointsThisWeek = week.Activities, week.Points
	stats.ActivitiesThisMonth, stats.PointsThisMonth = month.Activities, month.Points

	var top []MostActiveMember
	if err := s.DB.Table("activities").
		Select("activities.user_id, users.username, COUNT(*) AS activity_count").
		Joins("JOIN users ON users.id = activities.user_id").
		Where("activities.family_id = ? AND activities.activity_date >= ? AND activities.deleted_at IS NULL", id, monthStart).
		Group("activities.user_id, users.username").
		Order("activity_count DESC").
		Limit(1).
		Scan(&top).Error; err != nil {
		return nil, Upstream("failed to find most active member", err)
	}
	if len(top) > 0 {
		stats.MostActiveMember = &top[0]
	}

	var fav []struct {
		Category string
		Count    int64
	}
	if err := s.DB.Model(&models.Activity{}).
		Select("category, COUNT(*) AS count").
		Where("family_id = ? AND activity_date >= ?", id, monthStart).
		Group("category").Order("count DESC").Limit(1).
		Scan(&fav).Error; err != nil {
		return nil, Upstream("failed to find favorite category", err)
	}
	if len(fav) > 0 {
		stats.FavoriteCategory = fav[0].Category
	}

	if family.MonthlyTargetPoints > 0 {
		progress := float64(stats.PointsThisMonth) / float64(family.MonthlyTargetPoints) * 100
		if progress > 100 {
			progress = 100
		}
		stats.MonthlyGoalProgress = progress
	}
	return stats, nil
}

func (s *FamilyService) familyPeriod(familyID string, since time.Time, out *PeriodSummary) error {
	err := s.DB.Model(&models.Activity{}).
		Select("COUNT(*) AS activities, COALESCE(SUM(points), 0) AS points").
		Where("family_id = ? AND activity_date >= ?", familyID, since).
		Scan(out).Error
	if err != nil {
		return Upstream("failed to summarize family activities", err)
	}
	return nil
}
