package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"we-planet-api/config"
	"we-planet-api/metrics"
	"we-planet-api/models"
	"we-planet-api/utils"

	"gorm.io/gorm"
)

// AuthService owns the credential store and the refresh token records.
type AuthService struct {
	DB     *gorm.DB
	Tokens *TokenService
	Hasher *utils.PasswordHasher
	Policy config.RefreshPolicy
	now    func() time.Time
}

func NewAuthService(db *gorm.DB, tokens *TokenService, hasher *utils.PasswordHasher, policy config.RefreshPolicy) *AuthService {
	return &AuthService{DB: db, Tokens: tokens, Hasher: hasher, Policy: policy, now: time.Now}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"max=100"`
}

type LoginInput struct {
	// Identifier is an email address or a username.
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// TokenPair is returned by register and login.
type TokenPair struct {
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	TokenType        string       `json:"token_type"`
	ExpiresIn        int64        `json:"expires_in"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	User             *models.User `json:"user"`
}

// AccessTokenResponse is returned by refresh.
type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func invalidToken(err error) *AppError {
	e := newError(KindAuthentication, "invalid_token", "invalid or expired token")
	e.Err = err
	return e
}

// Register creates an active user and logs them in.
func (s *AuthService) Register(in RegisterInput) (*TokenPair, error) {
	email := utils.NormalizeEmail(in.Email)
	username := utils.NormalizeText(in.Username)

	issues := append(utils.UsernameIssues(username), utils.PasswordIssues(in.Password)...)
	if len(issues) > 0 {
		return nil, Validation("validation_failed", "registration data is invalid").WithDetails(issues)
	}

	if taken, err := s.exists("email = ?", email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}
	if taken, err := s.exists("username = ?", username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return nil, Upstream("failed to hash password", err)
	}

	user := models.User{
		Email:           email,
		Username:        username,
		PasswordHash:    hash,
		FullName:        utils.NormalizeText(in.FullName),
		IsActive:        true,
		IsPublicProfile: true,
		Level:           1,
	}
	if err := s.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, Conflict("user_exists", "email or username is already registered")
		}
		return nil, Upstream("failed to create user", err)
	}
	log.Printf("✅ [AUTH] registered user %s (%s)", user.Username, user.ID)

	return s.issuePair(&user)
}

// exists reports whether any user, including soft-deleted ones, matches the condition.
func (s *AuthService) exists(query string, arg any) (bool, error) {
	var count int64
	if err := s.DB.Unscoped().Model(&models.User{}).Where(query, arg).Count(&count).Error; err != nil {
		return false, Upstream("failed to check user", err)
	}
	return count > 0, nil
}

// Available reports whether an email or username can still be registered.
func (s *AuthService) Available(field, value string) (bool, error) {
	switch field {
	case "email":
		taken, err := s.exists("email = ?", utils.NormalizeEmail(value))
		return !taken, err
	case "username":
		taken, err := s.exists("username = ?", utils.NormalizeText(value))
		return !taken, err
	default:
		return false, Validation("invalid_field", "field must be email or username")
	}
}

// authenticate finds the user by email or username and checks the password. It does
// not look at is_active.
func (s *AuthService) authenticate(in LoginInput, event string) (*models.User, error) {
	identifier := strings.TrimSpace(in.Identifier)

	var user models.User
	q := s.DB.Where("username = ?", utils.NormalizeText(identifier))
	if strings.Contains(identifier, "@") {
		q = s.DB.Where("email = ?", utils.NormalizeEmail(identifier))
	}
	if err := q.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.RecordAuthEvent(event, false)
			return nil, ErrInvalidCredentials
		}
		return nil, Upstream("failed to load user", err)
	}

	if !s.Hasher.Verify(in.Password, user.PasswordHash) {
		metrics.RecordAuthEvent(event, false)
		log.Printf("⚠️ [AUTH] failed %s for %s", event, user.Username)
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// Login checks the password and issues an access and refresh token.
func (s *AuthService) Login(in LoginInput) (*TokenPair, error) {
	user, err := s.authenticate(in, "login")
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		metrics.RecordAuthEvent("login", false)
		return nil, ErrInactiveUser
	}

	now := s.now().UTC()
	if err := s.DB.Model(user).Update("last_login_at", now).Error; err != nil {
		return nil, Upstream("failed to record login", err)
	}
	user.LastLoginAt = &now

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	metrics.RecordAuthEvent("login", true)
	return pair, nil
}

// Reactivate turns a deactivated account back on after checking its password, then
// logs the user in. Deactivated users cannot pass the guard, so the credentials are
// the only proof of identity here.
func (s *AuthService) Reactivate(in LoginInput) (*TokenPair, error) {
	user, err := s.authenticate(in, "reactivate")
	if err != nil {
		return nil, err
	}
	if user.IsActive {
		metrics.RecordAuthEvent("reactivate", false)
		return nil, ErrAlreadyActive
	}

	now := s.now().UTC()
	if err := s.DB.Model(user).Updates(map[string]any{"is_active": true, "last_login_at": now}).Error; err != nil {
		return nil, Upstream("failed to reactivate user", err)
	}
	user.IsActive = true
	user.LastLoginAt = &now

	pair, err := s.issuePair(user)
	if err != nil {
		return nil, err
	}
	metrics.RecordAuthEvent("reactivate", true)
	log.Printf("🔓 [AUTH] %s reactivated", user.Username)
	return pair, nil
}

// issuePair signs both tokens and persists the refresh record. Under the single
// policy every other active refresh token of the user is revoked in the same transaction.
func (s *AuthService) issuePair(user *models.User) (*TokenPair, error) {
	access, err := s.Tokens.Issue(user.ID, AccessToken)
	if err != nil {
		return nil, Upstream("failed to issue access token", err)
	}
	refresh, err := s.Tokens.Issue(user.ID, RefreshToken)
	if err != nil {
		return nil, Upstream("failed to issue refresh token", err)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if s.Policy == config.RefreshPolicySingle {
			if err := tx.Model(&models.RefreshToken{}).
				Where("user_id = ? AND revoked_at IS NULL", user.ID).
				Update("revoked_at", s.now().UTC()).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.RefreshToken{
			ID:        refresh.ID,
			UserID:    user.ID,
			ExpiresAt: refresh.ExpiresAt.UTC(),
		}).Error
	})
	if err != nil {
		return nil, Upstream("failed to store refresh token", err)
	}

	return &TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		TokenType:        "bearer",
		ExpiresIn:        int64(s.Tokens.AccessTTL().Seconds()),
		RefreshExpiresAt: refresh.ExpiresAt,
		User:             user,
	}, nil
}

// Refresh mints one new access token from a valid, unrevoked refresh token.
func (s *AuthService) Refresh(refreshToken string) (*AccessTokenResponse, error) {
	claims, err := s.Tokens.Verify(refreshToken, RefreshToken)
	if err != nil {
		metrics.RecordAuthEvent("refresh", false)
		return nil, invalidToken(err)
	}

	var record models.RefreshToken
	if err := s.DB.Where("id = ?", claims.ID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.RecordAuthEvent("refresh", false)
			return nil, invalidToken(ErrInvalidToken)
		}
		return nil, Upstream("failed to load refresh token", err)
	}
	if !record.Active(s.now()) || record.UserID != claims.UserID() {
		metrics.RecordAuthEvent("refresh", false)
		return nil, invalidToken(ErrInvalidToken)
	}

	if _, err := s.activeUser(claims.UserID()); err != nil {
		metrics.RecordAuthEvent("refresh", false)
		return nil, err
	}

	access, err := s.Tokens.Issue(claims.UserID(), AccessToken)
	if err != nil {
		return nil, Upstream("failed to issue access token", err)
	}
	metrics.RecordAuthEvent("refresh", true)
	return &AccessTokenResponse{
		AccessToken: access.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.Tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes refreshToken, or every active refresh token of the user when it is empty.
func (s *AuthService) Logout(actor Identity, refreshToken string) error {
	q := s.DB.Model(&models.RefreshToken{}).Where("user_id = ? AND revoked_at IS NULL", actor.UserID)
	if refreshToken != "" {
		claims, err := s.Tokens.Verify(refreshToken, RefreshToken)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				return nil
			}
			return invalidToken(err)
		}
		if claims.UserID() != actor.UserID {
			return Forbidden("refresh token belongs to another user")
		}
		q = q.Where("id = ?", claims.ID)
	}

	res := q.Update("revoked_at", s.now().UTC())
	if res.Error != nil {
		return Upstream("failed to revoke refresh tokens", res.Error)
	}
	log.Printf("👋 [AUTH] %s logged out, %d refresh token(s) revoked", actor.Username, res.RowsAffected)
	return nil
}

// ResolveAccessToken verifies an access token and loads its active user.
func (s *AuthService) ResolveAccessToken(token string) (*models.User, error) {
	claims, err := s.Tokens.Verify(token, AccessToken)
	if err != nil {
		return nil, invalidToken(err)
	}
	return s.activeUser(claims.UserID())
}

func (s *AuthService) activeUser(id string) (*models.User, error) {
	var user models.User
	if err := s.DB.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidToken(ErrInvalidToken)
		}
		return nil, Upstream("failed to load user", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return &user, nil
}

// PurgeRefreshTokens deletes records that expired or were revoked before cutoff.
func (s *AuthService) PurgeRefreshTokens(cutoff time.Time) (int64, error) {
	res := s.DB.Where("expires_at < ? OR revoked_at < ?", cutoff, cutoff).Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}
