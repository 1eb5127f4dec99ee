package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes short-lived access tokens from long-lived refresh tokens.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

var (
	// ErrInvalidToken is the parent of every token verification failure.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when the token is past its expiry.
	ErrTokenExpired = fmt.Errorf("%w: token has expired", ErrInvalidToken)
	// ErrTokenMalformed is returned on a bad signature, structure or algorithm.
	ErrTokenMalformed = fmt.Errorf("%w: token is malformed", ErrInvalidToken)
	// ErrWrongTokenType is returned when an access token is used as a refresh token or vice versa.
	ErrWrongTokenType = fmt.Errorf("%w: wrong token type", ErrInvalidToken)
)

// TokenConfig holds JWT signing settings.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims are the JWT claims carried by every token.
type Claims struct {
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// UserID is the token subject.
func (c *Claims) UserID() string { return c.Subject }

// IssuedToken is a freshly signed token plus the metadata callers persist or return.
type IssuedToken struct {
	Token     string
	ID        string
	Type      TokenType
	ExpiresAt time.Time
}

// TokenService signs and verifies tokens. It holds no state besides its configuration.
type TokenService struct {
	config TokenConfig
	now    func() time.Time
}

func NewTokenService(config TokenConfig) *TokenService {
	return &TokenService{config: config, now: time.Now}
}

// WithClock returns a copy of the service that reads time from now.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *s
	cp.now = now
	return &cp
}

// Issue signs a token of the given type for userID.
func (s *TokenService) Issue(userID string, tokenType TokenType) (IssuedToken, error) {
	var ttl time.Duration
	switch tokenType {
	case AccessToken:
		ttl = s.config.AccessTTL
	case RefreshToken:
		ttl = s.config.RefreshTTL
	default:
		return IssuedToken{}, fmt.Errorf("unknown token type %q", tokenType)
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return IssuedToken{}, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return IssuedToken{
		Token:     signed,
		ID:        claims.ID,
		Type:      tokenType,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks signature, expiry and type. Failures are ErrTokenExpired,
// ErrTokenMalformed or ErrWrongTokenType, all of which match ErrInvalidToken.
func (s *TokenService) Verify(tokenString string, expected TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(s.config.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	if claims.TokenType != expected {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// AccessTTL is how long access tokens live.
func (s *TokenService) AccessTTL() time.Duration { return s.config.AccessTTL }
