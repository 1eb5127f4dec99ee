package utils

import (
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the bcrypt cost used outside tests.
const DefaultBcryptCost = 12

// PasswordHasher hashes and verifies passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordIssues lists the strength rules a password breaks. Empty means acceptable.
func PasswordIssues(password string) []string {
	var hasLower, hasUpper, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	var issues []string
	if len([]rune(password)) < 8 {
		issues = append(issues, "password must be at least 8 characters")
	}
	if !hasLower {
		issues = append(issues, "password must contain a lowercase letter")
	}
	if !hasUpper {
		issues = append(issues, "password must contain an uppercase letter")
	}
	if !hasDigit {
		issues = append(issues, "password must contain a digit")
	}
	return issues
}
