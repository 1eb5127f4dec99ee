package utils

import (
	"crypto/rand"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NormalizeText applies NFKC and trims surrounding whitespace, so full-width and
// composed forms of the same name compare equal.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UsernameIssues lists the rules a username breaks. Empty means acceptable.
func UsernameIssues(username string) []string {
	var issues []string
	if n := len(username); n < 3 || n > 50 {
		issues = append(issues, "username must be between 3 and 50 characters")
	}
	if !usernamePattern.MatchString(username) {
		issues = append(issues, "username may only contain letters, digits, underscores and hyphens")
	}
	if strings.HasPrefix(username, "-") || strings.HasSuffix(username, "-") {
		issues = append(issues, "username cannot start or end with a hyphen")
	}
	return issues
}

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// InviteCodeLength is the length of generated family invite codes.
const InviteCodeLength = 8

// GenerateInviteCode returns a random code of InviteCodeLength characters from A-Z0-9.
func GenerateInviteCode() (string, error) {
	buf := make([]byte, InviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf), nil
}
