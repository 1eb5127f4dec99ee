package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Eco Family", NormalizeText("  Ｅｃｏ Family \n"))
	assert.Equal(t, "kim@example.com", NormalizeEmail("  Kim@Example.COM "))
}

func TestUsernameIssues(t *testing.T) {
	tests := []struct {
		username string
		valid    bool
	}{
		{"eco_kim", true},
		{"kim-2", true},
		{"ab", false},
		{"has space", false},
		{"-kim", false},
		{"kim-", false},
		{"한글이름", false},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			assert.Equal(t, tt.valid, len(UsernameIssues(tt.username)) == 0)
		})
	}
}

func TestGenerateInviteCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateInviteCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{8}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}
