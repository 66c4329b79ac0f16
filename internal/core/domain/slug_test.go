package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// AppIDFromName Tests
// =============================================================================

func TestAppIDFromName_TableDriven(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"basic", "Hello World", "hello-world"},
		{"punctuation dropped", "My App 2.0!", "my-app-2-0"},
		{"separators collapse", "hello  __ world", "hello-world"},
		{"trimmed", "  Jellyfin  ", "jellyfin"},
		{"hyphens kept", "my-app", "my-app"},
		{"empty", "", ""},
		{"only symbols", "!@#$%", ""},
		{"unicode removed", "Héllo", "hllo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AppIDFromName(tt.input))
		})
	}
}

func TestAppIDFromName_Truncates(t *testing.T) {
	id := AppIDFromName(strings.Repeat("a", 100))
	assert.Len(t, id, maxAppIDLength)
	assert.NoError(t, ValidateAppID(id))
}

// =============================================================================
// ValidateAppID Tests
// =============================================================================

func TestValidateAppID(t *testing.T) {
	valid := []string{"myapp", "my-app", "my_app", "app2", "2fa"}
	for _, id := range valid {
		assert.NoError(t, ValidateAppID(id), id)
	}

	invalid := []string{"", "-app", "_app", "My-App", "my.app", "my app", strings.Repeat("x", 64)}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateAppID(id), ErrInvalidAppID, id)
	}
}
