package domain

import (
	"fmt"
	"strings"
)

// =============================================================================
// Application IDs
// =============================================================================

// maxAppIDLength keeps generated container and network names within
// Docker's limits once the compose suffixes are appended.
const maxAppIDLength = 63

// AppIDFromName derives an application id from a display name.
//
// The transformation rules are:
//   - Letters are lowercased; digits are kept
//   - Runs of spaces, hyphens, underscores and dots become one hyphen
//   - All other characters are removed
//   - Leading and trailing hyphens are trimmed
//
// Example:
//
//	AppIDFromName("My App 2.0!")   // returns "my-app-2-0"
//	AppIDFromName("  Jellyfin  ")  // returns "jellyfin"
func AppIDFromName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			pendingSep = true
		}
	}
	id := b.String()
	if len(id) > maxAppIDLength {
		id = strings.TrimRight(id[:maxAppIDLength], "-")
	}
	return id
}

// ValidateAppID checks that id is usable as a compose project name:
// lowercase letters, digits, '-' and '_', starting with a letter or digit.
func ValidateAppID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidAppID)
	}
	if len(id) > maxAppIDLength {
		return fmt.Errorf("%w: %q exceeds %d characters", ErrInvalidAppID, id, maxAppIDLength)
	}
	for i, r := range id {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if i == 0 && !alnum {
			return fmt.Errorf("%w: %q must start with a letter or digit", ErrInvalidAppID, id)
		}
		if !alnum && r != '-' && r != '_' {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidAppID, id, r)
		}
	}
	return nil
}
