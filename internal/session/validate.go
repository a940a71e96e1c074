package session

import (
	"fmt"
	"regexp"
)

// Session names key directories under ~/.provision-chat/sessions and ride
// in file paths, so they stay lowercase filesystem-safe slugs.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that a session name is usable as a directory name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid session name %q: use 1-64 lowercase letters, digits, '-' or '_'", name)
	}
	return nil
}
