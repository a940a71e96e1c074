package session

import (
	"strings"
	"testing"
)

func TestPathsAreScopedToSession(t *testing.T) {
	name := "field-ops"
	for desc, p := range map[string]string{
		"lock": LockPath(name),
		"db":   DBPath(name),
		"log":  LogPath(name),
	} {
		if !strings.Contains(p, "sessions/"+name) {
			t.Errorf("%s path %q not scoped to session %q", desc, p, name)
		}
	}
}

func TestConfigPathOutsideSessions(t *testing.T) {
	if strings.Contains(ConfigPath(), "sessions") {
		t.Errorf("config path %q should be global, not per session", ConfigPath())
	}
}
