package tui

import (
	"sync"
	"time"
)

// flash holds a transient notification shown in the status bar.
type flash struct {
	mu      sync.RWMutex
	message string
	expires time.Time
}

// Set stores a flash message that expires after the given duration.
func (f *flash) Set(msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.expires = time.Now().Add(d)
}

// Get returns the current flash message, or empty if expired.
func (f *flash) Get() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return ""
	}
	return f.message
}
