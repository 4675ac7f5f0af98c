// Package state holds the configuration snapshot shared by every media
// session. There is exactly one State per processor; sessions keep a pointer
// to it, so a replacement is visible to all of them at once.
package state

import (
	"sync"
)

// Configuration keys read by sessions.
const (
	KeyChannel    = "edgemedia.channel"
	KeyPlayerName = "edgemedia.playerName"
	KeyAppVersion = "edgemedia.appVersion"
)

// State is the shared configuration snapshot.
type State struct {
	mu   sync.RWMutex
	data map[string]any
}

// New returns an empty State.
func New() *State {
	return &State{data: map[string]any{}}
}

// Update replaces the whole snapshot. A nil map clears it.
func (s *State) Update(data map[string]any) {
	next := make(map[string]any, len(data))
	for k, v := range data {
		next[k] = v
	}

	s.mu.Lock()
	s.data = next
	s.mu.Unlock()
}

// Snapshot returns a copy of the current configuration.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Get returns a single configuration value.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *State) getString(key string) string {
	v, ok := s.Get(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// Channel is the distribution channel configured for media tracking.
func (s *State) Channel() string {
	return s.getString(KeyChannel)
}

// PlayerName is the configured media player name.
func (s *State) PlayerName() string {
	return s.getString(KeyPlayerName)
}

// AppVersion is the configured application version.
func (s *State) AppVersion() string {
	return s.getString(KeyAppVersion)
}

// Ready reports whether enough configuration is present to send events.
func (s *State) Ready() bool {
	return s.Channel() != ""
}
