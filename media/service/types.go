package service

import (
	"time"

	"github.com/wricardo/mediatracker/media/session"
)

// CreateSessionRequest carries the tracker settings for a new session.
type CreateSessionRequest struct {
	TrackerConfig    map[string]any `json:"tracker_config,omitempty"`
	TrackerSessionID string         `json:"tracker_session_id,omitempty"`
}

// SessionInfo provides information about a media session
type SessionInfo struct {
	ID               string         `json:"id"`
	TrackerSessionID string         `json:"tracker_session_id,omitempty"`
	Status           session.Status `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

// StateInfo is the shared state as seen by sessions.
type StateInfo struct {
	State map[string]any `json:"state"`
	Ready bool           `json:"ready"`
}
