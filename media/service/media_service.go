package service

import (
	"context"
	"errors"

	"github.com/wricardo/mediatracker/media/config"
	"github.com/wricardo/mediatracker/media/event"
	"github.com/wricardo/mediatracker/media/processor"
	"github.com/wricardo/mediatracker/media/state"
)

// ErrInvalidRequest is returned when a call is missing required arguments.
var ErrInvalidRequest = errors.New("invalid request")

// MediaService defines all media tracking operations
type MediaService interface {
	// Session Management
	CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error)
	ListSessions(ctx context.Context) ([]*SessionInfo, error)
	TrackEvent(ctx context.Context, sessionID string, ev event.XDMEvent) error
	EndSession(ctx context.Context, sessionID string) error
	AbortAllSessions(ctx context.Context) error

	// Shared State
	UpdateState(ctx context.Context, data map[string]any) error
	GetState(ctx context.Context) (*StateInfo, error)

	// Presets
	ListPresets(ctx context.Context) ([]*config.PresetInfo, error)
	ApplyPreset(ctx context.Context, name string) (*config.Preset, error)

	// Backend responses
	NotifySessionUpdate(ctx context.Context, requestEventID, backendSessionID string) error
	NotifyError(ctx context.Context, requestEventID string, data map[string]any) error
}

// Processor is the subset of *processor.Processor used by the service.
type Processor interface {
	CreateSession(trackerConfig map[string]any, trackerSessionID string) (string, error)
	ProcessEvent(id string, ev event.XDMEvent)
	EndSession(id string)
	AbortAllSessions()
	UpdateSharedState(data map[string]any)
	NotifyBackendSessionID(requestEventID, backendSessionID string)
	NotifyErrorResponse(requestEventID string, data map[string]any)
	Sessions() []processor.Info
	SharedState() *state.State
}

// PresetManager loads shared-state presets
type PresetManager interface {
	LoadPreset(name string) (*config.Preset, error)
	ListPresets() ([]*config.PresetInfo, error)
}
