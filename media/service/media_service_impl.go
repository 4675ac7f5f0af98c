package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wricardo/mediatracker/media/config"
	"github.com/wricardo/mediatracker/media/event"
	"github.com/wricardo/mediatracker/media/session"
)

// mediaServiceImpl implements the MediaService interface
type mediaServiceImpl struct {
	processor Processor
	presets   PresetManager
	logger    *slog.Logger
}

// NewMediaService creates a media service over p. presets may be nil, in
// which case the preset operations report config.ErrPresetNotFound.
func NewMediaService(p Processor, presets PresetManager, logger *slog.Logger) MediaService {
	if logger == nil {
		logger = slog.Default()
	}
	return &mediaServiceImpl{
		processor: p,
		presets:   presets,
		logger:    logger,
	}
}

// CreateSession registers a new session with the processor
func (s *mediaServiceImpl) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, err := s.processor.CreateSession(req.TrackerConfig, req.TrackerSessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.InfoContext(ctx, "session created", "session", id, "tracker_session", req.TrackerSessionID)

	// Status is reported as registered; the processor may already have moved
	// on by the time the caller reads it.
	return &SessionInfo{
		ID:               id,
		TrackerSessionID: req.TrackerSessionID,
		Status:           session.Active,
	}, nil
}

// ListSessions returns all registered sessions
func (s *mediaServiceImpl) ListSessions(ctx context.Context) ([]*SessionInfo, error) {
	infos := s.processor.Sessions()
	result := make([]*SessionInfo, 0, len(infos))

	for _, info := range infos {
		result = append(result, &SessionInfo{
			ID:               info.ID,
			TrackerSessionID: info.TrackerSessionID,
			Status:           info.Status,
			CreatedAt:        info.CreatedAt,
		})
	}

	return result, nil
}

// TrackEvent validates ev and forwards it to the session
func (s *mediaServiceImpl) TrackEvent(ctx context.Context, sessionID string, ev event.XDMEvent) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	if err := event.Validate(ev); err != nil {
		return err
	}

	s.processor.ProcessEvent(sessionID, ev)
	return nil
}

// EndSession asks the session to finish once its events are sent
func (s *mediaServiceImpl) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}

	s.processor.EndSession(sessionID)
	return nil
}

// AbortAllSessions aborts every active session
func (s *mediaServiceImpl) AbortAllSessions(ctx context.Context) error {
	s.processor.AbortAllSessions()
	s.logger.InfoContext(ctx, "aborting all sessions")
	return nil
}

// UpdateState replaces the shared state
func (s *mediaServiceImpl) UpdateState(ctx context.Context, data map[string]any) error {
	s.processor.UpdateSharedState(data)
	return nil
}

// GetState returns the current shared state. It reflects updates that the
// processor has already applied.
func (s *mediaServiceImpl) GetState(ctx context.Context) (*StateInfo, error) {
	st := s.processor.SharedState()
	return &StateInfo{
		State: st.Snapshot(),
		Ready: st.Ready(),
	}, nil
}

// ListPresets returns the available presets
func (s *mediaServiceImpl) ListPresets(ctx context.Context) ([]*config.PresetInfo, error) {
	if s.presets == nil {
		return []*config.PresetInfo{}, nil
	}

	presets, err := s.presets.ListPresets()
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	if presets == nil {
		presets = []*config.PresetInfo{}
	}
	return presets, nil
}

// ApplyPreset loads a preset and submits its state as the shared state
func (s *mediaServiceImpl) ApplyPreset(ctx context.Context, name string) (*config.Preset, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: preset name is required", ErrInvalidRequest)
	}
	if s.presets == nil {
		return nil, config.ErrPresetNotFound
	}

	preset, err := s.presets.LoadPreset(name)
	if err != nil {
		if errors.Is(err, config.ErrPresetNotFound) {
			return nil, fmt.Errorf("preset '%s': %w", name, err)
		}
		return nil, fmt.Errorf("failed to load preset %s: %w", name, err)
	}

	s.processor.UpdateSharedState(preset.State)
	s.logger.InfoContext(ctx, "applied preset", "preset", name)
	return preset, nil
}

// NotifySessionUpdate broadcasts a backend session ID to all sessions
func (s *mediaServiceImpl) NotifySessionUpdate(ctx context.Context, requestEventID, backendSessionID string) error {
	if requestEventID == "" {
		return fmt.Errorf("%w: request event id is required", ErrInvalidRequest)
	}

	s.processor.NotifyBackendSessionID(requestEventID, backendSessionID)
	return nil
}

// NotifyError broadcasts a backend error response to all sessions
func (s *mediaServiceImpl) NotifyError(ctx context.Context, requestEventID string, data map[string]any) error {
	if requestEventID == "" {
		return fmt.Errorf("%w: request event id is required", ErrInvalidRequest)
	}

	s.processor.NotifyErrorResponse(requestEventID, data)
	return nil
}
