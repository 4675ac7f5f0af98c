package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/mediatracker/media/event"
	"github.com/wricardo/mediatracker/media/state"
)

// Tracker configuration keys understood by RealTimeSession.
const (
	ConfigChannel           = "config.channel"
	ConfigDownloadedContent = "config.downloadedcontent"
)

// Config describes a RealTimeSession.
type Config struct {
	ID               string
	TrackerSessionID string
	TrackerConfig    map[string]any
	State            *state.State
	Dispatcher       event.Dispatcher
	Logger           *slog.Logger

	// RequestID generates request event IDs. Defaults to uuid.NewString.
	RequestID func() string
}

// ErrorResponse is a backend error received for one of the session's requests.
type ErrorResponse struct {
	RequestEventID string
	EventType      event.EventType
	Data           map[string]any
	ReceivedAt     time.Time
}

// RealTimeSession sends each event downstream as soon as it can: the
// sessionStart goes out immediately, later events wait until the backend has
// returned a session ID for that start request.
type RealTimeSession struct {
	id               string
	trackerSessionID string
	trackerConfig    map[string]any
	state            *state.State
	dispatch         event.Dispatcher
	logger           *slog.Logger
	newRequestID     func() string

	mu               sync.Mutex
	closed           bool
	aborted          bool
	rejected         bool
	startRequestID   string
	backendSessionID string
	requests         map[string]event.EventType
	pending          []event.XDMEvent
	waiters          []*Completion
	errors           []ErrorResponse
	sent             int
}

// NewRealTimeSession creates a session bound to cfg.State.
func NewRealTimeSession(cfg Config) *RealTimeSession {
	s := &RealTimeSession{
		id:               cfg.ID,
		trackerSessionID: cfg.TrackerSessionID,
		trackerConfig:    cfg.TrackerConfig,
		state:            cfg.State,
		dispatch:         cfg.Dispatcher,
		logger:           cfg.Logger,
		newRequestID:     cfg.RequestID,
		requests:         make(map[string]event.EventType),
	}
	if s.state == nil {
		s.state = state.New()
	}
	if s.dispatch == nil {
		s.dispatch = event.Discard
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.newRequestID == nil {
		s.newRequestID = uuid.NewString
	}
	s.logger = s.logger.With("session", s.id)
	return s
}

// Queue implements Session.
func (s *RealTimeSession) Queue(ev event.XDMEvent) {
	s.mu.Lock()
	if s.closed || s.rejected {
		s.mu.Unlock()
		s.logger.Debug("dropping event for inactive session", "event_type", ev.Type)
		return
	}
	s.pending = append(s.pending, ev)
	out, done := s.flushLocked()
	s.mu.Unlock()

	s.emit(out, done)
}

// HandleStateUpdate implements Session. Events held back for missing
// configuration are retried.
func (s *RealTimeSession) HandleStateUpdate() {
	s.mu.Lock()
	out, done := s.flushLocked()
	s.mu.Unlock()

	s.emit(out, done)
}

// HandleSessionUpdate implements Session. Only the acknowledgement for this
// session's own sessionStart request is accepted. An empty backend ID means
// the backend refused the session.
func (s *RealTimeSession) HandleSessionUpdate(requestEventID, backendSessionID string) {
	s.mu.Lock()
	if s.startRequestID == "" || requestEventID != s.startRequestID {
		s.mu.Unlock()
		return
	}
	if s.backendSessionID != "" {
		s.mu.Unlock()
		s.logger.Debug("backend session id already set", "backend_session_id", s.backendSessionID)
		return
	}

	var out []event.Record
	var done []*Completion
	if backendSessionID == "" {
		s.logger.Warn("backend returned no session id, discarding session")
		done = s.rejectLocked()
	} else {
		s.backendSessionID = backendSessionID
		s.logger.Debug("received backend session id", "backend_session_id", backendSessionID)
		out, done = s.flushLocked()
	}
	s.mu.Unlock()

	s.emit(out, done)
}

// HandleErrorResponse implements Session. Errors for requests this session
// did not issue are ignored.
func (s *RealTimeSession) HandleErrorResponse(requestEventID string, data map[string]any) {
	s.mu.Lock()
	typ, ok := s.requests[requestEventID]
	if !ok {
		s.mu.Unlock()
		return
	}

	s.errors = append(s.errors, ErrorResponse{
		RequestEventID: requestEventID,
		EventType:      typ,
		Data:           data,
		ReceivedAt:     time.Now(),
	})

	var done []*Completion
	if typ == event.SessionStart {
		s.logger.Warn("session start rejected by backend", "request_event_id", requestEventID)
		done = s.rejectLocked()
	} else {
		s.logger.Debug("backend error for request", "request_event_id", requestEventID, "event_type", typ)
	}
	s.mu.Unlock()

	s.emit(nil, done)
}

// End implements Session. c is resolved once every queued event has been
// sent, or at once if nothing is pending.
func (s *RealTimeSession) End(c *Completion) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		c.Resolve()
		return
	}
	s.closed = true
	s.waiters = append(s.waiters, c)
	out, done := s.flushLocked()
	s.mu.Unlock()

	s.emit(out, done)
}

// Abort implements Session. Pending events are discarded.
func (s *RealTimeSession) Abort(c *Completion) {
	s.mu.Lock()
	s.closed = true
	s.aborted = true
	if n := len(s.pending); n > 0 {
		s.logger.Debug("discarding pending events on abort", "count", n)
	}
	s.pending = nil
	done := append(s.waiters, c)
	s.waiters = nil
	s.mu.Unlock()

	s.emit(nil, done)
}

// BackendSessionID returns the ID assigned by the backend, if any.
func (s *RealTimeSession) BackendSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backendSessionID
}

// Pending returns the number of events not yet sent.
func (s *RealTimeSession) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sent returns the number of records handed to the dispatcher.
func (s *RealTimeSession) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Rejected reports whether the backend refused the session.
func (s *RealTimeSession) Rejected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rejected
}

// ErrorResponses returns the backend errors matched to this session.
func (s *RealTimeSession) ErrorResponses() []ErrorResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ErrorResponse, len(s.errors))
	copy(out, s.errors)
	return out
}

// flushLocked moves as many pending events as possible into records and
// returns the waiters to resolve if the queue drained while ending.
func (s *RealTimeSession) flushLocked() ([]event.Record, []*Completion) {
	var out []event.Record

	for len(s.pending) > 0 && !s.rejected {
		if !s.state.Ready() {
			break
		}

		ev := s.pending[0]
		switch {
		case ev.Type == event.SessionStart:
			if s.startRequestID != "" {
				s.logger.Debug("ignoring duplicate sessionStart")
				break
			}
			rec := s.recordLocked(ev)
			s.startRequestID = rec.RequestEventID
			out = append(out, rec)

		case s.startRequestID == "":
			s.logger.Debug("dropping event received before sessionStart", "event_type", ev.Type)

		case s.backendSessionID == "":
			return out, s.drainedLocked()

		default:
			out = append(out, s.recordLocked(ev))
		}
		s.pending = s.pending[1:]
	}

	return out, s.drainedLocked()
}

func (s *RealTimeSession) drainedLocked() []*Completion {
	if !s.closed || len(s.waiters) == 0 {
		return nil
	}
	if len(s.pending) > 0 && !s.rejected {
		return nil
	}
	done := s.waiters
	s.waiters = nil
	return done
}

func (s *RealTimeSession) rejectLocked() []*Completion {
	s.rejected = true
	s.pending = nil
	done := s.waiters
	s.waiters = nil
	return done
}

func (s *RealTimeSession) recordLocked(ev event.XDMEvent) event.Record {
	mc := event.CloneXDM(ev.XDM)
	mc["playhead"] = ev.Playhead
	if s.backendSessionID != "" {
		mc["sessionID"] = s.backendSessionID
	}
	if ev.Type == event.SessionStart {
		mc["sessionDetails"] = s.sessionDetails(ev.XDM["sessionDetails"])
	}

	rec := event.Record{
		RequestEventID:   s.newRequestID(),
		SessionID:        s.id,
		BackendSessionID: s.backendSessionID,
		TrackerSessionID: s.trackerSessionID,
		Type:             ev.Type,
		Timestamp:        ev.Timestamp,
		MediaCollection:  mc,
	}
	s.requests[rec.RequestEventID] = ev.Type
	s.sent++
	return rec
}

// sessionDetails fills in the fields sourced from shared state and tracker
// configuration without overwriting what the player reported.
func (s *RealTimeSession) sessionDetails(reported any) map[string]any {
	details := map[string]any{}
	if m, ok := reported.(map[string]any); ok {
		for k, v := range m {
			details[k] = v
		}
	}

	channel := s.state.Channel()
	if c, ok := s.trackerConfig[ConfigChannel].(string); ok && c != "" {
		channel = c
	}
	setDefault(details, "channel", channel)
	setDefault(details, "playerName", s.state.PlayerName())
	setDefault(details, "appVersion", s.state.AppVersion())
	if downloaded, ok := s.trackerConfig[ConfigDownloadedContent].(bool); ok && downloaded {
		details["isDownloaded"] = true
	}
	return details
}

func setDefault(m map[string]any, key, value string) {
	if value == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func (s *RealTimeSession) emit(out []event.Record, done []*Completion) {
	for _, rec := range out {
		s.dispatch(rec)
	}
	for _, c := range done {
		c.Resolve()
	}
}
