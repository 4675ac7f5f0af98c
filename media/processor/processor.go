package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/mediatracker/media/event"
	"github.com/wricardo/mediatracker/media/session"
	"github.com/wricardo/mediatracker/media/state"
)

// LevelTrace is below slog.LevelDebug and used for per-operation traces.
const LevelTrace = slog.Level(-8)

// ErrClosed is returned by CreateSession after Close.
var ErrClosed = errors.New("processor closed")

// Params is handed to a Factory when a session is created.
type Params struct {
	ID               string
	TrackerSessionID string
	TrackerConfig    map[string]any
	State            *state.State
	Dispatcher       event.Dispatcher
	Logger           *slog.Logger
}

// Factory builds the session registered for a CreateSession call.
type Factory func(p Params) session.Session

// RealTimeFactory builds session.RealTimeSession values.
func RealTimeFactory(p Params) session.Session {
	return session.NewRealTimeSession(session.Config{
		ID:               p.ID,
		TrackerSessionID: p.TrackerSessionID,
		TrackerConfig:    p.TrackerConfig,
		State:            p.State,
		Dispatcher:       p.Dispatcher,
		Logger:           p.Logger,
	})
}

// Info describes a registered session.
type Info struct {
	ID               string         `json:"id"`
	TrackerSessionID string         `json:"tracker_session_id,omitempty"`
	Status           session.Status `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Processor owns the session registry and the shared state. Every operation
// runs on one worker goroutine in submission order; only CreateSession,
// Sessions and Sync wait for their operation to finish.
//
// None of the Processor methods may be called from inside a Session callback
// that waits for its result (CreateSession, Sessions, Sync); the worker would
// wait on itself.
type Processor struct {
	queue    *serialQueue
	registry *registry
	state    *state.State
	dispatch event.Dispatcher
	factory  Factory
	newID    func() string
	logger   *slog.Logger

	closeOnce sync.Once
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithDispatcher sets the outbound dispatcher passed to every session.
func WithDispatcher(d event.Dispatcher) Option {
	return func(p *Processor) {
		p.dispatch = d
	}
}

// WithSessionFactory replaces the RealTimeFactory.
func WithSessionFactory(f Factory) Option {
	return func(p *Processor) {
		p.factory = f
	}
}

// WithIDGenerator replaces uuid.NewString for session identifiers. The
// generator runs on the worker goroutine.
func WithIDGenerator(gen func() string) Option {
	return func(p *Processor) {
		p.newID = gen
	}
}

// New starts a Processor. Call Close to stop its worker.
func New(opts ...Option) *Processor {
	p := &Processor{
		registry: newRegistry(),
		state:    state.New(),
		dispatch: event.Discard,
		factory:  RealTimeFactory,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = newSerialQueue()
	return p
}

// SharedState returns the state instance held by every session.
func (p *Processor) SharedState() *state.State {
	return p.state
}

// CreateSession registers a new session and returns its identifier. It
// blocks until registration has run, so an event submitted right after it
// returns always finds the session.
func (p *Processor) CreateSession(trackerConfig map[string]any, trackerSessionID string) (string, error) {
	type result struct {
		id        string
		duplicate bool
	}
	done := make(chan result, 1)

	ok := p.queue.submit(func() {
		id := p.newID()
		if _, exists := p.registry.get(id); exists {
			done <- result{id: id, duplicate: true}
			return
		}
		e := &entry{
			status:           session.Active,
			trackerSessionID: trackerSessionID,
			createdAt:        time.Now(),
		}
		e.session = p.factory(Params{
			ID:               id,
			TrackerSessionID: trackerSessionID,
			TrackerConfig:    trackerConfig,
			State:            p.state,
			Dispatcher:       p.dispatch,
			Logger:           p.logger,
		})
		p.registry.add(id, e)
		p.trace("created session", "session", id, "tracker_session", trackerSessionID)
		done <- result{id: id}
	})
	if !ok {
		p.logger.Warn("cannot create session, processor closed", "tracker_session", trackerSessionID)
		return "", ErrClosed
	}

	res := <-done
	if res.duplicate {
		panic(fmt.Sprintf("processor: session identifier %q issued twice", res.id))
	}
	return res.id, nil
}

// ProcessEvent hands ev to the session. Unknown identifiers are ignored.
func (p *Processor) ProcessEvent(id string, ev event.XDMEvent) {
	p.submit("process event", func() {
		e, ok := p.registry.get(id)
		if !ok {
			p.logger.Debug("cannot process event, session id is invalid", "session", id, "event_type", ev.Type)
			return
		}
		e.session.Queue(ev)
		p.trace("queued event", "session", id, "event_type", ev.Type)
	})
}

// EndSession asks the session to finish. It is removed once it resolves the
// completion. Only an active session can be ended.
func (p *Processor) EndSession(id string) {
	p.submit("end session", func() {
		e, ok := p.registry.get(id)
		if !ok {
			p.logger.Debug("cannot end session, session id is invalid", "session", id)
			return
		}
		if e.status != session.Active {
			p.logger.Debug("ignoring end request", "session", id, "status", e.status)
			return
		}
		e.status = session.Ending
		e.session.End(p.completion(id, e))
		p.trace("scheduled end", "session", id)
	})
}

// AbortAllSessions aborts every session that is active when the operation
// runs. It does not wait for the sessions to finish.
func (p *Processor) AbortAllSessions() {
	p.submit("abort sessions", func() {
		p.registry.each(func(id string, e *entry) {
			if e.status != session.Active {
				p.logger.Debug("ignoring abort request", "session", id, "status", e.status)
				return
			}
			e.status = session.Aborting
			e.session.Abort(p.completion(id, e))
			p.trace("scheduled abort", "session", id)
		})
	})
}

// UpdateSharedState replaces the shared state and notifies every session.
func (p *Processor) UpdateSharedState(data map[string]any) {
	snapshot := make(map[string]any, len(data))
	for k, v := range data {
		snapshot[k] = v
	}

	p.submit("update shared state", func() {
		p.state.Update(snapshot)
		p.registry.each(func(id string, e *entry) {
			e.session.HandleStateUpdate()
		})
		p.trace("shared state updated", "sessions", p.registry.len())
	})
}

// NotifyBackendSessionID broadcasts a backend session ID to every session.
// Each session decides whether the request event ID is one of its own.
func (p *Processor) NotifyBackendSessionID(requestEventID, backendSessionID string) {
	p.submit("notify backend session id", func() {
		p.registry.each(func(id string, e *entry) {
			e.session.HandleSessionUpdate(requestEventID, backendSessionID)
		})
		p.trace("broadcast backend session id", "request_event_id", requestEventID, "sessions", p.registry.len())
	})
}

// NotifyErrorResponse broadcasts a backend error to every session.
func (p *Processor) NotifyErrorResponse(requestEventID string, data map[string]any) {
	p.submit("notify error response", func() {
		p.registry.each(func(id string, e *entry) {
			e.session.HandleErrorResponse(requestEventID, data)
		})
		p.trace("broadcast error response", "request_event_id", requestEventID, "sessions", p.registry.len())
	})
}

// Sessions returns the registered sessions ordered by creation time.
func (p *Processor) Sessions() []Info {
	done := make(chan []Info, 1)
	ok := p.queue.submit(func() {
		infos := make([]Info, 0, p.registry.len())
		p.registry.each(func(id string, e *entry) {
			infos = append(infos, Info{
				ID:               id,
				TrackerSessionID: e.trackerSessionID,
				Status:           e.status,
				CreatedAt:        e.createdAt,
			})
		})
		done <- infos
	})
	if !ok {
		return nil
	}

	infos := <-done
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Sync returns once every operation submitted before it has run.
func (p *Processor) Sync() {
	done := make(chan struct{})
	if !p.queue.submit(func() { close(done) }) {
		return
	}
	<-done
}

// Close stops the worker after the operations already submitted have run.
// Later operations are dropped.
func (p *Processor) Close() {
	p.closeOnce.Do(p.queue.close)
}

// completion returns the Completion handed to End or Abort. Resolving it
// removes the session on the worker; repeated resolutions are no-ops.
func (p *Processor) completion(id string, e *entry) *session.Completion {
	return session.NewCompletion(func() {
		p.submit("finish session", func() {
			p.finish(id, e)
		})
	})
}

func (p *Processor) finish(id string, e *entry) {
	prev := e.status
	if !p.registry.remove(id, e) {
		p.logger.Debug("session already terminated", "session", id)
		return
	}
	e.status = session.Terminated
	if prev == session.Aborting {
		p.trace("aborted session", "session", id)
	} else {
		p.trace("ended session", "session", id)
	}
}

func (p *Processor) submit(what string, op func()) {
	if !p.queue.submit(op) {
		p.logger.Warn("dropping operation, processor closed", "operation", what)
	}
}

func (p *Processor) trace(msg string, args ...any) {
	p.logger.Log(context.Background(), LevelTrace, msg, args...)
}
