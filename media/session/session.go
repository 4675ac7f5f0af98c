package session

import (
	"fmt"
	"sync"

	"github.com/wricardo/mediatracker/media/event"
)

// Session is a single media tracking unit.
type Session interface {
	// Queue hands an event to the session.
	Queue(ev event.XDMEvent)

	// HandleStateUpdate is called after the shared configuration was replaced.
	HandleStateUpdate()

	// HandleSessionUpdate delivers a backend session ID for a request event.
	HandleSessionUpdate(requestEventID, backendSessionID string)

	// HandleErrorResponse delivers a backend error for a request event.
	HandleErrorResponse(requestEventID string, data map[string]any)

	// End finalizes the session and resolves c when done.
	End(c *Completion)

	// Abort discards the session and resolves c when done.
	Abort(c *Completion)
}

// Status is the lifecycle position of a registered session.
type Status int

const (
	Active Status = iota
	Ending
	Aborting
	Terminated
)

var statusNames = map[Status]string{
	Active:     "active",
	Ending:     "ending",
	Aborting:   "aborting",
	Terminated: "terminated",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets Status appear by name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for status, name := range statusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", text)
}

// Completion is resolved by a session once an End or Abort request has
// finished. Only the first Resolve has any effect.
type Completion struct {
	once      sync.Once
	done      chan struct{}
	onResolve func()
}

// NewCompletion returns an unresolved Completion. onResolve, if not nil, runs
// exactly once on the goroutine that first calls Resolve.
func NewCompletion(onResolve func()) *Completion {
	return &Completion{
		done:      make(chan struct{}),
		onResolve: onResolve,
	}
}

// Resolve marks the request as finished.
func (c *Completion) Resolve() {
	c.once.Do(func() {
		close(c.done)
		if c.onResolve != nil {
			c.onResolve()
		}
	})
}

// Done is closed once the Completion is resolved.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Resolved reports whether Resolve has been called.
func (c *Completion) Resolved() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
