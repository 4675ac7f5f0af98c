package processor

import (
	"time"

	"github.com/wricardo/mediatracker/media/session"
)

type entry struct {
	session          session.Session
	status           session.Status
	trackerSessionID string
	createdAt        time.Time
}

// registry maps session identifiers to live sessions. It is owned by the
// worker goroutine and has no locking of its own.
type registry struct {
	sessions map[string]*entry
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*entry)}
}

// add registers e under id. It reports false if id is already taken.
func (r *registry) add(id string, e *entry) bool {
	if _, exists := r.sessions[id]; exists {
		return false
	}
	r.sessions[id] = e
	return true
}

func (r *registry) get(id string) (*entry, bool) {
	e, ok := r.sessions[id]
	return e, ok
}

// remove deletes id only while it still maps to e.
func (r *registry) remove(id string, e *entry) bool {
	cur, ok := r.sessions[id]
	if !ok || cur != e {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *registry) len() int {
	return len(r.sessions)
}

func (r *registry) each(fn func(id string, e *entry)) {
	for id, e := range r.sessions {
		fn(id, e)
	}
}
