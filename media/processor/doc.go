// Package processor coordinates media tracking sessions.
//
// A Processor owns two pieces of shared mutable data: the registry of live
// sessions and the shared configuration state. Both are touched only by a
// single worker goroutine that runs submitted operations one at a time in
// submission order.
//
// Lifecycle:
//
// CreateSession registers a session as active and waits for the registration
// to run. EndSession and AbortAllSessions move active sessions to ending or
// aborting and hand them a Completion; the session is removed when it
// resolves that Completion. The first lifecycle request for a session wins:
// an End or Abort for a session that is already ending or aborting is
// ignored. Operations on identifiers that are not registered are logged at
// debug level and otherwise ignored.
//
// Broadcasts:
//
// UpdateSharedState, NotifyBackendSessionID and NotifyErrorResponse reach
// every registered session, whatever its status. Sessions filter backend
// notifications themselves.
//
// Usage:
//
//	p := processor.New(processor.WithDispatcher(send))
//	defer p.Close()
//
//	id, err := p.CreateSession(nil, "trk-1")
//	if err != nil {
//		return err
//	}
//	p.ProcessEvent(id, ev)
//	p.EndSession(id)
package processor
