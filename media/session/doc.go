// Package session defines the media tracking session contract and its
// default real-time implementation.
//
// The session package implements:
//   - The Session capability interface used by the processor
//   - Lifecycle status values (active, ending, aborting, terminated)
//   - Completion, the one-shot signal a session resolves when it has
//     finished ending or aborting
//   - RealTimeSession, which forwards events to the outbound dispatcher as
//     soon as the backend has acknowledged the session start
//
// Notifications:
//
// Backend acknowledgements and error responses are broadcast to every
// session. Each session compares the request event ID against the requests
// it issued itself and ignores the rest.
//
// Concurrency:
//
// The processor calls a session from its single worker goroutine, but a
// session may resolve its Completion from any goroutine. RealTimeSession
// guards its own state and never calls the dispatcher while holding its lock.
package session
