// Package api provides the HTTP REST API for the media event processor.
//
// Endpoints:
//
// Sessions:
//   - POST /api/sessions - Create a session ({tracker_config, tracker_session_id})
//   - GET /api/sessions - List sessions (?status=active&limit=10)
//   - POST /api/sessions/abort - Abort every active session
//   - POST /api/sessions/{id}/events - Queue a media event
//   - DELETE /api/sessions/{id} - End a session
//
// Shared state:
//   - GET /api/state - Current shared state
//   - PUT /api/state - Replace the shared state
//
// Presets:
//   - GET /api/presets - List presets
//   - POST /api/presets/{name}/apply - Apply a preset as the shared state
//
// Backend responses:
//   - POST /api/edge/session-update - {request_event_id, backend_session_id}
//   - POST /api/edge/error - {request_event_id, data}
//
// Streaming:
//   - GET /ws?session={id} - WebSocket stream of outbound records
//
// Everything except session creation and listing is asynchronous. Those
// endpoints answer 202 Accepted once the request has been queued.
//
// Events are posted as JSON:
//
//	{
//	  "event_type": "play",
//	  "timestamp": "2024-01-02T03:04:05Z",
//	  "playhead": 12,
//	  "xdm": {}
//	}
//
// Errors are returned as JSON with an appropriate status code:
//
//	{"error": "error message"}
package api
