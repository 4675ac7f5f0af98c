// Package mcp exposes the media processor to MCP clients.
//
// Client is a thin proxy: every tool call is translated to a request against
// the REST API in package api, so the MCP process holds no session state of
// its own.
//
// MCP Tools:
//   - create_session, list_sessions, end_session, abort_all_sessions
//   - track_event: send a media event (event_type, playhead, timestamp, xdm)
//   - update_state, get_state: shared state shown to every session
//   - list_presets, apply_preset: shared-state presets
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
