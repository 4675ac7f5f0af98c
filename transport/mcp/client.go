package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mediatracker/media/config"
	"github.com/wricardo/mediatracker/media/event"
	"github.com/wricardo/mediatracker/media/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Media Tracker",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Media Tracker - MCP Interface

This is a thin client that proxies all requests to the REST API server.

Sessions track one media playback each. Create a session, send a sessionStart
event, then playback events (play, ping, pauseStart, bufferStart, ...), and
end the session when playback is over. Shared state (edgemedia.channel,
edgemedia.playerName, edgemedia.appVersion) must be set, directly or through a
preset, before any event is sent downstream.

AVAILABLE TOOLS:
- create_session: Create a new tracking session
- list_sessions: List registered sessions and their status
- track_event: Send a media event to a session
- end_session: End a session once its events are sent
- abort_all_sessions: Abort every active session
- update_state: Replace the shared state
- get_state: Show the shared state
- list_presets: List shared-state presets
- apply_preset: Apply a preset as the shared state

NOTE: Everything except create_session and list_sessions is asynchronous.
"Accepted" means the request is queued, not that it has been processed.`),
	)

	c.registerTools()
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new media tracking session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tracker_session_id": map[string]interface{}{
					"type":        "string",
					"description": "Identifier of the calling tracker (optional)",
				},
				"tracker_config": map[string]interface{}{
					"type":        "object",
					"description": "Tracker configuration, e.g. {\"config.channel\": \"web\"} (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all registered sessions",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"active", "ending", "aborting"},
					"description": "Only list sessions in this status (optional)",
				},
			},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "track_event",
		Description: "Send a media event to a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID",
				},
				"event_type": map[string]interface{}{
					"type":        "string",
					"enum":        eventTypeNames(),
					"description": "Media event type",
				},
				"playhead": map[string]interface{}{
					"type":        "integer",
					"description": "Playhead position in seconds",
				},
				"timestamp": map[string]interface{}{
					"type":        "string",
					"description": "RFC 3339 timestamp (defaults to now)",
				},
				"xdm": map[string]interface{}{
					"type":        "object",
					"description": "Event payload; sessionStart requires sessionDetails",
				},
			},
			Required: []string{"session_id", "event_type"},
		},
	}, c.handleTrackEvent)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "end_session",
		Description: "End a session after its pending events are sent",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session ID",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleEndSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "abort_all_sessions",
		Description: "Abort every active session, discarding pending events",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleAbortAll)

	// Shared state
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "update_state",
		Description: "Replace the shared state seen by every session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"state": map[string]interface{}{
					"type":        "object",
					"description": "New shared state, e.g. {\"edgemedia.channel\": \"web\"}",
				},
			},
			Required: []string{"state"},
		},
	}, c.handleUpdateState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_state",
		Description: "Show the shared state",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleGetState)

	// Presets
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_presets",
		Description: "List available shared-state presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListPresets)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "apply_preset",
		Description: "Apply a preset as the shared state",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Preset ID from list_presets",
				},
			},
			Required: []string{"name"},
		},
	}, c.handleApplyPreset)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	trackerSessionID, _ := args["tracker_session_id"].(string)
	trackerConfig, _ := args["tracker_config"].(map[string]interface{})

	body := service.CreateSessionRequest{
		TrackerConfig:    trackerConfig,
		TrackerSessionID: trackerSessionID,
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\n", session.ID)
	if session.TrackerSessionID != "" {
		result += fmt.Sprintf("Tracker session: %s\n", session.TrackerSessionID)
	}
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	path := "/api/sessions"
	if status, _ := args["status"].(string); status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessions(response.Sessions)), nil
}

func (c *Client) handleTrackEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	ev, err := eventFromArgs(args, time.Now())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path := fmt.Sprintf("/api/sessions/%s/events", url.PathEscape(sessionID))
	if err := c.apiCall(ctx, "POST", path, ev, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Accepted %s for session %s (playhead %d)", ev.Type, sessionID, ev.Playhead)), nil
}

func (c *Client) handleEndSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	if err := c.apiCall(ctx, "DELETE", "/api/sessions/"+url.PathEscape(sessionID), nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Accepted end request for session %s", sessionID)), nil
}

func (c *Client) handleAbortAll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := c.apiCall(ctx, "POST", "/api/sessions/abort", nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText("Accepted abort request for all active sessions"), nil
}

func (c *Client) handleUpdateState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	data, ok := args["state"].(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("state must be an object"), nil
	}

	if err := c.apiCall(ctx, "PUT", "/api/state", data, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Accepted shared state update (%d keys)", len(data))), nil
}

func (c *Client) handleGetState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var st service.StateInfo
	if err := c.apiCall(ctx, "GET", "/api/state", nil, &st); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatState(&st)), nil
}

func (c *Client) handleListPresets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var presets []config.PresetInfo
	if err := c.apiCall(ctx, "GET", "/api/presets", nil, &presets); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(presets) == 0 {
		return mcp.NewToolResultText("No presets available"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Presets (%d):\n\n", len(presets))
	for _, p := range presets {
		fmt.Fprintf(&b, "- %s: %s", p.PresetID, p.Name)
		if p.Channel != "" {
			fmt.Fprintf(&b, " [channel %s]", p.Channel)
		}
		if p.Description != "" {
			fmt.Fprintf(&b, " - %s", p.Description)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleApplyPreset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	name, _ := args["name"].(string)
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}

	var response struct {
		Preset config.Preset `json:"preset"`
	}
	path := fmt.Sprintf("/api/presets/%s/apply", url.PathEscape(name))
	if err := c.apiCall(ctx, "POST", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Applied preset %s (%d keys)", response.Preset.Name, len(response.Preset.State))), nil
}

// eventFromArgs builds an event from tool arguments. Validation is left to
// the server.
func eventFromArgs(args map[string]interface{}, now time.Time) (event.XDMEvent, error) {
	typ, _ := args["event_type"].(string)
	ev := event.XDMEvent{
		Type:      event.EventType(typ),
		Timestamp: now,
	}

	if ts, _ := args["timestamp"].(string); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return ev, fmt.Errorf("invalid timestamp %q: %v", ts, err)
		}
		ev.Timestamp = parsed
	}

	switch p := args["playhead"].(type) {
	case float64:
		ev.Playhead = int64(p)
	case int:
		ev.Playhead = int64(p)
	case int64:
		ev.Playhead = p
	}

	if xdm, ok := args["xdm"].(map[string]interface{}); ok {
		ev.XDM = xdm
	}
	return ev, nil
}

func eventTypeNames() []string {
	names := make([]string, 0, len(event.AllTypes))
	for _, t := range event.AllTypes {
		names = append(names, string(t))
	}
	return names
}

func formatSessions(sessions []service.SessionInfo) string {
	result := fmt.Sprintf("Sessions (%d):\n\n", len(sessions))
	for _, s := range sessions {
		result += fmt.Sprintf("- %s [%s] (Created: %s", s.ID, s.Status, s.CreatedAt.Format("15:04:05"))
		if s.TrackerSessionID != "" {
			result += ", Tracker: " + s.TrackerSessionID
		}
		result += ")\n"
	}
	return result
}

func formatState(st *service.StateInfo) string {
	if len(st.State) == 0 {
		return "Shared state is empty (sessions will hold their events)"
	}

	keys := make([]string, 0, len(st.State))
	for k := range st.State {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	if st.Ready {
		b.WriteString("Shared state (ready):\n")
	} else {
		b.WriteString("Shared state (not ready, edgemedia.channel missing):\n")
	}
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s = %v\n", k, st.State[k])
	}
	return b.String()
}
