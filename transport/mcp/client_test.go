package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wricardo/mediatracker/media/config"
	"github.com/wricardo/mediatracker/media/event"
	"github.com/wricardo/mediatracker/media/service"
	"github.com/wricardo/mediatracker/media/session"
)

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080/"
	client := NewClient(baseURL)

	if client == nil {
		t.Fatal("Expected client to be created")
	}
	if client.baseURL != "http://localhost:8080" {
		t.Errorf("Expected trailing slash trimmed, got %s", client.baseURL)
	}
	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}
	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"id": "test-session"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var response map[string]interface{}
	if err := client.apiCall(context.Background(), "GET", "/api", nil, &response); err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}
	if response["id"] != "test-session" {
		t.Errorf("Expected id test-session, got %v", response["id"])
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	if err := client.apiCall(context.Background(), "GET", "/api", nil, nil); err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil {
		t.Fatal("Expected error for HTTP 500 response")
	}
	if !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error' in error message, got: %v", err)
	}
}

func TestClient_apiCall_ErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "preset not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "POST", "/api/presets/x/apply", nil, nil)
	if err == nil || err.Error() != "preset not found" {
		t.Errorf("Expected server error message, got %v", err)
	}
}

func TestClient_createSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/sessions" {
			t.Errorf("Expected POST /api/sessions, got %s %s", r.Method, r.URL.Path)
		}

		var req service.CreateSessionRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.TrackerSessionID != "trk-1" {
			t.Errorf("Expected tracker session trk-1, got %q", req.TrackerSessionID)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(service.SessionInfo{
			ID:               "test-session-123",
			TrackerSessionID: req.TrackerSessionID,
			Status:           session.Active,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	result, err := client.handleCreateSession(context.Background(), callRequest("create_session", map[string]interface{}{
		"tracker_session_id": "trk-1",
	}))
	if err != nil {
		t.Fatalf("createSession failed: %v", err)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "test-session-123") || !strings.Contains(text, "trk-1") {
		t.Errorf("Expected session and tracker IDs in result, got: %s", text)
	}
}

func TestClient_listSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") != "active" {
			t.Errorf("Expected status filter, got %q", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": 1,
			"sessions": []service.SessionInfo{
				{ID: "s1", Status: session.Active, CreatedAt: time.Now()},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleListSessions(context.Background(), callRequest("list_sessions", map[string]interface{}{
		"status": "active",
	}))
	if err != nil {
		t.Fatalf("listSessions failed: %v", err)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "Sessions (1)") || !strings.Contains(text, "s1 [active]") {
		t.Errorf("Unexpected output: %s", text)
	}
}

func TestClient_trackEvent(t *testing.T) {
	var mu sync.Mutex
	var received event.XDMEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method != "POST" || r.URL.Path != "/api/sessions/s1/events" {
			t.Errorf("Expected POST /api/sessions/s1/events, got %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("Invalid event body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleTrackEvent(context.Background(), callRequest("track_event", map[string]interface{}{
		"session_id": "s1",
		"event_type": "play",
		"playhead":   float64(42),
		"timestamp":  "2024-01-02T03:04:05Z",
	}))
	if err != nil {
		t.Fatalf("trackEvent failed: %v", err)
	}
	if result.IsError {
		t.Fatalf("Unexpected tool error: %s", resultText(t, result))
	}

	mu.Lock()
	defer mu.Unlock()
	if received.Type != event.Play || received.Playhead != 42 {
		t.Errorf("Unexpected event: %+v", received)
	}
	if !received.Timestamp.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Unexpected timestamp: %v", received.Timestamp)
	}
}

func TestClient_trackEvent_MissingSession(t *testing.T) {
	client := NewClient("http://localhost:0")

	result, err := client.handleTrackEvent(context.Background(), callRequest("track_event", map[string]interface{}{
		"event_type": "play",
	}))
	if err != nil {
		t.Fatalf("trackEvent failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected tool error for missing session_id")
	}
}

func TestClient_endAndAbort(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	if _, err := client.handleEndSession(ctx, callRequest("end_session", map[string]interface{}{"session_id": "s1"})); err != nil {
		t.Fatalf("endSession failed: %v", err)
	}
	if _, err := client.handleAbortAll(ctx, callRequest("abort_all_sessions", nil)); err != nil {
		t.Fatalf("abortAll failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"DELETE /api/sessions/s1", "POST /api/sessions/abort"}
	if len(calls) != len(want) {
		t.Fatalf("Expected %d calls, got %v", len(want), calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestClient_state(t *testing.T) {
	var mu sync.Mutex
	var updated map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case "PUT":
			json.NewDecoder(r.Body).Decode(&updated)
			w.WriteHeader(http.StatusAccepted)
		case "GET":
			json.NewEncoder(w).Encode(service.StateInfo{State: updated, Ready: true})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	result, err := client.handleUpdateState(ctx, callRequest("update_state", map[string]interface{}{
		"state": map[string]interface{}{"edgemedia.channel": "web"},
	}))
	if err != nil || result.IsError {
		t.Fatalf("updateState failed: %v", err)
	}

	result, err = client.handleGetState(ctx, callRequest("get_state", nil))
	if err != nil {
		t.Fatalf("getState failed: %v", err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "edgemedia.channel = web") || !strings.Contains(text, "(ready)") {
		t.Errorf("Unexpected state output: %s", text)
	}

	result, _ = client.handleUpdateState(ctx, callRequest("update_state", map[string]interface{}{"state": "nope"}))
	if !result.IsError {
		t.Error("Expected tool error for non-object state")
	}
}

func TestClient_presets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/presets":
			json.NewEncoder(w).Encode([]config.PresetInfo{{PresetID: "web", Name: "Web", Channel: "web"}})
		case "/api/presets/web/apply":
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"status": "accepted",
				"preset": config.Preset{Name: "Web", State: map[string]any{"edgemedia.channel": "web"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "preset not found"})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	result, err := client.handleListPresets(ctx, callRequest("list_presets", nil))
	if err != nil {
		t.Fatalf("listPresets failed: %v", err)
	}
	if text := resultText(t, result); !strings.Contains(text, "web: Web [channel web]") {
		t.Errorf("Unexpected presets output: %s", text)
	}

	result, err = client.handleApplyPreset(ctx, callRequest("apply_preset", map[string]interface{}{"name": "web"}))
	if err != nil {
		t.Fatalf("applyPreset failed: %v", err)
	}
	if text := resultText(t, result); !strings.Contains(text, "Applied preset Web (1 keys)") {
		t.Errorf("Unexpected apply output: %s", text)
	}

	result, _ = client.handleApplyPreset(ctx, callRequest("apply_preset", map[string]interface{}{"name": "missing"}))
	if !result.IsError || !strings.Contains(resultText(t, result), "preset not found") {
		t.Error("Expected tool error for unknown preset")
	}
}

func TestEventFromArgs(t *testing.T) {
	now := time.Unix(1700000000, 0)

	ev, err := eventFromArgs(map[string]interface{}{
		"event_type": "sessionStart",
		"xdm":        map[string]interface{}{"sessionDetails": map[string]interface{}{}},
	}, now)
	if err != nil {
		t.Fatalf("eventFromArgs failed: %v", err)
	}
	if ev.Type != event.SessionStart || !ev.Timestamp.Equal(now) || ev.XDM == nil {
		t.Errorf("Unexpected event: %+v", ev)
	}

	if _, err := eventFromArgs(map[string]interface{}{"event_type": "play", "timestamp": "yesterday"}, now); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}

func TestEventTypeNames(t *testing.T) {
	names := eventTypeNames()
	if len(names) != len(event.AllTypes) || names[0] != "sessionStart" {
		t.Errorf("Unexpected event type names: %v", names)
	}
}
