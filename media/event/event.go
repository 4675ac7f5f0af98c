package event

import (
	"time"
)

// EventType names a media experience event.
type EventType string

const (
	SessionStart    EventType = "sessionStart"
	Play            EventType = "play"
	Ping            EventType = "ping"
	BitrateChange   EventType = "bitrateChange"
	BufferStart     EventType = "bufferStart"
	PauseStart      EventType = "pauseStart"
	AdBreakStart    EventType = "adBreakStart"
	AdBreakComplete EventType = "adBreakComplete"
	AdStart         EventType = "adStart"
	AdComplete      EventType = "adComplete"
	AdSkip          EventType = "adSkip"
	ChapterStart    EventType = "chapterStart"
	ChapterComplete EventType = "chapterComplete"
	ChapterSkip     EventType = "chapterSkip"
	Error           EventType = "error"
	StatesUpdate    EventType = "statesUpdate"
	SessionComplete EventType = "sessionComplete"
	SessionEnd      EventType = "sessionEnd"
)

// AllTypes lists every known event type in a stable order.
var AllTypes = []EventType{
	SessionStart, Play, Ping, BitrateChange, BufferStart, PauseStart,
	AdBreakStart, AdBreakComplete, AdStart, AdComplete, AdSkip,
	ChapterStart, ChapterComplete, ChapterSkip,
	Error, StatesUpdate, SessionComplete, SessionEnd,
}

var knownTypes = func() map[EventType]bool {
	m := make(map[EventType]bool, len(AllTypes))
	for _, t := range AllTypes {
		m[t] = true
	}
	return m
}()

// Valid reports whether t is a known media event type.
func (t EventType) Valid() bool {
	return knownTypes[t]
}

// Closes reports whether the event type finishes a tracking session on the backend.
func (t EventType) Closes() bool {
	return t == SessionComplete || t == SessionEnd
}

// XDMEvent is a media experience event reported by a player.
type XDMEvent struct {
	Type      EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Playhead  int64          `json:"playhead"`
	XDM       map[string]any `json:"xdm,omitempty"`
}

// Record is an event ready to be sent downstream.
type Record struct {
	RequestEventID   string         `json:"request_event_id"`
	SessionID        string         `json:"session_id"`
	BackendSessionID string         `json:"backend_session_id,omitempty"`
	TrackerSessionID string         `json:"tracker_session_id,omitempty"`
	Type             EventType      `json:"event_type"`
	Timestamp        time.Time      `json:"timestamp"`
	MediaCollection  map[string]any `json:"media_collection"`
}

// Dispatcher receives records emitted by sessions. Its transport and retry
// behavior belong to the caller.
type Dispatcher func(rec Record)

// Discard is a Dispatcher that drops every record.
func Discard(Record) {}

// CloneXDM returns a shallow copy of the event payload so sessions can add
// fields without touching the caller's map.
func CloneXDM(xdm map[string]any) map[string]any {
	out := make(map[string]any, len(xdm)+2)
	for k, v := range xdm {
		out[k] = v
	}
	return out
}
