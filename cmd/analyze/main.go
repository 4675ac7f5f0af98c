// Command analyze prints quick, human-readable heuristics about recorded
// player event logs. Each file holds either a JSON array of events or one
// JSON event per line; with no arguments the log is read from stdin. For every
// session it reports event counts and flags the sequences a session would
// drop or the backend would reject: events before sessionStart, repeated
// sessionStart, events after a closing event, invalid events and playhead
// regressions.
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/wricardo/mediatracker/media/event"
)

// LogEntry is one recorded event. SessionID groups events; entries without it
// belong to a single unnamed session.
type LogEntry struct {
	SessionID string `json:"session_id,omitempty"`
	event.XDMEvent
}

// Issue is a problem found at a position in a session's event sequence.
type Issue struct {
	Index   int
	Type    event.EventType
	Message string
}

// SessionReport summarizes the events of one session.
type SessionReport struct {
	SessionID string
	Total     int
	Counts    map[event.EventType]int
	Started   bool
	Closed    bool
	Issues    []Issue
}

const unnamedSession = "(unnamed)"

// maxIssuesShown caps the issues printed per session.
const maxIssuesShown = 5

func main() {
	if len(os.Args) < 2 {
		if err := analyzeReader(os.Stdin, os.Stdout); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	failed := false
	for _, path := range os.Args[1:] {
		fmt.Printf("\n=== Analyzing %s ===\n", path)
		f, err := os.Open(path)
		if err != nil {
			fmt.Printf("Error reading file: %v\n", err)
			failed = true
			continue
		}
		err = analyzeReader(f, os.Stdout)
		f.Close()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func analyzeReader(r io.Reader, w io.Writer) error {
	entries, err := readEntries(r)
	if err != nil {
		return err
	}
	for _, rep := range analyzeEntries(entries) {
		printReport(w, rep)
	}
	return nil
}

// readEntries accepts a JSON array or JSON lines.
func readEntries(r io.Reader) ([]LogEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	if data[0] == '[' {
		var entries []LogEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parsing JSON array: %w", err)
		}
		return entries, nil
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// analyzeEntries groups entries by session, preserving the order in which
// sessions first appear.
func analyzeEntries(entries []LogEntry) []*SessionReport {
	var order []string
	bySession := map[string][]event.XDMEvent{}
	for _, e := range entries {
		id := e.SessionID
		if id == "" {
			id = unnamedSession
		}
		if _, ok := bySession[id]; !ok {
			order = append(order, id)
		}
		bySession[id] = append(bySession[id], e.XDMEvent)
	}

	reports := make([]*SessionReport, 0, len(order))
	for _, id := range order {
		reports = append(reports, analyzeSession(id, bySession[id]))
	}
	return reports
}

func analyzeSession(id string, events []event.XDMEvent) *SessionReport {
	rep := &SessionReport{
		SessionID: id,
		Total:     len(events),
		Counts:    map[event.EventType]int{},
	}
	addIssue := func(i int, ev event.XDMEvent, format string, args ...any) {
		rep.Issues = append(rep.Issues, Issue{Index: i, Type: ev.Type, Message: fmt.Sprintf(format, args...)})
	}

	lastPlayhead := int64(-1)
	for i, ev := range events {
		rep.Counts[ev.Type]++

		if err := event.Validate(ev); err != nil {
			addIssue(i, ev, "%v", err)
		}

		switch {
		case rep.Closed:
			addIssue(i, ev, "event after the session was closed")
		case ev.Type == event.SessionStart && rep.Started:
			addIssue(i, ev, "repeated sessionStart is ignored")
		case ev.Type == event.SessionStart:
			rep.Started = true
		case !rep.Started:
			addIssue(i, ev, "event before sessionStart is dropped")
		}

		if rep.Started && ev.Type.Closes() {
			rep.Closed = true
		}

		if ev.Playhead < lastPlayhead && ev.Type != event.AdStart && ev.Type != event.AdBreakStart {
			addIssue(i, ev, "playhead went back from %d to %d", lastPlayhead, ev.Playhead)
		}
		if ev.Playhead > lastPlayhead {
			lastPlayhead = ev.Playhead
		}
	}
	return rep
}

func printReport(w io.Writer, rep *SessionReport) {
	fmt.Fprintf(w, "Session: %s\n", rep.SessionID)
	fmt.Fprintf(w, "Total Events: %d\n", rep.Total)

	types := make([]string, 0, len(rep.Counts))
	for t := range rep.Counts {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-16s %d\n", t, rep.Counts[event.EventType(t)])
	}

	if !rep.Started {
		fmt.Fprintf(w, "⚠️  WARNING: no sessionStart, every event would be dropped\n")
	}
	if rep.Started && !rep.Closed {
		fmt.Fprintf(w, "⚠️  WARNING: session never closed with sessionComplete or sessionEnd\n")
	}

	if len(rep.Issues) == 0 {
		fmt.Fprintf(w, "✅ Event sequence looks consistent\n")
		return
	}

	fmt.Fprintf(w, "⚠️  %d issues found\n", len(rep.Issues))
	for i, issue := range rep.Issues {
		if i == maxIssuesShown {
			fmt.Fprintf(w, "   ... and %d more\n", len(rep.Issues)-maxIssuesShown)
			break
		}
		fmt.Fprintf(w, "   #%d %s: %s\n", issue.Index, issue.Type, issue.Message)
	}
}
