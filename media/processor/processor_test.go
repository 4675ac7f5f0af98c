package processor

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/mediatracker/media/event"
	"github.com/wricardo/mediatracker/media/session"
	"github.com/wricardo/mediatracker/media/state"
)

type ack struct {
	requestEventID   string
	backendSessionID string
}

// fakeSession records every call made by the processor. With autoResolve set
// it resolves End and Abort completions immediately.
type fakeSession struct {
	id          string
	state       *state.State
	autoResolve bool

	mu           sync.Mutex
	events       []event.XDMEvent
	stateUpdates int
	acks         []ack
	errs         []string
	ends         []*session.Completion
	aborts       []*session.Completion
}

func (f *fakeSession) Queue(ev event.XDMEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeSession) HandleStateUpdate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateUpdates++
}

func (f *fakeSession) HandleSessionUpdate(requestEventID, backendSessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, ack{requestEventID, backendSessionID})
}

func (f *fakeSession) HandleErrorResponse(requestEventID string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, requestEventID)
}

func (f *fakeSession) End(c *session.Completion) {
	f.mu.Lock()
	f.ends = append(f.ends, c)
	f.mu.Unlock()
	if f.autoResolve {
		c.Resolve()
	}
}

func (f *fakeSession) Abort(c *session.Completion) {
	f.mu.Lock()
	f.aborts = append(f.aborts, c)
	f.mu.Unlock()
	if f.autoResolve {
		c.Resolve()
	}
}

// calls is a copy of what a fakeSession has received so far.
type calls struct {
	events       []event.XDMEvent
	stateUpdates int
	acks         []ack
	errs         []string
	ends         []*session.Completion
	aborts       []*session.Completion
}

func (f *fakeSession) snapshot() calls {
	f.mu.Lock()
	defer f.mu.Unlock()
	return calls{
		events:       append([]event.XDMEvent(nil), f.events...),
		stateUpdates: f.stateUpdates,
		acks:         append([]ack(nil), f.acks...),
		errs:         append([]string(nil), f.errs...),
		ends:         append([]*session.Completion(nil), f.ends...),
		aborts:       append([]*session.Completion(nil), f.aborts...),
	}
}

// fakeFactory hands out fakeSessions and remembers them by identifier.
type fakeFactory struct {
	autoResolve bool

	mu       sync.Mutex
	sessions map[string]*fakeSession
}

func newFakeFactory(autoResolve bool) *fakeFactory {
	return &fakeFactory{autoResolve: autoResolve, sessions: make(map[string]*fakeSession)}
}

func (f *fakeFactory) build(p Params) session.Session {
	s := &fakeSession{id: p.ID, state: p.State, autoResolve: f.autoResolve}
	f.mu.Lock()
	f.sessions[p.ID] = s
	f.mu.Unlock()
	return s
}

func (f *fakeFactory) get(t *testing.T, id string) *fakeSession {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		t.Fatalf("no session built for %q", id)
	}
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProcessor(t *testing.T, factory *fakeFactory, opts ...Option) *Processor {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger()), WithSessionFactory(factory.build)}, opts...)
	p := New(opts...)
	t.Cleanup(p.Close)
	return p
}

// settle waits for operations submitted by other operations (completion
// handlers) to run as well.
func settle(p *Processor) {
	p.Sync()
	p.Sync()
}

func registered(p *Processor) map[string]session.Status {
	out := map[string]session.Status{}
	for _, info := range p.Sessions() {
		out[info.ID] = info.Status
	}
	return out
}

func mustCreate(t *testing.T, p *Processor, token string) string {
	t.Helper()
	id, err := p.CreateSession(nil, token)
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	return id
}

func playAt(playhead int64) event.XDMEvent {
	return event.XDMEvent{Type: event.Play, Timestamp: time.Unix(1700000000, 0), Playhead: playhead}
}

func TestCreateSession_UniqueIdentifiers(t *testing.T) {
	p := New(WithLogger(quietLogger()))
	defer p.Close()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := mustCreate(t, p, "")
		if id == "" {
			t.Fatal("CreateSession returned an empty identifier")
		}
		if seen[id] {
			t.Fatalf("identifier %q issued twice", id)
		}
		seen[id] = true
	}

	if got := len(p.Sessions()); got != 200 {
		t.Errorf("registry holds %d sessions, want 200", got)
	}
}

func TestCreateSession_DuplicateIdentifierPanics(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory, WithIDGenerator(func() string { return "same" }))

	mustCreate(t, p, "")

	defer func() {
		if recover() == nil {
			t.Error("expected panic for duplicate identifier")
		}
		if got := len(p.Sessions()); got != 1 {
			t.Errorf("registry holds %d sessions after collision, want 1", got)
		}
	}()
	p.CreateSession(nil, "")
}

func TestCreateSession_RecordsTrackerSessionID(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "trk-1")

	infos := p.Sessions()
	if len(infos) != 1 {
		t.Fatalf("Sessions() returned %d entries, want 1", len(infos))
	}
	if infos[0].ID != id || infos[0].TrackerSessionID != "trk-1" || infos[0].Status != session.Active {
		t.Errorf("unexpected info: %+v", infos[0])
	}
}

func TestProcessEvent_ImmediatelyAfterCreate(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := p.CreateSession(nil, fmt.Sprintf("trk-%d", i))
			if err != nil {
				t.Errorf("CreateSession() error: %v", err)
				return
			}
			p.ProcessEvent(id, playAt(int64(i)))
			ids[i] = id
		}(i)
	}
	wg.Wait()
	p.Sync()

	for i, id := range ids {
		got := factory.get(t, id).snapshot()
		if len(got.events) != 1 {
			t.Fatalf("session %d received %d events, want 1", i, len(got.events))
		}
		if got.events[0].Playhead != int64(i) {
			t.Errorf("session %d received playhead %d", i, got.events[0].Playhead)
		}
	}
}

func TestProcessEvent_PreservesSubmissionOrder(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "")
	for i := 0; i < 100; i++ {
		p.ProcessEvent(id, playAt(int64(i)))
	}
	p.Sync()

	got := factory.get(t, id).snapshot()
	if len(got.events) != 100 {
		t.Fatalf("received %d events, want 100", len(got.events))
	}
	for i, ev := range got.events {
		if ev.Playhead != int64(i) {
			t.Fatalf("event %d has playhead %d, order not preserved", i, ev.Playhead)
		}
	}
}

func TestUnknownIdentifierIsNoop(t *testing.T) {
	factory := newFakeFactory(true)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "")

	p.ProcessEvent("missing", playAt(1))
	p.EndSession("missing")
	settle(p)

	reg := registered(p)
	if len(reg) != 1 || reg[id] != session.Active {
		t.Errorf("registry changed by operations on unknown id: %v", reg)
	}
	if got := factory.get(t, id).snapshot(); len(got.events) != 0 || len(got.ends) != 0 {
		t.Error("operation on unknown id reached another session")
	}
}

func TestOperationsOnRemovedIdentifierAreNoops(t *testing.T) {
	factory := newFakeFactory(true)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "")
	p.EndSession(id)
	settle(p)

	p.ProcessEvent(id, playAt(1))
	p.EndSession(id)
	settle(p)

	got := factory.get(t, id).snapshot()
	if len(got.events) != 0 {
		t.Errorf("removed session received %d events", len(got.events))
	}
	if len(got.ends) != 1 {
		t.Errorf("removed session received %d end requests, want 1", len(got.ends))
	}
	if len(p.Sessions()) != 0 {
		t.Error("registry not empty")
	}
}

func TestEndSession_RemovesAfterCompletion(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "trk-1")
	p.EndSession(id)
	settle(p)

	if status, ok := registered(p)[id]; !ok || status != session.Ending {
		t.Fatalf("session status = %v (registered=%v), want ending", status, ok)
	}

	// Still reachable while ending.
	p.ProcessEvent(id, playAt(5))
	p.Sync()
	fs := factory.get(t, id)
	if got := fs.snapshot(); len(got.events) != 1 {
		t.Errorf("ending session received %d events, want 1", len(got.events))
	}

	c := fs.snapshot().ends[0]
	c.Resolve()
	c.Resolve()
	settle(p)

	if _, ok := registered(p)[id]; ok {
		t.Error("session still registered after completion")
	}
}

func TestFinish_Idempotent(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "")
	other := mustCreate(t, p, "")

	var first, second *session.Completion
	p.queue.submit(func() {
		e, _ := p.registry.get(id)
		e.status = session.Ending
		first = p.completion(id, e)
		second = p.completion(id, e)
	})
	p.Sync()

	first.Resolve()
	second.Resolve()
	settle(p)

	reg := registered(p)
	if _, ok := reg[id]; ok {
		t.Error("session not removed")
	}
	if reg[other] != session.Active {
		t.Errorf("unrelated session affected by duplicate completion: %v", reg)
	}
}

func TestEndThenAbort_FirstRequestWins(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "")
	p.EndSession(id)
	p.AbortAllSessions()
	p.EndSession(id)
	settle(p)

	fs := factory.get(t, id)
	got := fs.snapshot()
	if len(got.ends) != 1 || len(got.aborts) != 0 {
		t.Fatalf("ends=%d aborts=%d, want 1 and 0", len(got.ends), len(got.aborts))
	}
	if registered(p)[id] != session.Ending {
		t.Errorf("status = %v, want ending", registered(p)[id])
	}

	got.ends[0].Resolve()
	settle(p)
	if len(p.Sessions()) != 0 {
		t.Error("session not removed after end completion")
	}
}

func TestAbortThenEnd_FirstRequestWins(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "")
	p.AbortAllSessions()
	p.EndSession(id)
	settle(p)

	got := factory.get(t, id).snapshot()
	if len(got.aborts) != 1 || len(got.ends) != 0 {
		t.Fatalf("aborts=%d ends=%d, want 1 and 0", len(got.aborts), len(got.ends))
	}
	if registered(p)[id] != session.Aborting {
		t.Errorf("status = %v, want aborting", registered(p)[id])
	}
}

func TestAbortAllSessions(t *testing.T) {
	factory := newFakeFactory(true)
	p := newTestProcessor(t, factory)

	for i := 0; i < 3; i++ {
		mustCreate(t, p, "")
	}
	p.AbortAllSessions()
	later := mustCreate(t, p, "later")
	settle(p)

	reg := registered(p)
	if len(reg) != 1 || reg[later] != session.Active {
		t.Errorf("registry after abort = %v, want only %s active", reg, later)
	}
	if got := factory.get(t, later).snapshot(); len(got.aborts) != 0 {
		t.Error("session created after the abort ran was aborted")
	}
}

func TestAbortAllSessions_Empty(t *testing.T) {
	p := newTestProcessor(t, newFakeFactory(true))
	p.AbortAllSessions()
	settle(p)
	if len(p.Sessions()) != 0 {
		t.Error("registry not empty")
	}
}

func TestSessionThatNeverCompletesStaysRegistered(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	id := mustCreate(t, p, "")
	p.AbortAllSessions()
	settle(p)
	time.Sleep(20 * time.Millisecond)
	settle(p)

	if registered(p)[id] != session.Aborting {
		t.Error("session without completion should remain registered as aborting")
	}
}

func TestUpdateSharedState(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	s1 := mustCreate(t, p, "")
	s2 := mustCreate(t, p, "")

	cfg := map[string]any{"x": 1}
	p.UpdateSharedState(cfg)
	cfg["x"] = 2 // caller's map is not shared
	p.Sync()

	for _, id := range []string{s1, s2} {
		if got := factory.get(t, id).snapshot().stateUpdates; got != 1 {
			t.Errorf("session %s received %d state notifications, want 1", id, got)
		}
	}

	s3 := mustCreate(t, p, "")
	fs3 := factory.get(t, s3)
	if got := fs3.snapshot().stateUpdates; got != 0 {
		t.Errorf("new session received %d state notifications, want 0", got)
	}
	if v, _ := fs3.state.Get("x"); v != 1 {
		t.Errorf("new session reads x = %v, want 1", v)
	}
	if fs3.state != factory.get(t, s1).state || fs3.state != p.SharedState() {
		t.Error("sessions do not share a single state instance")
	}
}

func TestNotifyBroadcasts(t *testing.T) {
	factory := newFakeFactory(false)
	p := newTestProcessor(t, factory)

	s1 := mustCreate(t, p, "")
	s2 := mustCreate(t, p, "")
	p.EndSession(s2)

	p.NotifyBackendSessionID("req-1", "backend-1")
	p.NotifyErrorResponse("req-2", map[string]any{"status": 400})
	p.Sync()

	for _, id := range []string{s1, s2} {
		got := factory.get(t, id).snapshot()
		if len(got.acks) != 1 || got.acks[0] != (ack{"req-1", "backend-1"}) {
			t.Errorf("session %s acks = %v", id, got.acks)
		}
		if len(got.errs) != 1 || got.errs[0] != "req-2" {
			t.Errorf("session %s errors = %v", id, got.errs)
		}
	}
}

func TestNotifyWithNoSessions(t *testing.T) {
	p := newTestProcessor(t, newFakeFactory(false))

	p.NotifyBackendSessionID("req-1", "backend-1")
	p.NotifyErrorResponse("req-1", nil)
	p.UpdateSharedState(nil)
	p.Sync()

	if len(p.Sessions()) != 0 {
		t.Error("broadcast with no sessions changed the registry")
	}
}

func TestClose(t *testing.T) {
	factory := newFakeFactory(false)
	p := New(WithLogger(quietLogger()), WithSessionFactory(factory.build))

	id := mustCreate(t, p, "")
	p.ProcessEvent(id, playAt(1))
	p.Close()
	p.Close()

	if got := factory.get(t, id).snapshot(); len(got.events) != 1 {
		t.Errorf("operation submitted before Close did not run")
	}

	if _, err := p.CreateSession(nil, ""); err != ErrClosed {
		t.Errorf("CreateSession after Close error = %v, want ErrClosed", err)
	}
	p.ProcessEvent(id, playAt(2))
	p.Sync()
	if p.Sessions() != nil {
		t.Error("Sessions() after Close should return nil")
	}
}

func TestScenario_RealTimeSessionLifecycle(t *testing.T) {
	var mu sync.Mutex
	var records []event.Record
	p := New(
		WithLogger(quietLogger()),
		WithIDGenerator(func() string { return "s1" }),
		WithDispatcher(func(rec event.Record) {
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
		}),
	)
	defer p.Close()

	p.UpdateSharedState(map[string]any{state.KeyChannel: "web"})
	id := mustCreate(t, p, "trk-1")
	if id != "s1" {
		t.Fatalf("id = %q, want s1", id)
	}

	p.ProcessEvent(id, event.XDMEvent{
		Type:      event.SessionStart,
		Timestamp: time.Unix(1700000000, 0),
		XDM:       map[string]any{"sessionDetails": map[string]any{"name": "a"}},
	})
	p.ProcessEvent(id, playAt(3))
	p.Sync()

	mu.Lock()
	if len(records) != 1 {
		mu.Unlock()
		t.Fatalf("dispatched %d records before acknowledgement, want 1", len(records))
	}
	startReq := records[0].RequestEventID
	if records[0].TrackerSessionID != "trk-1" {
		t.Errorf("tracker session id = %q", records[0].TrackerSessionID)
	}
	mu.Unlock()

	p.EndSession(id)
	settle(p)
	if registered(p)[id] != session.Ending {
		t.Fatalf("session should wait for its pending event before terminating")
	}

	p.NotifyBackendSessionID(startReq, "backend-9")
	settle(p)

	if _, ok := registered(p)[id]; ok {
		t.Error("s1 still registered after end completed")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(records) != 2 || records[1].BackendSessionID != "backend-9" {
		t.Errorf("records = %+v", records)
	}
}
