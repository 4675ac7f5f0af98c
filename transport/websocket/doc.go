// Package websocket streams outbound media records to WebSocket subscribers.
//
// A Hub owns every subscriber. Its Run loop handles registration,
// unregistration and publication in turn, so no other goroutine touches the
// subscriber map. Hub.Publish matches event.Dispatcher and is what the
// processor is given as its outbound collaborator; it never blocks the
// processor, dropping the record when the publish queue is full.
//
// Clients subscribe with GET /ws?session=<id> to receive one session's
// records, or without the parameter to receive all of them. Each frame is a
// JSON Message:
//
//	{"session_id": "...", "event": "play", "record": {...}}
//
// Usage:
//
//	hub := websocket.NewHub(256)
//	go hub.Run()
//	defer hub.Close()
//
//	proc := processor.New(processor.WithDispatcher(hub.Publish))
package websocket
