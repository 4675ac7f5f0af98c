// Package event defines the media tracking events accepted by sessions and
// the records sessions hand to the outbound dispatcher.
//
// An XDMEvent is what a player integration reports: an event type, the time
// it happened, the playhead position and the media collection payload. A
// Record is what leaves a session once it has been stamped with a request
// event ID and, where known, the backend session ID.
//
// Usage:
//
//	ev := event.XDMEvent{
//		Type:      event.Play,
//		Timestamp: time.Now(),
//		Playhead:  12,
//	}
//	if err := event.Validate(ev); err != nil {
//		return err
//	}
package event
