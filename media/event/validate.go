package event

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidEvent is wrapped by every validation failure.
var ErrInvalidEvent = errors.New("invalid media event")

// Validate checks the fields a session relies on. It collects every problem
// found rather than stopping at the first one.
func Validate(ev XDMEvent) error {
	var problems []string

	if ev.Type == "" {
		problems = append(problems, "event type is required")
	} else if !ev.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown event type %q", ev.Type))
	}

	if ev.Timestamp.IsZero() {
		problems = append(problems, "timestamp is required")
	}

	if ev.Playhead < 0 {
		problems = append(problems, fmt.Sprintf("playhead must not be negative, got %d", ev.Playhead))
	}

	if ev.Type == SessionStart {
		if _, ok := ev.XDM["sessionDetails"]; !ok {
			problems = append(problems, "sessionStart requires sessionDetails")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidEvent, strings.Join(problems, "; "))
	}
	return nil
}
