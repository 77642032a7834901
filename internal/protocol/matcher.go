// Package protocol correlates backend commands with their outcome,
// by matching the events which follow a command against markers.
package protocol

import (
	"strings"

	"github.com/bluetuith-org/ble-session/internal/eventbuf"
)

// Status describes how a command resolved.
type Status int

const (
	// StatusTimedOut is set when no marker matched before the deadline.
	StatusTimedOut Status = iota
	StatusSuccess
	StatusFailure
)

// Outcome is the resolved result of one command.
type Outcome struct {
	Status Status

	// Marker holds the success or failure marker which matched.
	Marker string

	// Event holds the event which matched the marker.
	Event eventbuf.Event

	// Events holds every event drained while the command was pending,
	// up to and including the matching one.
	Events []eventbuf.Event

	// Rest holds the events drained along with the matching one, which
	// arrived after it.
	Rest []eventbuf.Event
}

// String returns the name of the status.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "timed out"
	}
}

// Succeeded reports whether the command matched a success marker.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Match scans events in arrival order. For each event every success marker
// is checked before any failure marker, and the first marker contained in
// the event's text wins. It reports false if no event matched.
func Match(events []eventbuf.Event, success, failure []string) (Outcome, bool) {
	for i, ev := range events {
		if marker, ok := firstContained(ev.Text, success); ok {
			return Outcome{Status: StatusSuccess, Marker: marker, Event: ev, Events: events[:i+1], Rest: events[i+1:]}, true
		}

		if marker, ok := firstContained(ev.Text, failure); ok {
			return Outcome{Status: StatusFailure, Marker: marker, Event: ev, Events: events[:i+1], Rest: events[i+1:]}, true
		}
	}

	return Outcome{}, false
}

func firstContained(text string, markers []string) (string, bool) {
	for _, marker := range markers {
		if marker != "" && strings.Contains(text, marker) {
			return marker, true
		}
	}

	return "", false
}
