package protocol

import (
	"testing"

	"github.com/bluetuith-org/ble-session/internal/eventbuf"
	"github.com/stretchr/testify/assert"
)

func events(lines ...string) []eventbuf.Event {
	out := make([]eventbuf.Event, 0, len(lines))
	for i, line := range lines {
		out = append(out, eventbuf.Event{Seq: int64(i + 1), Text: line})
	}

	return out
}

func TestMatchSuccessBeforeFailure(t *testing.T) {
	batch := events("Failed to connect: org.bluez.Error.InProgress Operation already in progress")

	outcome, ok := Match(batch, []string{"already in progress"}, []string{"Failed to connect"})

	assert.True(t, ok)
	assert.Equal(t, StatusSuccess, outcome.Status)
	assert.Equal(t, "already in progress", outcome.Marker)
}

func TestMatchEarliestEventWins(t *testing.T) {
	batch := events(
		"[NEW] Device AA:BB:CC:DD:EE:FF Sensor",
		"Failed to pair: org.bluez.Error.AuthenticationFailed",
		"[CHG] Device AA:BB:CC:DD:EE:FF Paired: yes",
	)

	outcome, ok := Match(batch, []string{"AA:BB:CC:DD:EE:FF Paired: yes"}, []string{"Failed to pair"})

	assert.True(t, ok)
	assert.Equal(t, StatusFailure, outcome.Status)
	assert.Equal(t, int64(2), outcome.Event.Seq)
	assert.Len(t, outcome.Events, 2)
}

func TestMatchEarliestMarkerWins(t *testing.T) {
	batch := events("Notify started Notify stopped")

	outcome, ok := Match(batch, []string{"Notify stopped", "Notify started"}, nil)

	assert.True(t, ok)
	assert.Equal(t, "Notify stopped", outcome.Marker)
}

func TestMatchNoMatch(t *testing.T) {
	_, ok := Match(events("noise", "more noise"), []string{"Connection successful"}, []string{"Failed"})
	assert.False(t, ok)

	_, ok = Match(nil, []string{"x"}, []string{"y"})
	assert.False(t, ok)

	_, ok = Match(events("anything"), []string{""}, nil)
	assert.False(t, ok)
}

func TestMatchIsDeterministic(t *testing.T) {
	batch := events("a", "Attempting to write", "Invalid value at index 0")
	success, failure := []string{"Attempting to write"}, []string{"Invalid value at index 0"}

	first, _ := Match(batch, success, failure)
	for i := 0; i < 10; i++ {
		again, ok := Match(batch, success, failure)
		assert.True(t, ok)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, "a", batch[0].Text)
}

func TestMatchKeepsFollowingEvents(t *testing.T) {
	batch := events(
		"[CHG] Device AA:BB:CC:DD:EE:FF RSSI: -60",
		"Value:",
		"  03 01 01 00                                      ....",
	)

	outcome, ok := Match(batch, []string{"Value:"}, nil)

	assert.True(t, ok)
	assert.Len(t, outcome.Events, 2)
	assert.Equal(t, batch[2:], outcome.Rest)
}
