package eventbuf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func texts(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Text)
	}

	return out
}

func TestDrainNowaitPreservesOrder(t *testing.T) {
	b := New()

	b.Push("one")
	b.Push("two")
	b.Push("three")

	events := b.DrainNowait()
	assert.Equal(t, []string{"one", "two", "three"}, texts(events))
	assert.Less(t, events[0].Seq, events[1].Seq)
	assert.Less(t, events[1].Seq, events[2].Seq)
	assert.Empty(t, b.DrainNowait())
}

func TestClear(t *testing.T) {
	b := New()

	b.Push("stale")
	b.Clear()

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.DrainNowait())
}

func TestDrainTimeoutElapsesWhenQuiet(t *testing.T) {
	b := New()

	start := time.Now()
	events, err := b.DrainTimeout(context.Background(), 50*time.Millisecond, false)

	require.NoError(t, err)
	assert.Empty(t, events)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestDrainTimeoutReturnsOnFirstBatch(t *testing.T) {
	b := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Push("line")
	}()

	start := time.Now()
	events, err := b.DrainTimeout(context.Background(), time.Second, false)

	require.NoError(t, err)
	assert.Equal(t, []string{"line"}, texts(events))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDrainTimeoutExtendsOnActivity(t *testing.T) {
	b := New()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, line := range []string{"a", "b", "c"} {
			time.Sleep(30 * time.Millisecond)
			b.Push(line)
		}
	}()

	start := time.Now()
	events, err := b.DrainTimeout(context.Background(), 60*time.Millisecond, true)
	wg.Wait()

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, texts(events))
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
}

func TestDrainTimeoutHonorsContext(t *testing.T) {
	b := New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.DrainTimeout(ctx, time.Second, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCloseWakesWaiters(t *testing.T) {
	b := New()

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.Close()
	}()

	start := time.Now()
	_, err := b.DrainTimeout(context.Background(), time.Second, true)

	assert.ErrorIs(t, err, errorkinds.ErrTransportClosed)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	b.Push("dropped")
	assert.Equal(t, 0, b.Len())
	assert.True(t, b.Closed())
}
