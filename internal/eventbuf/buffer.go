// Package eventbuf implements the queue between a backend reader and
// the command executor.
package eventbuf

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/puzpuzpuz/xsync/v3"
)

// Event is one inbound unit from a backend: a line of output,
// or a decoded bus signal.
type Event struct {
	// Seq is the logical arrival order of the event.
	Seq int64

	Text string
	At   time.Time
}

// Buffer is an unbounded FIFO queue of events.
// Push never blocks, so a reader goroutine feeding the buffer
// is never stalled by a slow consumer.
type Buffer struct {
	events []Event
	seq    *xsync.Counter

	notify chan struct{}
	done   chan struct{}
	closed atomic.Bool

	closeOnce sync.Once
	mu        sync.Mutex
}

// New returns a new event buffer.
func New() *Buffer {
	return &Buffer{
		seq:    xsync.NewCounter(),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends an event to the tail of the buffer.
// Events pushed after Close are dropped.
func (b *Buffer) Push(text string) {
	if b.closed.Load() {
		return
	}

	b.mu.Lock()
	b.seq.Inc()
	b.events = append(b.events, Event{Seq: b.seq.Value(), Text: text, At: time.Now()})
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// DrainNowait removes and returns all queued events, in arrival order.
func (b *Buffer) DrainNowait() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) == 0 {
		return nil
	}

	events := b.events
	b.events = nil

	return events
}

// DrainTimeout waits for events for at most d.
//
// Without extendOnActivity, it returns as soon as at least one batch of
// events is drained, or when d elapses.
// With extendOnActivity, every drained batch restarts the window, so it
// returns only after a quiet gap of d.
//
// If the buffer is closed, the remaining events are returned along with
// errorkinds.ErrTransportClosed.
func (b *Buffer) DrainTimeout(ctx context.Context, d time.Duration, extendOnActivity bool) ([]Event, error) {
	var collected []Event

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		if batch := b.DrainNowait(); len(batch) > 0 {
			collected = append(collected, batch...)
			if !extendOnActivity {
				return collected, nil
			}

			timer.Reset(d)
		}

		if b.closed.Load() {
			return append(collected, b.DrainNowait()...), errorkinds.ErrTransportClosed
		}

		select {
		case <-b.notify:
		case <-b.done:
		case <-timer.C:
			return append(collected, b.DrainNowait()...), nil
		case <-ctx.Done():
			return collected, ctx.Err()
		}
	}
}

// Clear discards all queued events.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()

	select {
	case <-b.notify:
	default:
	}
}

// Len returns the number of queued events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.events)
}

// Close marks the buffer as closed and wakes up all waiters.
func (b *Buffer) Close() {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
	})
}

// Closed reports whether the buffer is closed.
func (b *Buffer) Closed() bool {
	return b.closed.Load()
}
