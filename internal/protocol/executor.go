package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/bluetuith-org/ble-session/internal/eventbuf"
)

// Command describes a request to the backend, along with
// the markers that characterize its outcome.
type Command struct {
	// Verb names the command for logs and metrics.
	Verb string

	Text    string
	Success []string
	Failure []string

	// Timeout bounds the wait for a matching event.
	// If zero, the executor's default timeout is used.
	Timeout time.Duration
}

// Sender sends a command to the backend.
type Sender interface {
	Send(text string) error
}

// Executor issues commands one at a time, and resolves each
// to exactly one Outcome.
type Executor struct {
	sender Sender
	buffer *eventbuf.Buffer

	slice   time.Duration
	timeout time.Duration

	log *slog.Logger

	mu sync.Mutex
}

// Tx issues commands while holding the executor lock.
type Tx struct {
	e *Executor
}

// NewExecutor returns a new executor which sends commands with sender
// and matches the events pushed into buffer.
func NewExecutor(sender Sender, buffer *eventbuf.Buffer, slice, timeout time.Duration, log *slog.Logger) *Executor {
	return &Executor{
		sender:  sender,
		buffer:  buffer,
		slice:   slice,
		timeout: timeout,
		log:     log,
	}
}

// Execute clears stale events, sends the command exactly once, and polls the
// buffer until a marker matches or the command times out.
// An error is returned only if the command could not be issued or the
// transport closed while waiting.
func (e *Executor) Execute(ctx context.Context, cmd Command) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.execute(ctx, cmd)
}

// Transact runs fn while holding the executor lock, so the commands
// issued through tx are not interleaved with other commands.
func (e *Executor) Transact(fn func(tx Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return fn(Tx{e})
}

// Execute is like Executor.Execute.
func (tx Tx) Execute(ctx context.Context, cmd Command) (Outcome, error) {
	return tx.e.execute(ctx, cmd)
}

// Collect gathers the events which arrive until a quiet gap of the provided duration.
func (tx Tx) Collect(ctx context.Context, quiet time.Duration) ([]eventbuf.Event, error) {
	events, err := tx.e.buffer.DrainTimeout(ctx, quiet, true)
	if err != nil {
		return events, tx.e.wrapWaitError(ctx, err, "collect")
	}

	return events, nil
}

// Issue clears stale events and sends text without waiting for an outcome.
// It is used for commands whose output is collected, not matched.
func (tx Tx) Issue(ctx context.Context, text string) error {
	return tx.e.send(ctx, text)
}

func (e *Executor) execute(ctx context.Context, cmd Command) (Outcome, error) {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	start := time.Now()
	if err := e.send(ctx, cmd.Text); err != nil {
		return Outcome{}, err
	}
	e.log.Debug("command sent", "verb", cmd.Verb, "command", cmd.Text, "timeout", timeout)

	deadline := start.Add(timeout)
	var seen []eventbuf.Event

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			outcome := Outcome{Status: StatusTimedOut, Events: seen}
			e.resolved(cmd, outcome, start)

			return outcome, nil
		}

		batch, err := e.buffer.DrainTimeout(ctx, min(e.slice, remaining), false)
		seen = append(seen, batch...)

		if outcome, ok := Match(batch, cmd.Success, cmd.Failure); ok {
			outcome.Events = seen[:len(seen)-len(batch)+len(outcome.Events)]
			e.resolved(cmd, outcome, start)

			return outcome, nil
		}

		if err != nil {
			return Outcome{Status: StatusTimedOut, Events: seen}, e.wrapWaitError(ctx, err, cmd.Verb)
		}
	}
}

func (e *Executor) send(ctx context.Context, text string) error {
	if e.buffer.Closed() {
		return fault.Wrap(errorkinds.ErrTransportClosed,
			fctx.With(ctx, "error_at", "send"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot send command on a closed channel"),
		)
	}

	e.buffer.Clear()
	if err := e.sender.Send(text); err != nil {
		return fault.Wrap(err,
			fctx.With(ctx, "error_at", "send", "command", text),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot send command to the backend"),
		)
	}

	return nil
}

func (e *Executor) wrapWaitError(ctx context.Context, err error, where string) error {
	kind := ftag.Internal
	if errors.Is(err, context.DeadlineExceeded) {
		kind = errorkinds.KindTimeout
	}

	return fault.Wrap(err,
		fctx.With(ctx, "error_at", where),
		ftag.With(kind),
		fmsg.With("Stopped waiting for the command outcome"),
	)
}

func (e *Executor) resolved(cmd Command, outcome Outcome, start time.Time) {
	e.log.Debug("command resolved",
		"verb", cmd.Verb,
		"status", outcome.Status.String(),
		"marker", outcome.Marker,
		"took", time.Since(start),
	)
}
