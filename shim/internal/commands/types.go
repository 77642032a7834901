// Package commands builds the bluetoothctl commands of a session,
// along with the markers which characterize their outcome.
package commands

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/bluetuith-org/ble-session/internal/eventbuf"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/bluetuith-org/ble-session/internal/protocol"
	"github.com/bluetuith-org/ble-session/shim/internal/events"
)

// NoResult is the result type of commands which only report success or failure.
type NoResult = struct{}

// Runner issues commands to bluetoothctl. It is implemented by protocol.Tx.
type Runner interface {
	Execute(ctx context.Context, cmd protocol.Command) (protocol.Outcome, error)
	Collect(ctx context.Context, quiet time.Duration) ([]eventbuf.Event, error)
	Issue(ctx context.Context, text string) error
}

// Command describes a bluetoothctl command.
// T is the return value type of the command. If T is of type NoResult,
// the command only returns errors, and no other values.
type Command[T any] struct {
	verb string
	cmd  string
	args []Argument

	success []string
	failure []string
	timeout time.Duration

	// collect gathers the output which follows the outcome, until a quiet gap.
	// Commands without success markers are only collected.
	collect bool
	parse   func(lines []string) (T, error)
}

var nativeError = regexp.MustCompile(`org\.[A-Za-z]+(\.[A-Za-z0-9]+)+`)

// String returns the text sent to bluetoothctl.
func (c *Command[T]) String() string {
	sb := strings.Builder{}
	sb.WriteString(c.cmd)

	for _, arg := range c.args {
		sb.WriteString(" ")
		sb.WriteString(arg.String())
	}

	return sb.String()
}

// Protocol returns the command in the form the executor issues it.
func (c *Command[T]) Protocol() protocol.Command {
	return protocol.Command{
		Verb:    c.verb,
		Text:    c.String(),
		Success: c.success,
		Failure: c.failure,
		Timeout: c.timeout,
	}
}

// WithArgument appends a positional argument.
func (c *Command[T]) WithArgument(arg Argument) *Command[T] {
	c.args = append(c.args, arg)
	return c
}

// WithTimeout overrides the default command timeout.
func (c *Command[T]) WithTimeout(timeout time.Duration) *Command[T] {
	c.timeout = timeout
	return c
}

// ExecuteWith issues the command with r, and parses its output.
// Failures reported by bluetoothctl are returned as *policy.Signal.
// quiet is the gap which ends collected output.
func (c *Command[T]) ExecuteWith(ctx context.Context, r Runner, quiet time.Duration) (T, error) {
	var result T

	if len(c.success) == 0 {
		if err := r.Issue(ctx, c.String()); err != nil {
			return result, err
		}

		collected, err := r.Collect(ctx, quiet)
		if err != nil {
			return result, err
		}

		return c.parseEvents(collected)
	}

	outcome, err := r.Execute(ctx, c.Protocol())
	if err != nil {
		return result, err
	}

	switch outcome.Status {
	case protocol.StatusFailure:
		return result, FailureSignal(outcome)

	case protocol.StatusTimedOut:
		return result, policy.TimedOut(c.String(), c.timeout)
	}

	output := append([]eventbuf.Event{outcome.Event}, outcome.Rest...)
	if c.collect {
		more, err := r.Collect(ctx, quiet)
		if err != nil {
			return result, err
		}

		output = append(output, more...)
	}

	return c.parseEvents(output)
}

func (c *Command[T]) parseEvents(output []eventbuf.Event) (T, error) {
	var result T
	if c.parse == nil {
		return result, nil
	}

	lines := make([]string, 0, len(output))
	for _, ev := range output {
		lines = append(lines, ev.Text)
	}

	return c.parse(lines)
}

// FailureSignal converts a failed outcome to a signal, with the native
// error name as its code when bluetoothctl printed one.
func FailureSignal(outcome protocol.Outcome) *policy.Signal {
	return &policy.Signal{
		Code:    nativeError.FindString(outcome.Event.Text),
		Message: strings.TrimSpace(events.TrimPrompt(outcome.Event.Text)),
	}
}
