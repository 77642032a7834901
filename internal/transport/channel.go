// Package transport provides the channels a session exchanges
// commands and events with its backend over.
package transport

import "context"

// Channel is a bidirectional command/event channel to a backend.
type Channel interface {
	// Start opens the channel, and starts a reader which calls sink
	// for every inbound line. sink must not block.
	Start(ctx context.Context, sink func(line string)) error

	// Send writes a command to the backend.
	Send(text string) error

	// Done is closed once the reader has stopped.
	Done() <-chan struct{}

	// Close closes the channel. It is safe to call more than once.
	Close() error
}
