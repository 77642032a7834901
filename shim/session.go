// Package shim implements a session backend which drives bluetoothctl
// over its standard input and output.
package shim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/internal/eventbuf"
	"github.com/bluetuith-org/ble-session/internal/protocol"
	"github.com/bluetuith-org/ble-session/internal/session"
	"github.com/bluetuith-org/ble-session/internal/transport"
	"github.com/bluetuith-org/ble-session/shim/internal/commands"
	"github.com/bluetuith-org/ble-session/shim/internal/events"
	"github.com/puzpuzpuz/xsync/v3"
)

// BackendName identifies the bluetoothctl backend in errors and logs.
const BackendName = "bluetoothctl"

// ShimSession is a session backend over a bluetoothctl process.
type ShimSession struct {
	newChannel func(cfg config.Configuration, log *slog.Logger) transport.Channel

	channel  transport.Channel
	buffer   *eventbuf.Buffer
	executor *protocol.Executor
	cancel   context.CancelFunc

	decoder events.ValueDecoder
	lineMu  sync.Mutex

	// flush completes a hexdump which ended with a full row, once
	// no more output has arrived for a poll slice.
	flush *time.Timer

	// sinks holds the notification receivers, keyed by attribute path.
	sinks *xsync.MapOf[string, func([]byte)]

	agent *agent

	cfg     config.Configuration
	log     *slog.Logger
	version string

	sync.Mutex
}

var (
	_ session.Backend        = (*ShimSession)(nil)
	_ session.AgentRegistrar = (*ShimSession)(nil)
)

// NewSession returns a Bluetooth session which drives bluetoothctl.
func NewSession() bluetooth.Session {
	return session.New(NewBackend())
}

// NewBackend returns a new bluetoothctl backend.
func NewBackend() *ShimSession {
	return &ShimSession{newChannel: newSubprocess}
}

func newSubprocess(cfg config.Configuration, log *slog.Logger) transport.Channel {
	sp := transport.NewSubprocess(log, cfg.ExecutablePath)
	sp.Split = events.SplitLines

	return sp
}

// Name returns the name of the backend.
func (s *ShimSession) Name() string {
	return BackendName
}

// Version returns the version reported by bluetoothctl.
func (s *ShimSession) Version() string {
	s.Lock()
	defer s.Unlock()

	return s.version
}

// Open starts bluetoothctl, and waits until it answers commands.
func (s *ShimSession) Open(ctx context.Context, cfg config.Configuration, log *slog.Logger) error {
	s.Lock()
	defer s.Unlock()

	runCtx := s.reset(cfg, log)

	if err := s.channel.Start(runCtx, s.handleLine); err != nil {
		return fault.Wrap(err,
			fctx.With(ctx, "error_at", "start-bluetoothctl", "path", cfg.ExecutablePath),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot start bluetoothctl"),
		)
	}
	go s.watch(runCtx, s.channel, s.buffer)

	version, err := execute(ctx, s, commands.Version(), cfg.PollSlice)
	if err != nil {
		return fault.Wrap(err,
			fctx.With(ctx, "error_at", "version-bluetoothctl"),
			ftag.With(ftag.Internal),
			fmsg.With("bluetoothctl did not answer"),
		)
	}
	s.version = version

	s.log.Debug("bluetoothctl started", "path", cfg.ExecutablePath, "version", version)

	return nil
}

// Close stops bluetoothctl.
func (s *ShimSession) Close() error {
	s.Lock()
	defer s.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if s.channel != nil {
		err = s.channel.Close()
	}
	if s.buffer != nil {
		s.buffer.Close()
	}
	if s.sinks != nil {
		s.sinks.Clear()
	}

	s.lineMu.Lock()
	s.stopFlush()
	s.lineMu.Unlock()

	return err
}

func (s *ShimSession) reset(cfg config.Configuration, log *slog.Logger) context.Context {
	if s.cancel != nil {
		s.cancel()
	}

	s.cfg = cfg
	s.log = log.With("backend", BackendName)
	s.version = ""

	s.channel = s.newChannel(cfg, s.log)
	s.buffer = eventbuf.New()
	s.executor = protocol.NewExecutor(s.channel, s.buffer, cfg.PollSlice, cfg.CommandTimeout, s.log)
	s.sinks = xsync.NewMapOf[string, func([]byte)]()

	s.lineMu.Lock()
	s.stopFlush()
	s.decoder = events.ValueDecoder{}
	s.lineMu.Unlock()
	s.agent = newAgent(cfg.AuthTimeout)

	// The process must outlive the context of Open.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	return ctx
}

// watch closes the event buffer once bluetoothctl exits, so
// pending and later commands fail fast.
func (s *ShimSession) watch(ctx context.Context, channel transport.Channel, buffer *eventbuf.Buffer) {
	select {
	case <-channel.Done():
		buffer.Close()
		s.log.Info("bluetoothctl exited")

	case <-ctx.Done():
	}
}

// handleLine is called by the channel's reader for every line of output.
func (s *ShimSession) handleLine(line string) {
	s.lineMu.Lock()
	defer s.lineMu.Unlock()

	for _, segment := range events.CleanLine(line) {
		values, hexdump := s.decoder.Feed(segment)
		s.deliver(values...)

		if hexdump {
			continue
		}

		if request, ok := events.ParseAgentRequest(segment); ok {
			s.agent.handle(s.log, s.channel, request)
		}

		s.buffer.Push(segment)
	}

	switch {
	case !s.decoder.Pending():
		s.stopFlush()

	case s.flush == nil:
		s.flush = time.AfterFunc(s.cfg.PollSlice, s.flushPending)

	default:
		s.flush.Reset(s.cfg.PollSlice)
	}
}

// flushPending completes a hexdump value which no further line has ended.
func (s *ShimSession) flushPending() {
	s.lineMu.Lock()
	defer s.lineMu.Unlock()

	if v, ok := s.decoder.Flush(); ok {
		s.deliver(v)
	}
}

// deliver pushes decoded values to the event buffer, and to the
// notification receiver of their attribute. lineMu must be held.
func (s *ShimSession) deliver(values ...events.Value) {
	for _, v := range values {
		s.buffer.Push(v.String())

		if sink, ok := s.sinks.Load(v.Path); ok && v.Path != "" {
			sink(v.Data)
		}
	}
}

func (s *ShimSession) stopFlush() {
	if s.flush != nil {
		s.flush.Stop()
		s.flush = nil
	}
}

// execute issues a command while holding the executor lock.
func execute[T any](ctx context.Context, s *ShimSession, cmd *commands.Command[T], quiet time.Duration) (T, error) {
	var result T

	err := s.executor.Transact(func(tx protocol.Tx) error {
		var err error
		result, err = cmd.ExecuteWith(ctx, tx, quiet)

		return err
	})

	return result, err
}
