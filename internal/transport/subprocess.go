package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/bluetuith-org/ble-session/api/errorkinds"
)

// DefaultMaxLineSize bounds a single line of backend output.
const DefaultMaxLineSize = 1024 * 1024

// Subprocess is a Channel to a line-oriented process, driven over its
// standard input and output.
type Subprocess struct {
	path string
	args []string
	log  *slog.Logger

	// Split splits the output of the process into lines.
	// If nil, bufio.ScanLines is used.
	Split bufio.SplitFunc

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	done      chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	closed    atomic.Bool

	writeMu sync.Mutex
}

// NewSubprocess returns a channel to the executable at path.
func NewSubprocess(log *slog.Logger, path string, args ...string) *Subprocess {
	return &Subprocess{
		path: path,
		args: args,
		log:  log,
		done: make(chan struct{}),
	}
}

// Start launches the process and its reader.
func (s *Subprocess) Start(ctx context.Context, sink func(line string)) error {
	if s.closed.Load() {
		return errorkinds.ErrTransportClosed
	}

	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: already started", s.path)
	}

	if err := s.launch(ctx); err != nil {
		s.started.Store(false)
		return err
	}

	go s.readLoop(sink)

	return nil
}

func (s *Subprocess) launch(ctx context.Context) error {
	s.cmd = exec.CommandContext(ctx, s.path, s.args...)

	var err error
	s.stdin, err = s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}

	s.stdout, err = s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.path, err)
	}

	return nil
}

// Send writes text, terminated by a newline, to the process.
func (s *Subprocess) Send(text string) error {
	if s.closed.Load() || !s.started.Load() {
		return errorkinds.ErrTransportClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := io.WriteString(s.stdin, text+"\n"); err != nil {
		return fmt.Errorf("write %q: %w", text, err)
	}

	return nil
}

// Done is closed once the reader has stopped.
func (s *Subprocess) Done() <-chan struct{} {
	return s.done
}

// Close closes the standard input of the process and stops it.
func (s *Subprocess) Close() error {
	var err error

	s.closeOnce.Do(func() {
		s.closed.Store(true)

		if !s.started.Load() {
			close(s.done)
			return
		}

		s.writeMu.Lock()
		s.stdin.Close()
		s.writeMu.Unlock()

		if s.cmd.Process != nil {
			if kerr := s.cmd.Process.Kill(); kerr != nil {
				s.log.Debug("kill backend process", "path", s.path, "error", kerr)
			}
		}

		<-s.done
		err = s.cmd.Wait()
		if _, ok := err.(*exec.ExitError); ok {
			err = nil
		}
	})

	return err
}

func (s *Subprocess) readLoop(sink func(line string)) {
	defer close(s.done)

	scanner := bufio.NewScanner(s.stdout)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), DefaultMaxLineSize)
	if s.Split != nil {
		scanner.Split(s.Split)
	}

	for scanner.Scan() {
		sink(scanner.Text())
	}

	if err := scanner.Err(); err != nil && !s.closed.Load() {
		s.log.Warn("backend reader stopped", "path", s.path, "error", err)
		return
	}

	s.log.Info("backend reader stopped", "path", s.path)
}
