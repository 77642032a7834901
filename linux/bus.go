//go:build linux

package linux

import (
	"fmt"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/godbus/dbus/v5"
	"github.com/puzpuzpuz/xsync/v3"
)

// busConn is the part of a D-Bus connection the backend uses.
// It is implemented by *dbus.Conn.
type busConn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	AddMatchSignal(options ...dbus.MatchOption) error
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Close() error
}

// BusHandle is a reference-counted connection to the system bus, which is
// shared by the sessions it is passed to. The connection is opened by the
// first Acquire, and closed by the last Release.
type BusHandle struct {
	dial func() (busConn, error)

	conn    busConn
	refs    int
	signals chan *dbus.Signal
	done    chan struct{}

	listeners *xsync.MapOf[uint64, func(*dbus.Signal)]
	nextID    uint64
	objects   uint64

	mu sync.Mutex
}

// NewBusHandle returns a handle to a private system bus connection.
func NewBusHandle() *BusHandle {
	return newBusHandle(func() (busConn, error) {
		return dbus.ConnectSystemBus()
	})
}

func newBusHandle(dial func() (busConn, error)) *BusHandle {
	return &BusHandle{
		dial:      dial,
		listeners: xsync.NewMapOf[uint64, func(*dbus.Signal)](),
	}
}

// Acquire returns the shared connection, opening it if necessary.
// Every successful Acquire must be paired with a Release.
func (h *BusHandle) Acquire() (busConn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		conn, err := h.dial()
		if err != nil {
			return nil, fault.Wrap(err,
				ftag.With(ftag.Internal),
				fmsg.With("Cannot connect to the system bus"),
			)
		}

		h.conn = conn
		h.signals = make(chan *dbus.Signal, signalQueueSize)
		h.done = make(chan struct{})

		conn.Signal(h.signals)
		go h.dispatch(h.signals, h.done)
	}

	h.refs++

	return h.conn, nil
}

// Release drops a reference to the connection, and closes it
// once no references remain.
func (h *BusHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		return nil
	}

	h.refs--
	if h.refs > 0 {
		return nil
	}

	h.conn.RemoveSignal(h.signals)
	close(h.done)

	err := h.conn.Close()
	h.conn = nil

	return err
}

// Refs returns the number of references held on the connection.
func (h *BusHandle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.refs
}

// Listen calls fn for every signal received on the connection,
// until the returned function is called.
func (h *BusHandle) Listen(fn func(*dbus.Signal)) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.mu.Unlock()

	h.listeners.Store(id, fn)

	return func() { h.listeners.Delete(id) }
}

// objectPath returns a new path for an object exported on the connection.
func (h *BusHandle) objectPath(name string) dbus.ObjectPath {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.objects++

	return dbus.ObjectPath(fmt.Sprintf("/org/bluetuith/blesession/%s%d", name, h.objects))
}

func (h *BusHandle) dispatch(signals <-chan *dbus.Signal, done <-chan struct{}) {
	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return
			}

			h.listeners.Range(func(_ uint64, fn func(*dbus.Signal)) bool {
				fn(sig)
				return true
			})

		case <-done:
			return
		}
	}
}
