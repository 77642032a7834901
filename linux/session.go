//go:build linux

package linux

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/internal/session"
	"github.com/godbus/dbus/v5"
	"github.com/puzpuzpuz/xsync/v3"
)

// BackendName identifies the BlueZ D-Bus backend in errors and logs.
const BackendName = "bluez"

// apiVersion is the version of the BlueZ interfaces the backend calls.
const apiVersion = "1"

// BluezSession is a session backend over the BlueZ D-Bus API.
type BluezSession struct {
	handle *BusHandle

	conn     busConn
	unlisten func()
	adapter  bluetooth.ControllerData

	// sinks holds the notification receivers, keyed by characteristic path.
	sinks *xsync.MapOf[dbus.ObjectPath, func([]byte)]

	agent *agent

	cfg config.Configuration
	log *slog.Logger

	sync.Mutex
}

var (
	_ session.Backend        = (*BluezSession)(nil)
	_ session.AgentRegistrar = (*BluezSession)(nil)
)

// NewSession returns a Bluetooth session over the bus connection of handle.
func NewSession(handle *BusHandle) bluetooth.Session {
	return session.New(NewBackend(handle))
}

// NewBackend returns a new BlueZ backend over the bus connection of handle.
func NewBackend(handle *BusHandle) *BluezSession {
	return &BluezSession{handle: handle}
}

// Name returns the name of the backend.
func (b *BluezSession) Name() string {
	return BackendName
}

// Version returns the version of the BlueZ interfaces in use.
func (b *BluezSession) Version() string {
	return apiVersion
}

// Open acquires the shared bus connection, and starts listening for
// property changes of BlueZ objects.
func (b *BluezSession) Open(ctx context.Context, cfg config.Configuration, log *slog.Logger) error {
	b.Lock()
	defer b.Unlock()

	conn, err := b.handle.Acquire()
	if err != nil {
		return fault.Wrap(err,
			fctx.With(ctx, "error_at", "acquire-bus"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot open the system bus"),
		)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(dbusProperties),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchOption("path_namespace", bluezRoot),
	); err != nil {
		_ = b.handle.Release()

		return fault.Wrap(err,
			fctx.With(ctx, "error_at", "add-match"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot subscribe to BlueZ property changes"),
		)
	}

	b.conn = conn
	b.cfg = cfg
	b.log = log.With("backend", BackendName)
	b.sinks = xsync.NewMapOf[dbus.ObjectPath, func([]byte)]()
	b.agent = newAgent(b.handle.objectPath("agent"), b.log)
	b.unlisten = b.handle.Listen(b.handleSignal)

	return nil
}

// Close unregisters the agent, and releases the bus connection.
func (b *BluezSession) Close() error {
	b.Lock()
	defer b.Unlock()

	if b.conn == nil {
		return nil
	}

	if b.unlisten != nil {
		b.unlisten()
	}
	b.sinks.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.CommandTimeout)
	defer cancel()
	b.agent.unregister(ctx, b.conn)

	b.conn = nil

	return b.handle.Release()
}

// handleSignal forwards characteristic value changes to the notification sinks.
func (b *BluezSession) handleSignal(sig *dbus.Signal) {
	if sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return
	}

	if iface, ok := sig.Body[0].(string); !ok || iface != bluezGattChar {
		return
	}

	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	value, ok := changed["Value"]
	if !ok {
		return
	}

	data, ok := value.Value().([]byte)
	if !ok {
		b.log.Debug("unexpected characteristic value", "path", sig.Path, "type", value.Signature().String())
		return
	}

	if sink, ok := b.sinks.Load(sig.Path); ok {
		sink(data)
	}
}

func (b *BluezSession) object(p dbus.ObjectPath) dbus.BusObject {
	return b.conn.Object(bluezBus, p)
}

// call invokes a method, and converts its error into a policy signal.
func (b *BluezSession) call(ctx context.Context, p dbus.ObjectPath, method string, args ...interface{}) *dbus.Call {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()

	call := b.object(p).CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		b.log.Debug("method call failed", "path", p, "method", method, "error", call.Err)
		call.Err = callError(method, call.Err)
	}

	return call
}

func (b *BluezSession) managedObjects(ctx context.Context) (managedObjects, error) {
	var objects managedObjects

	call := b.call(ctx, "/", dbusObjectManager+".GetManagedObjects")
	if call.Err != nil {
		return nil, call.Err
	}

	if err := call.Store(&objects); err != nil {
		return nil, fault.Wrap(err,
			fctx.With(ctx, "error_at", "store-managed-objects"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot decode the BlueZ object tree"),
		)
	}

	return objects, nil
}

func (b *BluezSession) adapterPath() dbus.ObjectPath {
	b.Lock()
	defer b.Unlock()

	return dbus.ObjectPath(bluezRoot + "/" + b.adapter.UniqueName)
}
