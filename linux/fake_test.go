//go:build linux

package linux

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/internal/logger"
	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testAdapterPath = dbus.ObjectPath("/org/bluez/hci0")
	testDevicePath  = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
	testServicePath = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010")
	testCharPath    = dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011")
)

var testAddress = bluetooth.MustParseMAC("AA:BB:CC:DD:EE:FF")

type busCall struct {
	path   dbus.ObjectPath
	method string
	args   []interface{}
}

type callHandler func(ctx context.Context, args []interface{}) ([]interface{}, error)

// fakeBus answers method calls with handlers keyed by method name.
type fakeBus struct {
	handlers map[string]callHandler

	calls    []busCall
	exported map[dbus.ObjectPath]interface{}
	signals  chan<- *dbus.Signal
	matches  int
	closed   int

	mu sync.Mutex
}

var _ busConn = (*fakeBus)(nil)

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers: make(map[string]callHandler),
		exported: make(map[dbus.ObjectPath]interface{}),
	}
}

func (f *fakeBus) Object(_ string, path dbus.ObjectPath) dbus.BusObject {
	return &fakeObject{bus: f, path: path}
}

func (f *fakeBus) Signal(ch chan<- *dbus.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signals = ch
}

func (f *fakeBus) RemoveSignal(chan<- *dbus.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signals = nil
}

func (f *fakeBus) AddMatchSignal(...dbus.MatchOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.matches++

	return nil
}

func (f *fakeBus) Export(v interface{}, path dbus.ObjectPath, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if v == nil {
		delete(f.exported, path)
	} else {
		f.exported[path] = v
	}

	return nil
}

func (f *fakeBus) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed++

	return nil
}

func (f *fakeBus) handle(method string, handler callHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[method] = handler
}

func (f *fakeBus) reply(method string, body ...interface{}) {
	f.handle(method, func(context.Context, []interface{}) ([]interface{}, error) {
		return body, nil
	})
}

func (f *fakeBus) fail(method, name, message string) {
	f.handle(method, func(context.Context, []interface{}) ([]interface{}, error) {
		return nil, dbus.Error{Name: name, Body: []interface{}{message}}
	})
}

func (f *fakeBus) emit(sig *dbus.Signal) {
	f.mu.Lock()
	signals := f.signals
	f.mu.Unlock()

	signals <- sig
}

// called returns the calls made to method.
func (f *fakeBus) called(method string) []busCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var calls []busCall
	for _, c := range f.calls {
		if c.method == method {
			calls = append(calls, c)
		}
	}

	return calls
}

func (f *fakeBus) call(ctx context.Context, path dbus.ObjectPath, method string, args []interface{}) *dbus.Call {
	f.mu.Lock()
	f.calls = append(f.calls, busCall{path: path, method: method, args: args})
	handler, ok := f.handlers[method]
	f.mu.Unlock()

	call := &dbus.Call{Path: path, Method: method, Args: args}
	if !ok {
		return call
	}

	call.Body, call.Err = handler(ctx, args)

	return call
}

// fakeObject routes calls to its bus. Methods the backend does not use are left unimplemented.
type fakeObject struct {
	dbus.BusObject

	bus  *fakeBus
	path dbus.ObjectPath
}

func (o *fakeObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.CallWithContext(context.Background(), method, flags, args...)
}

func (o *fakeObject) CallWithContext(ctx context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	return o.bus.call(ctx, o.path, method, args)
}

func (o *fakeObject) Path() dbus.ObjectPath {
	return o.path
}

func testConfig() config.Configuration {
	cfg := config.New()
	cfg.Logger = logger.Discard()
	cfg.Registerer = prometheus.NewRegistry()
	cfg.PollSlice = 10 * time.Millisecond
	cfg.PollInterval = 20 * time.Millisecond
	cfg.AvailabilityTimeout = 200 * time.Millisecond
	cfg.ResolveTimeout = 200 * time.Millisecond
	cfg.CommandTimeout = 500 * time.Millisecond
	cfg.AuthTimeout = time.Second

	return cfg
}

func variants(values map[string]interface{}) map[string]dbus.Variant {
	props := make(map[string]dbus.Variant, len(values))
	for k, v := range values {
		props[k] = dbus.MakeVariant(v)
	}

	return props
}

// testObjects returns an object tree with two adapters, a device with one
// characteristic under the first one, and a device under the second one.
func testObjects() map[dbus.ObjectPath]map[string]map[string]dbus.Variant {
	return map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		"/org/bluez": {
			bluezAgentManager: {},
		},
		testAdapterPath: {
			bluezAdapter: variants(map[string]interface{}{
				"Address": "00:1A:7D:DA:71:13",
				"Name":    "host",
				"Powered": true,
				"Class":   uint32(0x7c010c),
			}),
		},
		"/org/bluez/hci1": {
			bluezAdapter: variants(map[string]interface{}{
				"Address": "00:1A:7D:DA:71:14",
				"Powered": false,
			}),
		},
		testDevicePath: {
			bluezDevice: variants(map[string]interface{}{
				"Address":   "AA:BB:CC:DD:EE:FF",
				"Adapter":   testAdapterPath,
				"Name":      "sensor",
				"Connected": true,
				"RSSI":      int16(-60),
				"UUIDs":     []string{"0000fff0-0000-1000-8000-00805f9b34fb"},
			}),
		},
		"/org/bluez/hci1/dev_11_22_33_44_55_66": {
			bluezDevice: variants(map[string]interface{}{
				"Address": "11:22:33:44:55:66",
			}),
		},
		testServicePath: {
			bluezGattService: variants(map[string]interface{}{
				"UUID":    "0000fff0-0000-1000-8000-00805f9b34fb",
				"Device":  testDevicePath,
				"Primary": true,
			}),
		},
		testCharPath: {
			bluezGattChar: variants(map[string]interface{}{
				"UUID":    "0000fff1-0000-1000-8000-00805f9b34fb",
				"Service": testServicePath,
				"Flags":   []string{"read", "write", "notify"},
			}),
		},
	}
}

func newTestHandle(bus *fakeBus) (*BusHandle, *int) {
	dials := 0
	handle := newBusHandle(func() (busConn, error) {
		dials++
		return bus, nil
	})

	return handle, &dials
}

// openTestBackend returns a backend over bus, with the first adapter selected.
func openTestBackend(t *testing.T, bus *fakeBus) *BluezSession {
	t.Helper()

	handle, _ := newTestHandle(bus)
	b := NewBackend(handle)

	require.NoError(t, b.Open(context.Background(), testConfig(), logger.Discard()))
	t.Cleanup(func() { _ = b.Close() })

	require.NoError(t, b.SelectController(context.Background(), bluetooth.ControllerData{
		Address:    bluetooth.MustParseMAC("00:1A:7D:DA:71:13"),
		UniqueName: "hci0",
	}))

	return b
}
