package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/internal/logger"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	testAddress    = bluetooth.MustParseMAC("AA:BB:CC:DD:EE:FF")
	testController = bluetooth.ControllerData{
		Address:    bluetooth.MustParseMAC("00:1A:7D:DA:71:13"),
		UniqueName: "hci0",
		Powered:    true,
		Default:    true,
	}
	testCharUUID = uuid.MustParse("0000fff1-0000-1000-8000-00805f9b34fb")
	testHandle   = bluetooth.Handle{
		Path: "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011",
		UUID: testCharUUID,
	}
)

// fakeBackend records its calls, and answers them from scripted state.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	controllers []bluetooth.ControllerData
	device      bluetooth.DeviceData

	// unavailableFor is the number of DeviceInfo calls which report the device as unknown.
	// A negative value never makes the device available.
	unavailableFor int

	// charsAfter is the number of Characteristics calls which return an empty table.
	charsAfter int
	noChars    bool

	connectErrs []error
	pairErr     error
	removeErr   error
	writeErr    error

	// readBack computes the value read after a write.
	readBack func(written []byte) []byte
	value    []byte

	sinks map[string]func([]byte)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		calls:       make(map[string]int),
		controllers: []bluetooth.ControllerData{testController},
		device:      bluetooth.DeviceData{Address: testAddress, Name: "sensor"},
		sinks:       make(map[string]func([]byte)),
	}
}

func (f *fakeBackend) call(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[name]++

	return f.calls[name]
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[name]
}

func (f *fakeBackend) notify(value []byte) {
	f.mu.Lock()
	sink := f.sinks[testHandle.Path]
	f.mu.Unlock()

	if sink != nil {
		sink(value)
	}
}

func (f *fakeBackend) Name() string    { return "fake" }
func (f *fakeBackend) Version() string { return "1.0" }

func (f *fakeBackend) Open(context.Context, config.Configuration, *slog.Logger) error {
	f.call("open")
	return nil
}

func (f *fakeBackend) Close() error {
	f.call("close")
	return nil
}

func (f *fakeBackend) Controllers(context.Context) ([]bluetooth.ControllerData, error) {
	f.call("controllers")
	return f.controllers, nil
}

func (f *fakeBackend) SelectController(context.Context, bluetooth.ControllerData) error {
	f.call("select-controller")
	return nil
}

func (f *fakeBackend) StartDiscovery(context.Context) error {
	f.call("start-discovery")
	return nil
}

func (f *fakeBackend) StopDiscovery(context.Context) error {
	f.call("stop-discovery")
	return nil
}

func (f *fakeBackend) Devices(context.Context) ([]bluetooth.DeviceData, error) {
	f.call("devices")

	f.mu.Lock()
	defer f.mu.Unlock()

	return []bluetooth.DeviceData{
		{Address: f.device.Address, Name: f.device.Name},
		{Address: bluetooth.MustParseMAC("11:22:33:44:55:66"), UUIDs: uuid.UUIDs{uuid.MustParse("0000180d-0000-1000-8000-00805f9b34fb")}},
	}, nil
}

func (f *fakeBackend) DeviceInfo(_ context.Context, address bluetooth.MacAddress) (bluetooth.DeviceData, error) {
	n := f.call("info")

	f.mu.Lock()
	defer f.mu.Unlock()

	if address != f.device.Address || f.unavailableFor < 0 || n <= f.unavailableFor {
		return bluetooth.DeviceData{}, &policy.Signal{Message: "Device " + address.String() + " not available"}
	}

	return f.device, nil
}

func (f *fakeBackend) Connect(context.Context, bluetooth.MacAddress) error {
	n := f.call("connect")

	f.mu.Lock()
	defer f.mu.Unlock()

	if n <= len(f.connectErrs) && f.connectErrs[n-1] != nil {
		return f.connectErrs[n-1]
	}
	f.device.Connected = true

	return nil
}

func (f *fakeBackend) Disconnect(context.Context, bluetooth.MacAddress) error {
	f.call("disconnect")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.device.Connected = false

	return nil
}

func (f *fakeBackend) Pair(context.Context, bluetooth.MacAddress) error {
	f.call("pair")
	return f.pairErr
}

func (f *fakeBackend) SetTrusted(_ context.Context, _ bluetooth.MacAddress, trusted bool) error {
	f.call("trust")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.device.Trusted = trusted

	return nil
}

func (f *fakeBackend) Remove(context.Context, bluetooth.MacAddress) error {
	f.call("remove")
	return f.removeErr
}

func (f *fakeBackend) Services(context.Context, bluetooth.MacAddress) ([]bluetooth.ServiceData, error) {
	f.call("services")
	return nil, nil
}

func (f *fakeBackend) Characteristics(context.Context, bluetooth.MacAddress) ([]bluetooth.CharacteristicData, error) {
	n := f.call("characteristics")
	if f.noChars || n <= f.charsAfter {
		return nil, nil
	}

	return []bluetooth.CharacteristicData{
		{Handle: bluetooth.Handle{Path: "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0014", UUID: uuid.New()}},
		{Handle: testHandle, Flags: []string{"read", "write", "notify"}},
	}, nil
}

func (f *fakeBackend) Read(context.Context, bluetooth.MacAddress, bluetooth.Handle) ([]byte, error) {
	f.call("read")

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.value, nil
}

func (f *fakeBackend) Write(_ context.Context, _ bluetooth.MacAddress, _ bluetooth.Handle, value []byte) error {
	f.call("write")
	if f.writeErr != nil {
		return f.writeErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.value = value
	if f.readBack != nil {
		f.value = f.readBack(value)
	}

	return nil
}

func (f *fakeBackend) StartNotify(_ context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle, sink func([]byte)) error {
	f.call("start-notify")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sinks[handle.Path] = sink

	return nil
}

func (f *fakeBackend) StopNotify(_ context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle) error {
	f.call("stop-notify")

	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.sinks, handle.Path)

	return nil
}

func testConfig() config.Configuration {
	cfg := config.New()
	cfg.Logger = logger.Discard()
	cfg.Registerer = prometheus.NewRegistry()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.PollSlice = 10 * time.Millisecond
	cfg.AvailabilityTimeout = 200 * time.Millisecond
	cfg.ResolveTimeout = 200 * time.Millisecond
	cfg.CommandTimeout = time.Second

	return cfg
}
