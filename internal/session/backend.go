package session

import (
	"context"
	"log/slog"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
)

// Backend is the set of primitive operations a Bluetooth backend provides.
//
// Backends report native failures as *policy.Signal values, and leave
// availability checks, idempotence and recovery to the Manager.
type Backend interface {
	// Name and Version identify the backend in errors and logs.
	Name() string
	Version() string

	// Open connects to the backend.
	Open(ctx context.Context, cfg config.Configuration, log *slog.Logger) error

	// Close disconnects from the backend, and stops all of its readers.
	Close() error

	Controllers(ctx context.Context) ([]bluetooth.ControllerData, error)
	SelectController(ctx context.Context, controller bluetooth.ControllerData) error
	StartDiscovery(ctx context.Context) error
	StopDiscovery(ctx context.Context) error

	// Devices returns the devices known to the selected controller.
	Devices(ctx context.Context) ([]bluetooth.DeviceData, error)

	// DeviceInfo returns the properties of a device, or a failure
	// which the policy classifies as DeviceNotAvailable.
	DeviceInfo(ctx context.Context, address bluetooth.MacAddress) (bluetooth.DeviceData, error)

	Connect(ctx context.Context, address bluetooth.MacAddress) error
	Disconnect(ctx context.Context, address bluetooth.MacAddress) error
	Pair(ctx context.Context, address bluetooth.MacAddress) error
	SetTrusted(ctx context.Context, address bluetooth.MacAddress, trusted bool) error
	Remove(ctx context.Context, address bluetooth.MacAddress) error

	Services(ctx context.Context, address bluetooth.MacAddress) ([]bluetooth.ServiceData, error)
	Characteristics(ctx context.Context, address bluetooth.MacAddress) ([]bluetooth.CharacteristicData, error)

	Read(ctx context.Context, address bluetooth.MacAddress, handle bluetooth.Handle) ([]byte, error)
	Write(ctx context.Context, address bluetooth.MacAddress, handle bluetooth.Handle, value []byte) error

	// StartNotify enables notifications on an attribute. sink is called
	// with every notified value, and must not block.
	StartNotify(ctx context.Context, address bluetooth.MacAddress, handle bluetooth.Handle, sink func(value []byte)) error
	StopNotify(ctx context.Context, address bluetooth.MacAddress, handle bluetooth.Handle) error
}

// AgentRegistrar is implemented by backends which can forward
// pairing requests to an application authorizer.
type AgentRegistrar interface {
	RegisterAgent(ctx context.Context, authorizer bluetooth.SessionAuthorizer, cfg config.Configuration) error
}
