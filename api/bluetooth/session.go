package bluetooth

import (
	"context"
	"time"

	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/google/uuid"
)

// Session describes a Bluetooth application session.
type Session interface {
	// Start attempts to initialize a session with the system's Bluetooth daemon or service,
	// and selects the controller to operate on.
	Start(authHandler SessionAuthorizer, cfg config.Configuration) error

	// Stop attempts to stop a session with the system's Bluetooth daemon or service.
	Stop() error

	// Controllers returns a list of known controllers.
	Controllers(ctx context.Context) ([]ControllerData, error)

	// Devices scans for the provided duration and returns the devices known to the controller.
	Devices(ctx context.Context, timeout time.Duration) ([]DeviceData, error)

	// DevicesWithUUID is like Devices, but only returns devices which advertise the provided service.
	DevicesWithUUID(ctx context.Context, service uuid.UUID, timeout time.Duration) ([]DeviceData, error)

	// Device returns a function call interface to invoke device related functions.
	Device(deviceAddress MacAddress) Device
}

// Device describes a function call interface to invoke device related functions.
type Device interface {
	// Address returns the address of the device.
	Address() MacAddress

	// Info returns the current properties of the device.
	Info(ctx context.Context) (DeviceData, error)

	// Connect connects to the device, waiting for it to become available first.
	Connect(ctx context.Context) (Result, error)

	// Disconnect disconnects from the device.
	Disconnect(ctx context.Context) (Result, error)

	// Pair pairs with the device.
	Pair(ctx context.Context) (Result, error)

	// Trust marks the device as trusted.
	Trust(ctx context.Context) (Result, error)

	// Distrust removes the trusted mark of the device.
	Distrust(ctx context.Context) (Result, error)

	// Remove removes the device from the controller.
	Remove(ctx context.Context) (Result, error)

	// Services returns the GATT services of the device.
	Services(ctx context.Context) ([]ServiceData, error)

	// Characteristics returns the GATT characteristics of the device.
	Characteristics(ctx context.Context) ([]CharacteristicData, error)

	// ResolveAttribute polls the attribute table of the device until an attribute
	// with the provided UUID appears, or the timeout elapses.
	ResolveAttribute(ctx context.Context, id uuid.UUID, timeout time.Duration) (Handle, error)

	// ReadAttribute reads the value of an attribute.
	ReadAttribute(ctx context.Context, id uuid.UUID) ([]byte, error)

	// WriteAttribute parses a textual payload and writes it to an attribute.
	// The write is only successful if a subsequent read reflects the written value.
	WriteAttribute(ctx context.Context, id uuid.UUID, payload string, radix Radix) (Result, error)

	// WriteBytes is like WriteAttribute, but accepts raw bytes.
	WriteBytes(ctx context.Context, id uuid.UUID, payload []byte) (Result, error)

	// StartNotify enables notifications on an attribute and subscribes to its values.
	StartNotify(ctx context.Context, id uuid.UUID) (Subscription, error)

	// StopNotify disables notifications on an attribute and closes all of its subscriptions.
	StopNotify(ctx context.Context, id uuid.UUID) (Result, error)
}

// Subscription describes a subscription to the notified values of an attribute.
type Subscription interface {
	// Handle returns the attribute the subscription belongs to.
	Handle() Handle

	// Next blocks until a value is received.
	Next(ctx context.Context) ([]byte, error)

	// Batch blocks until count values are received, or the context is done.
	// Values received before the context is done are returned along with the error.
	Batch(ctx context.Context, count int) ([][]byte, error)

	// Close unsubscribes from the attribute.
	Close()
}
