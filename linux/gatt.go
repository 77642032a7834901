//go:build linux

package linux

import (
	"context"
	"errors"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/godbus/dbus/v5"
)

// Services returns the resolved GATT services of a device.
func (b *BluezSession) Services(ctx context.Context, address bluetooth.MacAddress) ([]bluetooth.ServiceData, error) {
	objects, err := b.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	return objects.services(b.devicePath(address)), nil
}

// Characteristics returns the resolved GATT characteristics of a device.
func (b *BluezSession) Characteristics(ctx context.Context, address bluetooth.MacAddress) ([]bluetooth.CharacteristicData, error) {
	objects, err := b.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	return objects.characteristics(b.devicePath(address)), nil
}

// Read reads the value of a characteristic.
func (b *BluezSession) Read(ctx context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle) ([]byte, error) {
	call := b.call(ctx, dbus.ObjectPath(handle.Path), bluezGattChar+".ReadValue", map[string]dbus.Variant{})
	if call.Err != nil {
		return nil, call.Err
	}

	var value []byte
	if err := call.Store(&value); err != nil {
		return nil, fault.Wrap(err,
			fctx.With(ctx, "error_at", "store-value", "path", handle.Path),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot decode the characteristic value"),
		)
	}

	return value, nil
}

// Write writes value to a characteristic, and waits for the device to acknowledge it.
func (b *BluezSession) Write(ctx context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle, value []byte) error {
	options := map[string]dbus.Variant{
		"type": dbus.MakeVariant("request"),
	}

	return b.call(ctx, dbus.ObjectPath(handle.Path), bluezGattChar+".WriteValue", value, options).Err
}

// StartNotify enables notifications on a characteristic. Notified values
// arrive as changes of the characteristic's Value property.
func (b *BluezSession) StartNotify(ctx context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle, sink func(value []byte)) error {
	p := dbus.ObjectPath(handle.Path)
	b.sinks.Store(p, sink)

	err := b.call(ctx, p, bluezGattChar+".StartNotify").Err

	// BlueZ reports a characteristic this connection already
	// receives notifications for as in progress.
	var sig *policy.Signal
	if err != nil && !(errors.As(err, &sig) && sig.Code == inProgressError) {
		b.sinks.Delete(p)
	}

	return err
}

// StopNotify disables notifications on a characteristic.
func (b *BluezSession) StopNotify(ctx context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle) error {
	p := dbus.ObjectPath(handle.Path)
	defer b.sinks.Delete(p)

	return b.call(ctx, p, bluezGattChar+".StopNotify").Err
}
