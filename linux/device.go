//go:build linux

package linux

import (
	"context"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/godbus/dbus/v5"
)

// Devices returns the devices known to the selected adapter.
func (b *BluezSession) Devices(ctx context.Context) ([]bluetooth.DeviceData, error) {
	objects, err := b.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	return objects.devices(b.adapterPath()), nil
}

// DeviceInfo returns the properties of a device. BlueZ reports a device
// it does not know as an unknown object.
func (b *BluezSession) DeviceInfo(ctx context.Context, address bluetooth.MacAddress) (bluetooth.DeviceData, error) {
	p := b.devicePath(address)

	call := b.call(ctx, p, dbusProperties+".GetAll", bluezDevice)
	if call.Err != nil {
		return bluetooth.DeviceData{}, call.Err
	}

	var props properties
	if err := call.Store(&props); err != nil {
		return bluetooth.DeviceData{}, fault.Wrap(err,
			fctx.With(ctx, "error_at", "store-device-properties", "path", string(p)),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot decode the device properties"),
		)
	}

	device := parseDevice(p, props)

	b.Lock()
	device.AssociatedController = b.adapter.Address
	b.Unlock()

	return device, nil
}

// Connect connects to a device.
func (b *BluezSession) Connect(ctx context.Context, address bluetooth.MacAddress) error {
	return b.call(ctx, b.devicePath(address), bluezDevice+".Connect").Err
}

// Disconnect disconnects from a device.
func (b *BluezSession) Disconnect(ctx context.Context, address bluetooth.MacAddress) error {
	return b.call(ctx, b.devicePath(address), bluezDevice+".Disconnect").Err
}

// Pair pairs with a device. Requests for authentication are
// sent to the registered agent.
func (b *BluezSession) Pair(ctx context.Context, address bluetooth.MacAddress) error {
	return b.call(ctx, b.devicePath(address), bluezDevice+".Pair").Err
}

// SetTrusted sets the trusted state of a device.
func (b *BluezSession) SetTrusted(ctx context.Context, address bluetooth.MacAddress, trusted bool) error {
	return b.call(ctx, b.devicePath(address), dbusProperties+".Set", bluezDevice, "Trusted", dbus.MakeVariant(trusted)).Err
}

// Remove removes a device from the selected adapter.
func (b *BluezSession) Remove(ctx context.Context, address bluetooth.MacAddress) error {
	return b.call(ctx, b.adapterPath(), bluezAdapter+".RemoveDevice", b.devicePath(address)).Err
}

func (b *BluezSession) devicePath(address bluetooth.MacAddress) dbus.ObjectPath {
	return devicePath(b.adapterPath(), address)
}
