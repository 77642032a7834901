//go:build linux

package linux

import (
	"context"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
)

// Controllers returns the adapters known to BlueZ.
func (b *BluezSession) Controllers(ctx context.Context) ([]bluetooth.ControllerData, error) {
	objects, err := b.managedObjects(ctx)
	if err != nil {
		return nil, err
	}

	return objects.controllers(), nil
}

// SelectController makes controller the adapter later calls operate on.
func (b *BluezSession) SelectController(_ context.Context, controller bluetooth.ControllerData) error {
	b.Lock()
	defer b.Unlock()

	b.adapter = controller

	return nil
}

// StartDiscovery starts device discovery on the selected adapter.
func (b *BluezSession) StartDiscovery(ctx context.Context) error {
	return b.call(ctx, b.adapterPath(), bluezAdapter+".StartDiscovery").Err
}

// StopDiscovery stops device discovery on the selected adapter.
func (b *BluezSession) StopDiscovery(ctx context.Context) error {
	return b.call(ctx, b.adapterPath(), bluezAdapter+".StopDiscovery").Err
}
