package shim

import (
	"context"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/shim/internal/commands"
)

// Devices returns the devices known to the selected controller.
func (s *ShimSession) Devices(ctx context.Context) ([]bluetooth.DeviceData, error) {
	return execute(ctx, s, commands.Devices(), s.cfg.ListQuietPeriod)
}

// DeviceInfo returns the properties of a device.
func (s *ShimSession) DeviceInfo(ctx context.Context, address bluetooth.MacAddress) (bluetooth.DeviceData, error) {
	return execute(ctx, s, commands.Info(address), s.cfg.PollSlice)
}

// Connect connects to a device.
func (s *ShimSession) Connect(ctx context.Context, address bluetooth.MacAddress) error {
	_, err := execute(ctx, s, commands.Connect(address), s.cfg.PollSlice)
	return err
}

// Disconnect disconnects from a device.
func (s *ShimSession) Disconnect(ctx context.Context, address bluetooth.MacAddress) error {
	_, err := execute(ctx, s, commands.Disconnect(address), s.cfg.PollSlice)
	return err
}

// Pair pairs with a device. Agent requests raised while pairing
// are attributed to the device.
func (s *ShimSession) Pair(ctx context.Context, address bluetooth.MacAddress) error {
	s.agent.setPairing(address)

	_, err := execute(ctx, s, commands.Pair(address), s.cfg.PollSlice)

	return err
}

// SetTrusted sets the trusted state of a device.
func (s *ShimSession) SetTrusted(ctx context.Context, address bluetooth.MacAddress, trusted bool) error {
	_, err := execute(ctx, s, commands.Trust(address, trusted), s.cfg.PollSlice)
	return err
}

// Remove removes a device from the selected controller.
func (s *ShimSession) Remove(ctx context.Context, address bluetooth.MacAddress) error {
	_, err := execute(ctx, s, commands.Remove(address), s.cfg.PollSlice)
	return err
}
