package shim

import (
	"context"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/shim/internal/commands"
)

// Controllers returns the controllers listed by bluetoothctl, with their properties.
func (s *ShimSession) Controllers(ctx context.Context) ([]bluetooth.ControllerData, error) {
	controllers, err := execute(ctx, s, commands.ListControllers(), s.cfg.ListQuietPeriod)
	if err != nil {
		return nil, err
	}

	for i, controller := range controllers {
		info, err := execute(ctx, s, commands.ShowController(controller), s.cfg.PollSlice)
		if err != nil {
			return nil, err
		}

		controllers[i] = info
	}

	return controllers, nil
}

// SelectController makes controller the one bluetoothctl operates on.
func (s *ShimSession) SelectController(ctx context.Context, controller bluetooth.ControllerData) error {
	if controller.Default {
		return nil
	}

	_, err := execute(ctx, s, commands.SelectController(controller.Address), s.cfg.PollSlice)

	return err
}

// StartDiscovery starts device discovery.
func (s *ShimSession) StartDiscovery(ctx context.Context) error {
	_, err := execute(ctx, s, commands.Scan(true), s.cfg.PollSlice)
	return err
}

// StopDiscovery stops device discovery.
func (s *ShimSession) StopDiscovery(ctx context.Context) error {
	_, err := execute(ctx, s, commands.Scan(false), s.cfg.PollSlice)
	return err
}
