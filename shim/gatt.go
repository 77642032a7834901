package shim

import (
	"context"
	"errors"
	"time"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/bluetuith-org/ble-session/internal/protocol"
	"github.com/bluetuith-org/ble-session/shim/internal/commands"
)

// promptSlices is the number of poll slices to wait for the prompt
// which shows a selected attribute.
const promptSlices = 4

// Services returns the GATT services of a device.
func (s *ShimSession) Services(ctx context.Context, address bluetooth.MacAddress) ([]bluetooth.ServiceData, error) {
	attributes, err := execute(ctx, s, commands.ListAttributes(address), s.cfg.ListQuietPeriod)
	return attributes.Services, err
}

// Characteristics returns the GATT characteristics of a device.
func (s *ShimSession) Characteristics(ctx context.Context, address bluetooth.MacAddress) ([]bluetooth.CharacteristicData, error) {
	attributes, err := execute(ctx, s, commands.ListAttributes(address), s.cfg.ListQuietPeriod)
	return attributes.Characteristics, err
}

// Read reads the value of an attribute.
func (s *ShimSession) Read(ctx context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle) ([]byte, error) {
	var value []byte

	err := s.executor.Transact(func(tx protocol.Tx) error {
		if err := s.selectAttribute(ctx, tx, handle); err != nil {
			return err
		}

		var err error
		value, err = commands.Read(handle).ExecuteWith(ctx, tx, s.cfg.PollSlice)

		return err
	})

	return value, err
}

// Write writes value to an attribute.
func (s *ShimSession) Write(ctx context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle, value []byte) error {
	return s.executor.Transact(func(tx protocol.Tx) error {
		if err := s.selectAttribute(ctx, tx, handle); err != nil {
			return err
		}

		_, err := commands.Write(value).ExecuteWith(ctx, tx, s.cfg.PollSlice)

		return err
	})
}

// StartNotify enables notifications on an attribute.
func (s *ShimSession) StartNotify(ctx context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle, sink func(value []byte)) error {
	s.sinks.Store(handle.Path, sink)

	err := s.notify(ctx, handle, true)
	if err != nil && !isAlreadyNotifying(err) {
		s.sinks.Delete(handle.Path)
	}

	return err
}

// StopNotify disables notifications on an attribute.
func (s *ShimSession) StopNotify(ctx context.Context, _ bluetooth.MacAddress, handle bluetooth.Handle) error {
	defer s.sinks.Delete(handle.Path)

	return s.notify(ctx, handle, false)
}

func (s *ShimSession) notify(ctx context.Context, handle bluetooth.Handle, enable bool) error {
	return s.executor.Transact(func(tx protocol.Tx) error {
		if err := s.selectAttribute(ctx, tx, handle); err != nil {
			return err
		}

		_, err := commands.Notify(enable).ExecuteWith(ctx, tx, s.cfg.PollSlice)

		return err
	})
}

// selectAttribute makes handle the attribute which later GATT commands apply to.
// bluetoothctl only shows the selection in its prompt, which is not printed when
// it runs without a terminal, so the selection is verified with attribute-info.
func (s *ShimSession) selectAttribute(ctx context.Context, tx protocol.Tx, handle bluetooth.Handle) error {
	timeout := time.Duration(promptSlices) * s.cfg.PollSlice

	_, err := commands.SelectAttribute(handle).WithTimeout(timeout).ExecuteWith(ctx, tx, s.cfg.PollSlice)

	var sig *policy.Signal
	if errors.As(err, &sig) && sig.IsTimeout() {
		_, err = commands.AttributeInfo(handle).ExecuteWith(ctx, tx, s.cfg.PollSlice)
	}

	return err
}

func isAlreadyNotifying(err error) bool {
	var sig *policy.Signal

	return errors.As(err, &sig) && sig.Has("Already notifying", "Notify already")
}
