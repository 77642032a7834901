package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/google/uuid"
)

// device is the verb interface of one remote device.
// It holds no state beyond its address.
type device struct {
	m       *Manager
	address bluetooth.MacAddress
}

// discoveryStopTimeout bounds stopping discovery once an availability poll ends,
// since the caller's context may already be done by then.
const discoveryStopTimeout = 5 * time.Second

// Address returns the address of the device.
func (d *device) Address() bluetooth.MacAddress {
	return d.address
}

// Info returns the current properties of the device.
func (d *device) Info(ctx context.Context) (bluetooth.DeviceData, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.DeviceData{}, err
	}

	info, err := d.info(ctx)
	if err != nil {
		return bluetooth.DeviceData{}, d.m.wrap(ctx, policy.VerbInfo, err)
	}

	return info, nil
}

// Connect connects to the device. If the device is already connected,
// no connect command is issued.
func (d *device) Connect(ctx context.Context) (bluetooth.Result, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Result{}, err
	}

	info, err := d.waitAvailable(ctx)
	if err != nil {
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbConnect, err)
	}

	if info.Connected {
		return bluetooth.Result{Already: true}, nil
	}

	for retried := false; ; retried = true {
		err := observeErr(d.m, policy.VerbConnect, func() error {
			return d.m.backend.Connect(ctx, d.address)
		})

		decision := d.m.policy.Decide(policy.VerbConnect, err)
		switch decision.Action {
		case policy.Succeed:
			return bluetooth.Result{Already: decision.Already}, nil

		case policy.RetryAfterDisconnect:
			if retried {
				return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbConnect, d.m.policy.Exhausted(policy.VerbConnect, err).Err)
			}

			d.m.log.Warn("connect in progress, retrying after disconnect", "address", d.address.String(), "error", err)
			d.m.metrics.ObserveRetry(d.m.backend.Name(), string(policy.VerbConnect))

			if derr := d.m.backend.Disconnect(ctx, d.address); derr != nil {
				d.m.log.Debug("forced disconnect failed", "address", d.address.String(), "error", derr)
			}

		default:
			return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbConnect, decision.Err)
		}
	}
}

// Disconnect disconnects from the device. If the device is not connected,
// no disconnect command is issued.
func (d *device) Disconnect(ctx context.Context) (bluetooth.Result, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Result{}, err
	}

	info, err := d.info(ctx)
	switch {
	case errors.Is(err, errorkinds.ErrDeviceNotAvailable):
		return bluetooth.Result{Already: true}, nil

	case err != nil:
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbDisconnect, err)

	case !info.Connected:
		return bluetooth.Result{Already: true}, nil
	}

	return d.run(ctx, policy.VerbDisconnect, func() error {
		return d.m.backend.Disconnect(ctx, d.address)
	})
}

// Pair pairs with the device. If the device is already paired,
// no pair command is issued.
func (d *device) Pair(ctx context.Context) (bluetooth.Result, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Result{}, err
	}

	info, err := d.waitAvailable(ctx)
	if err != nil {
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbPair, err)
	}

	if info.Paired {
		return bluetooth.Result{Already: true}, nil
	}

	return d.run(ctx, policy.VerbPair, func() error {
		return d.m.backend.Pair(ctx, d.address)
	})
}

// Trust marks the device as trusted.
func (d *device) Trust(ctx context.Context) (bluetooth.Result, error) {
	return d.setTrusted(ctx, true)
}

// Distrust removes the trusted mark of the device.
func (d *device) Distrust(ctx context.Context) (bluetooth.Result, error) {
	return d.setTrusted(ctx, false)
}

// Remove removes the device from the controller.
// Removing an unknown device succeeds.
func (d *device) Remove(ctx context.Context) (bluetooth.Result, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Result{}, err
	}

	return d.run(ctx, policy.VerbRemove, func() error {
		return d.m.backend.Remove(ctx, d.address)
	})
}

// Services returns the GATT services of the device.
func (d *device) Services(ctx context.Context) ([]bluetooth.ServiceData, error) {
	if err := d.m.ready(); err != nil {
		return nil, err
	}

	services, err := observe(d.m, policy.VerbResolve, func() ([]bluetooth.ServiceData, error) {
		return d.m.backend.Services(ctx, d.address)
	})
	if decision := d.m.policy.Decide(policy.VerbResolve, err); decision.Action != policy.Succeed {
		return nil, d.m.wrap(ctx, policy.VerbResolve, decision.Err)
	}

	for _, s := range services {
		d.m.logUnrecognized("service", s.Path, s.Unrecognized)
	}

	return services, nil
}

// Characteristics returns the GATT characteristics of the device.
func (d *device) Characteristics(ctx context.Context) ([]bluetooth.CharacteristicData, error) {
	if err := d.m.ready(); err != nil {
		return nil, err
	}

	chars, err := d.characteristics(ctx)
	if err != nil {
		return nil, d.m.wrap(ctx, policy.VerbResolve, err)
	}

	return chars, nil
}

// ResolveAttribute polls the attribute table of the device until an attribute
// with the provided UUID appears, or the timeout elapses.
func (d *device) ResolveAttribute(ctx context.Context, id uuid.UUID, timeout time.Duration) (bluetooth.Handle, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Handle{}, err
	}

	handle, err := d.resolve(ctx, id, timeout)
	if err != nil {
		return bluetooth.Handle{}, d.m.wrap(ctx, policy.VerbResolve, err)
	}

	return handle, nil
}

// ReadAttribute reads the value of an attribute.
func (d *device) ReadAttribute(ctx context.Context, id uuid.UUID) ([]byte, error) {
	if err := d.m.ready(); err != nil {
		return nil, err
	}

	handle, err := d.resolve(ctx, id, d.m.cfg.ResolveTimeout)
	if err != nil {
		return nil, d.m.wrap(ctx, policy.VerbRead, err)
	}

	value, err := d.read(ctx, handle)
	if err != nil {
		return nil, d.m.wrap(ctx, policy.VerbRead, err)
	}

	return value, nil
}

// WriteAttribute parses a textual payload and writes it to an attribute.
func (d *device) WriteAttribute(ctx context.Context, id uuid.UUID, payload string, radix bluetooth.Radix) (bluetooth.Result, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Result{}, err
	}

	value, err := bluetooth.ParsePayload(payload, radix)
	if err != nil {
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbWrite, err)
	}

	return d.WriteBytes(ctx, id, value)
}

// WriteBytes writes value to an attribute, and reads the attribute back.
// The write only succeeds if the value read back starts with the written bytes.
func (d *device) WriteBytes(ctx context.Context, id uuid.UUID, value []byte) (bluetooth.Result, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Result{}, err
	}

	if len(value) == 0 {
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbWrite,
			errorkinds.ErrInvalidArguments.WithCode("", "empty payload"))
	}

	handle, err := d.resolve(ctx, id, d.m.cfg.ResolveTimeout)
	if err != nil {
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbWrite, err)
	}

	werr := observeErr(d.m, policy.VerbWrite, func() error {
		return d.m.backend.Write(ctx, d.address, handle, value)
	})
	if decision := d.m.policy.Decide(policy.VerbWrite, werr); decision.Action != policy.Succeed {
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbWrite, decision.Err)
	}

	readBack, err := d.read(ctx, handle)
	if err != nil {
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbWrite, err)
	}

	if index := bluetooth.VerifyPrefix(value, readBack); index >= 0 {
		return bluetooth.Result{}, fault.Wrap(
			errorkinds.ErrWriteNotVerified.WithSession(d.m.backend.Name(), d.m.backend.Version()),
			fctx.With(ctx, "error_at", "verify-write", "handle", handle.Path, "index", strconv.Itoa(index)),
			ftag.With(errorkinds.KindReadWriteFailed),
			fmsg.With(fmt.Sprintf("Value read back differs from the written value at index %d", index)),
		)
	}

	return bluetooth.Result{}, nil
}

func (d *device) setTrusted(ctx context.Context, trusted bool) (bluetooth.Result, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Result{}, err
	}

	if _, err := d.waitAvailable(ctx); err != nil {
		return bluetooth.Result{}, d.m.wrap(ctx, policy.VerbTrust, err)
	}

	return d.run(ctx, policy.VerbTrust, func() error {
		return d.m.backend.SetTrusted(ctx, d.address, trusted)
	})
}

// run issues a backend call and applies the policy of verb to its result.
func (d *device) run(ctx context.Context, verb policy.Verb, call func() error) (bluetooth.Result, error) {
	decision := d.m.policy.Decide(verb, observeErr(d.m, verb, call))
	if decision.Action != policy.Succeed {
		return bluetooth.Result{}, d.m.wrap(ctx, verb, decision.Err)
	}

	return bluetooth.Result{Already: decision.Already}, nil
}

// info returns the properties of the device, with backend failures
// classified by the policy.
func (d *device) info(ctx context.Context) (bluetooth.DeviceData, error) {
	info, err := observe(d.m, policy.VerbInfo, func() (bluetooth.DeviceData, error) {
		return d.m.backend.DeviceInfo(ctx, d.address)
	})
	if decision := d.m.policy.Decide(policy.VerbInfo, err); decision.Action != policy.Succeed {
		return bluetooth.DeviceData{}, decision.Err
	}

	d.m.logUnrecognized("device", d.address.String(), info.Unrecognized)

	return info, nil
}

// waitAvailable returns the properties of the device. If the device is not
// known to the controller, discovery is started and the device is polled
// for until the availability timeout elapses.
func (d *device) waitAvailable(ctx context.Context) (bluetooth.DeviceData, error) {
	info, err := d.info(ctx)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, errorkinds.ErrDeviceNotAvailable) {
		return info, err
	}

	if err := d.m.discovery(ctx, true); err != nil {
		return info, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discoveryStopTimeout)
		defer cancel()

		if err := d.m.discovery(stopCtx, false); err != nil {
			d.m.log.Debug("stop discovery", "error", err)
		}
	}()

	d.m.log.Debug("waiting for device", "address", d.address.String(), "timeout", d.m.cfg.AvailabilityTimeout)

	err = d.m.poll(ctx, d.m.cfg.AvailabilityTimeout, func(ctx context.Context) (bool, error) {
		info, err = d.info(ctx)
		if errors.Is(err, errorkinds.ErrDeviceNotAvailable) {
			return false, nil
		}

		return err == nil, err
	})
	if errors.Is(err, errPollDeadline) {
		return info, errorkinds.ErrDeviceNotAvailable.
			WithCode("", d.address.String()).
			WithSession(d.m.backend.Name(), d.m.backend.Version())
	}

	return info, err
}

func (d *device) characteristics(ctx context.Context) ([]bluetooth.CharacteristicData, error) {
	chars, err := observe(d.m, policy.VerbResolve, func() ([]bluetooth.CharacteristicData, error) {
		return d.m.backend.Characteristics(ctx, d.address)
	})
	if decision := d.m.policy.Decide(policy.VerbResolve, err); decision.Action != policy.Succeed {
		return nil, decision.Err
	}

	for _, c := range chars {
		d.m.logUnrecognized("characteristic", c.Path, c.Unrecognized)
	}

	return chars, nil
}

// resolve polls the attribute table until an attribute with the provided UUID appears.
func (d *device) resolve(ctx context.Context, id uuid.UUID, timeout time.Duration) (bluetooth.Handle, error) {
	var handle bluetooth.Handle

	err := d.m.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		chars, err := d.characteristics(ctx)
		if err != nil {
			return false, err
		}

		for _, c := range chars {
			if c.UUID == id {
				handle = c.Handle
				return true, nil
			}
		}

		return false, nil
	})
	if errors.Is(err, errPollDeadline) {
		d.m.log.Debug("attribute did not appear", "address", d.address.String(), "uuid", id.String(), "timeout", timeout)

		return handle, errorkinds.ErrAttributeNotAvailable.WithSession(d.m.backend.Name(), d.m.backend.Version())
	}

	return handle, err
}

func (d *device) read(ctx context.Context, handle bluetooth.Handle) ([]byte, error) {
	value, err := observe(d.m, policy.VerbRead, func() ([]byte, error) {
		return d.m.backend.Read(ctx, d.address, handle)
	})
	if decision := d.m.policy.Decide(policy.VerbRead, err); decision.Action != policy.Succeed {
		return nil, decision.Err
	}

	return value, nil
}
