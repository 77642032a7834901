package session

import (
	"context"
	"time"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/bluetuith-org/ble-session/api/eventbus"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/google/uuid"
)

// subscription delivers the notified values of one attribute.
type subscription struct {
	handle bluetooth.Handle
	sub    *eventbus.SubscriberID
}

var _ bluetooth.Subscription = (*subscription)(nil)

// StartNotify enables notifications on an attribute and subscribes to its values.
// Notifications are only enabled on the backend once per attribute, every
// later call adds another subscriber.
func (d *device) StartNotify(ctx context.Context, id uuid.UUID) (bluetooth.Subscription, error) {
	if err := d.m.ready(); err != nil {
		return nil, err
	}

	handle, err := d.resolve(ctx, id, d.m.cfg.ResolveTimeout)
	if err != nil {
		return nil, d.m.wrap(ctx, policy.VerbStartNotify, err)
	}

	d.m.notifyMu.Lock()
	defer d.m.notifyMu.Unlock()

	// Subscribe before enabling notifications, so that no value is missed.
	sub := &subscription{handle: handle, sub: d.m.bus.Subscribe(handle.Path)}
	if _, ok := d.m.notifications.Load(handle.Path); ok {
		return sub, nil
	}

	bus := d.m.bus
	_, err = d.run(ctx, policy.VerbStartNotify, func() error {
		return d.m.backend.StartNotify(ctx, d.address, handle, func(value []byte) {
			bus.Publish(handle.Path, value)
		})
	})
	if err != nil {
		sub.Close()
		return nil, err
	}

	d.m.notifications.Store(handle.Path, handle)
	d.m.log.Debug("notifications started", "address", d.address.String(), "handle", handle.Path)

	return sub, nil
}

// StopNotify disables notifications on an attribute and closes all of its subscriptions.
func (d *device) StopNotify(ctx context.Context, id uuid.UUID) (bluetooth.Result, error) {
	if err := d.m.ready(); err != nil {
		return bluetooth.Result{}, err
	}

	d.m.notifyMu.Lock()
	defer d.m.notifyMu.Unlock()

	var handle bluetooth.Handle
	d.m.notifications.Range(func(_ string, h bluetooth.Handle) bool {
		if h.UUID == id {
			handle = h
			return false
		}

		return true
	})
	if handle.Path == "" {
		return bluetooth.Result{Already: true}, nil
	}

	result, err := d.run(ctx, policy.VerbStopNotify, func() error {
		return d.m.backend.StopNotify(ctx, d.address, handle)
	})
	if err != nil {
		return result, err
	}

	d.m.bus.CloseTopic(handle.Path)
	d.m.notifications.Delete(handle.Path)
	d.m.log.Debug("notifications stopped", "address", d.address.String(), "handle", handle.Path)

	return result, nil
}

// Handle returns the attribute the subscription belongs to.
func (s *subscription) Handle() bluetooth.Handle {
	return s.handle
}

// Next blocks until a value is received.
func (s *subscription) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case v, ok := <-s.sub.C:
		if !ok {
			return nil, errorkinds.ErrSubscriptionClosed
		}

		value, _ := v.([]byte)

		return value, nil
	}
}

// Batch blocks until count values are received, or the context is done.
func (s *subscription) Batch(ctx context.Context, count int) ([][]byte, error) {
	values := make([][]byte, 0, count)
	for len(values) < count {
		value, err := s.Next(ctx)
		if err != nil {
			return values, err
		}

		values = append(values, value)
	}

	return values, nil
}

// Close unsubscribes from the attribute.
func (s *subscription) Close() {
	s.sub.Unsubscribe()
}

// discovery starts or stops device discovery on the selected controller.
func (m *Manager) discovery(ctx context.Context, enable bool) error {
	verb, call := policy.VerbStopDiscovery, m.backend.StopDiscovery
	if enable {
		verb, call = policy.VerbStartDiscovery, m.backend.StartDiscovery
	}

	err := observeErr(m, verb, func() error {
		return call(ctx)
	})
	if decision := m.policy.Decide(verb, err); decision.Action != policy.Succeed {
		return decision.Err
	}

	return nil
}

// scan discovers devices for the provided duration.
func (m *Manager) scan(ctx context.Context, timeout time.Duration) error {
	if err := m.discovery(ctx, true); err != nil {
		return m.wrap(ctx, policy.VerbStartDiscovery, err)
	}

	waitErr := sleep(ctx, timeout)

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), discoveryStopTimeout)
	defer cancel()

	if err := m.discovery(stopCtx, false); err != nil {
		return m.wrap(ctx, policy.VerbStopDiscovery, err)
	}

	return waitErr
}
