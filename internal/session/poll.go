package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// errPollDeadline is returned by poll when the condition was not met in time.
var errPollDeadline = errors.New("poll deadline exceeded")

// poll calls check until it reports done, returns an error, or timeout elapses.
// Checks are paced by the configured poll interval, and a last check is made
// when the timeout elapses.
func (m *Manager) poll(ctx context.Context, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(m.cfg.PollInterval), 1)
	limiter.Allow()

	for {
		done, err := check(ctx)
		if err != nil || done {
			return err
		}

		if err := limiter.Wait(pollCtx); err != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The limiter gives up early when the next tick would pass the
	// deadline, so wait out the remaining time before the last check.
	<-pollCtx.Done()
	if err := ctx.Err(); err != nil {
		return err
	}

	done, err := check(ctx)
	if err != nil || done {
		return err
	}

	return errPollDeadline
}

// sleep waits for d, or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
