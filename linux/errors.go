//go:build linux

package linux

import (
	"context"
	"errors"
	"strings"

	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/godbus/dbus/v5"
)

// callError converts the error of a method call into a signal the policy can
// classify. Errors which are not D-Bus errors are returned unchanged.
func callError(method string, err error) error {
	if err == nil {
		return nil
	}

	var derr dbus.Error
	var pderr *dbus.Error

	switch {
	case errors.As(err, &derr):
		return errorSignal(derr)

	case errors.As(err, &pderr):
		return errorSignal(*pderr)

	case errors.Is(err, context.DeadlineExceeded):
		return policy.TimedOut(method, 0)
	}

	return err
}

func errorSignal(err dbus.Error) *policy.Signal {
	messages := make([]string, 0, len(err.Body))
	for _, b := range err.Body {
		if s, ok := b.(string); ok {
			messages = append(messages, s)
		}
	}

	return &policy.Signal{
		Code:    err.Name,
		Message: strings.Join(messages, ": "),
	}
}
