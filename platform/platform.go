// Package platform selects the session backend for the running platform.
package platform

import (
	"context"
	"runtime"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
)

type BluetoothStack string

const (
	BluezStack        BluetoothStack = "BlueZ (DBus)"
	BluetoothctlStack BluetoothStack = "BlueZ (bluetoothctl)"
)

// PlatformInfo describes platform-specific information.
type PlatformInfo struct {
	OS    string         `json:"os,omitempty"`
	Stack BluetoothStack `json:"bluetooth_stack,omitempty"`
}

// NewPlatformInfo returns a new PlatformInfo.
func NewPlatformInfo(stack BluetoothStack) PlatformInfo {
	return PlatformInfo{
		OS:    runtime.GOOS + " (" + runtime.GOARCH + ")",
		Stack: stack,
	}
}

// String converts a BluetoothStack to a string.
func (b BluetoothStack) String() string {
	return string(b)
}

func unsupportedBackend(backend config.Backend) error {
	return fault.Wrap(errorkinds.ErrNotSupported,
		fctx.With(context.Background(), "error_at", "select-backend", "backend", string(backend), "os", runtime.GOOS),
		ftag.With(errorkinds.KindInvalidArguments),
		fmsg.With("Backend "+string(backend)+" is not supported on this platform"),
	)
}
