//go:build linux

package platform

import (
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/linux"
	"github.com/bluetuith-org/ble-session/shim"
)

// Session returns a session handler for the backend selected by cfg.
// Every D-Bus session gets its own bus handle; sessions which should share
// a connection can be created with linux.NewSession over one handle.
func Session(cfg config.Configuration) (bluetooth.Session, PlatformInfo, error) {
	switch cfg.Backend {
	case config.BackendDBus:
		return linux.NewSession(linux.NewBusHandle()), NewPlatformInfo(BluezStack), nil

	case config.BackendBluetoothctl:
		return shim.NewSession(), NewPlatformInfo(BluetoothctlStack), nil
	}

	return nil, PlatformInfo{}, unsupportedBackend(cfg.Backend)
}
