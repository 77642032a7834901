//go:build !linux

package platform

import (
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/shim"
)

// Session returns a session handler for the backend selected by cfg.
// Only the bluetoothctl backend is available outside Linux.
func Session(cfg config.Configuration) (bluetooth.Session, PlatformInfo, error) {
	if cfg.Backend != config.BackendBluetoothctl {
		return nil, PlatformInfo{}, unsupportedBackend(cfg.Backend)
	}

	return shim.NewSession(), NewPlatformInfo(BluetoothctlStack), nil
}
