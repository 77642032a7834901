//go:build linux

package platform

import (
	"runtime"
	"strings"
	"testing"

	"github.com/Southclaws/fault/fctx"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	cfg := config.New()

	s, info, err := Session(cfg)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, BluezStack, info.Stack)
	assert.True(t, strings.HasPrefix(info.OS, runtime.GOOS))

	cfg.Backend = config.BackendBluetoothctl
	s, info, err = Session(cfg)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, BluetoothctlStack, info.Stack)

	cfg.Backend = "hci"
	_, _, err = Session(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errorkinds.ErrNotSupported)
	assert.Equal(t, errorkinds.KindInvalidArguments, errorkinds.KindOf(err))
	assert.Equal(t, "hci", fctx.Unwrap(err)["backend"])
}
