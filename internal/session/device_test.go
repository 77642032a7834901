package session

import (
	"context"
	"testing"
	"time"

	"github.com/Southclaws/fault/fctx"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	dev := startSession(t, backend).Device(testAddress)

	result, err := dev.Connect(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Already)
	assert.Equal(t, 1, backend.count("connect"))

	result, err = dev.Connect(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Already)
	assert.Equal(t, 1, backend.count("connect"), "no connect command is issued for a connected device")
}

func TestConnectRetriesOnceWhenInProgress(t *testing.T) {
	backend := newFakeBackend()
	backend.connectErrs = []error{
		&policy.Signal{Code: "org.bluez.Error.InProgress", Message: "Operation already in progress"},
	}
	dev := startSession(t, backend).Device(testAddress)

	_, err := dev.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, backend.count("connect"))
	assert.Equal(t, 1, backend.count("disconnect"))
}

func TestConnectInProgressAfterRetry(t *testing.T) {
	inProgress := &policy.Signal{Code: "org.bluez.Error.InProgress", Message: "Operation already in progress"}

	backend := newFakeBackend()
	backend.connectErrs = []error{inProgress, inProgress, inProgress}
	dev := startSession(t, backend).Device(testAddress)

	_, err := dev.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errorkinds.ErrNotConnected)

	assert.Equal(t, 2, backend.count("connect"))
	assert.Equal(t, 1, backend.count("disconnect"))
}

func TestConnectFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.connectErrs = []error{&policy.Signal{Message: "Failed to connect: org.bluez.Error.Failed"}}
	dev := startSession(t, backend).Device(testAddress)

	_, err := dev.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errorkinds.ErrNotConnected)
	assert.Equal(t, errorkinds.KindNotConnected, errorkinds.KindOf(err))
	assert.Equal(t, 1, backend.count("connect"))
}

func TestConnectDeviceNotAvailable(t *testing.T) {
	backend := newFakeBackend()
	backend.unavailableFor = -1
	dev := startSession(t, backend).Device(testAddress)

	start := time.Now()
	_, err := dev.Connect(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, errorkinds.ErrDeviceNotAvailable)
	assert.GreaterOrEqual(t, elapsed, testConfig().AvailabilityTimeout)

	assert.Zero(t, backend.count("connect"))
	assert.Greater(t, backend.count("info"), 2)
	assert.Equal(t, 1, backend.count("start-discovery"))
	assert.Equal(t, 1, backend.count("stop-discovery"))
}

func TestConnectWaitsForDevice(t *testing.T) {
	backend := newFakeBackend()
	backend.unavailableFor = 2
	dev := startSession(t, backend).Device(testAddress)

	_, err := dev.Connect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, backend.count("info"))
	assert.Equal(t, 1, backend.count("connect"))
	assert.Equal(t, 1, backend.count("stop-discovery"))
}

func TestDisconnect(t *testing.T) {
	backend := newFakeBackend()
	dev := startSession(t, backend).Device(testAddress)

	result, err := dev.Disconnect(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Already)
	assert.Zero(t, backend.count("disconnect"))

	_, err = dev.Connect(context.Background())
	require.NoError(t, err)

	result, err = dev.Disconnect(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Already)
	assert.Equal(t, 1, backend.count("disconnect"))
}

func TestPair(t *testing.T) {
	noReply := &policy.Signal{Code: "org.freedesktop.DBus.Error.NoReply", Message: "Did not receive a reply"}

	t.Run("no reply is success", func(t *testing.T) {
		backend := newFakeBackend()
		backend.pairErr = noReply

		_, err := startSession(t, backend).Device(testAddress).Pair(context.Background())
		require.NoError(t, err)
	})

	t.Run("no reply is failure", func(t *testing.T) {
		backend := newFakeBackend()
		backend.pairErr = noReply

		cfg := testConfig()
		cfg.PairNoReplyIsSuccess = false

		m := New(backend)
		require.NoError(t, m.Start(nil, cfg))
		defer m.Stop()

		_, err := m.Device(testAddress).Pair(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, errorkinds.ErrPairFailed)
	})

	t.Run("already paired", func(t *testing.T) {
		backend := newFakeBackend()
		backend.device.Paired = true

		result, err := startSession(t, backend).Device(testAddress).Pair(context.Background())
		require.NoError(t, err)
		assert.True(t, result.Already)
		assert.Zero(t, backend.count("pair"))
	})

	t.Run("authentication failed", func(t *testing.T) {
		backend := newFakeBackend()
		backend.pairErr = &policy.Signal{Code: "org.bluez.Error.AuthenticationFailed", Message: "Authentication Failed"}

		_, err := startSession(t, backend).Device(testAddress).Pair(context.Background())
		assert.ErrorIs(t, err, errorkinds.ErrPairFailed)
	})
}

func TestTrustAndDistrust(t *testing.T) {
	backend := newFakeBackend()
	dev := startSession(t, backend).Device(testAddress)

	_, err := dev.Trust(context.Background())
	require.NoError(t, err)

	info, err := dev.Info(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Trusted)

	_, err = dev.Distrust(context.Background())
	require.NoError(t, err)

	info, err = dev.Info(context.Background())
	require.NoError(t, err)
	assert.False(t, info.Trusted)
}

func TestRemoveUnknownDevice(t *testing.T) {
	backend := newFakeBackend()
	backend.removeErr = &policy.Signal{Code: "org.bluez.Error.DoesNotExist", Message: "Does Not Exist"}

	result, err := startSession(t, backend).Device(testAddress).Remove(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Already)
}

func TestResolveAttributeAfterItAppears(t *testing.T) {
	backend := newFakeBackend()
	backend.charsAfter = 2
	dev := startSession(t, backend).Device(testAddress)

	handle, err := dev.ResolveAttribute(context.Background(), testCharUUID, time.Second)
	require.NoError(t, err)

	assert.Equal(t, testHandle, handle)
	assert.Equal(t, 3, backend.count("characteristics"))
}

func TestResolveAttributeTimeout(t *testing.T) {
	backend := newFakeBackend()
	backend.noChars = true
	dev := startSession(t, backend).Device(testAddress)

	timeout := 100 * time.Millisecond

	start := time.Now()
	_, err := dev.ResolveAttribute(context.Background(), testCharUUID, timeout)

	require.Error(t, err)
	assert.ErrorIs(t, err, errorkinds.ErrAttributeNotAvailable)
	assert.Equal(t, errorkinds.KindReadWriteFailed, errorkinds.KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), timeout)
}

func TestReadAttribute(t *testing.T) {
	backend := newFakeBackend()
	backend.value = []byte{0x2a}
	dev := startSession(t, backend).Device(testAddress)

	value, err := dev.ReadAttribute(context.Background(), testCharUUID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2a}, value)
}

func TestWriteVerification(t *testing.T) {
	tests := []struct {
		name     string
		readBack []byte
		verified bool
		index    string
	}{
		{name: "longer read back", readBack: []byte{3, 1, 1, 0}, verified: true},
		{name: "exact read back", readBack: []byte{3, 1, 1}, verified: true},
		{name: "differing read back", readBack: []byte{3, 1, 0}, index: "2"},
		{name: "short read back", readBack: []byte{3}, index: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			backend.readBack = func([]byte) []byte { return tt.readBack }
			dev := startSession(t, backend).Device(testAddress)

			_, err := dev.WriteAttribute(context.Background(), testCharUUID, "0x03 0x01 0x01", bluetooth.RadixHex)
			if tt.verified {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.ErrorIs(t, err, errorkinds.ErrWriteNotVerified)
				assert.Equal(t, tt.index, fctx.Unwrap(err)["index"])
			}

			assert.Equal(t, 1, backend.count("write"))
			assert.Equal(t, 1, backend.count("read"))
		})
	}
}

func TestWriteAttributeInvalidPayload(t *testing.T) {
	backend := newFakeBackend()
	dev := startSession(t, backend).Device(testAddress)

	_, err := dev.WriteAttribute(context.Background(), testCharUUID, "0x03 1", bluetooth.RadixHex)
	require.Error(t, err)
	assert.ErrorIs(t, err, errorkinds.ErrInvalidArguments)
	assert.Zero(t, backend.count("write"))

	_, err = dev.WriteBytes(context.Background(), testCharUUID, nil)
	assert.ErrorIs(t, err, errorkinds.ErrInvalidArguments)
}

func TestWriteNotPermitted(t *testing.T) {
	backend := newFakeBackend()
	backend.writeErr = &policy.Signal{Code: "org.bluez.Error.NotPermitted", Message: "Write not permitted"}
	dev := startSession(t, backend).Device(testAddress)

	_, err := dev.WriteBytes(context.Background(), testCharUUID, []byte{1})
	require.Error(t, err)
	assert.ErrorIs(t, err, errorkinds.ErrReadWriteFailed)
	assert.Zero(t, backend.count("read"))
}

func TestNotify(t *testing.T) {
	backend := newFakeBackend()
	dev := startSession(t, backend).Device(testAddress)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := dev.StartNotify(ctx, testCharUUID)
	require.NoError(t, err)
	second, err := dev.StartNotify(ctx, testCharUUID)
	require.NoError(t, err)

	assert.Equal(t, 1, backend.count("start-notify"))
	assert.Equal(t, testHandle, first.Handle())

	backend.notify([]byte{1})
	backend.notify([]byte{2})

	values, err := first.Batch(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1}, {2}}, values)

	value, err := second.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, value)

	result, err := dev.StopNotify(ctx, testCharUUID)
	require.NoError(t, err)
	assert.False(t, result.Already)
	assert.Equal(t, 1, backend.count("stop-notify"))

	_, err = first.Next(ctx)
	assert.ErrorIs(t, err, errorkinds.ErrSubscriptionClosed)

	result, err = dev.StopNotify(ctx, testCharUUID)
	require.NoError(t, err)
	assert.True(t, result.Already)
	assert.Equal(t, 1, backend.count("stop-notify"))
}

func TestSubscriptionClose(t *testing.T) {
	backend := newFakeBackend()
	dev := startSession(t, backend).Device(testAddress)

	sub, err := dev.StartNotify(context.Background(), testCharUUID)
	require.NoError(t, err)
	sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, errorkinds.ErrSubscriptionClosed)
}
