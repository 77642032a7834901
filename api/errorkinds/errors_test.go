package errorkinds

import (
	"context"
	"errors"
	"testing"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := ErrPairFailed.WithCode("org.bluez.Error.AuthenticationRejected", "rejected")

	assert.ErrorIs(t, err, ErrPairFailed)
	assert.NotErrorIs(t, err, ErrNotConnected)
}

func TestErrorIsMatchesReason(t *testing.T) {
	assert.ErrorIs(t, ErrAttributeNotAvailable, ErrReadWriteFailed)
	assert.NotErrorIs(t, ErrWriteNotVerified, ErrAttributeNotAvailable)
	assert.NotErrorIs(t, ErrReadWriteFailed, ErrAttributeNotAvailable)
}

func TestErrorString(t *testing.T) {
	err := ErrUnknown.WithCode("org.bluez.Error.Weird", "").WithSession("BlctlEngine", "0.0.1")

	assert.Equal(t, "Unknown error (org.bluez.Error.Weird) [BlctlEngine 0.0.1]", err.Error())
	assert.Equal(t, "Attribute access failed: attribute not available", ErrAttributeNotAvailable.Error())
}

func TestWithSessionDoesNotMutateSentinel(t *testing.T) {
	_ = ErrTimeout.WithSession("engine", "1")

	assert.Empty(t, ErrTimeout.Engine)
}

func TestKindOfThroughFaultChain(t *testing.T) {
	wrapped := fault.Wrap(ErrNotConnected,
		fctx.With(context.Background(), "error_at", "read"),
		ftag.With(KindNotConnected),
		fmsg.With("Cannot read attribute"),
	)

	assert.Equal(t, KindNotConnected, KindOf(wrapped))
	assert.ErrorIs(t, wrapped, ErrNotConnected)
	assert.Equal(t, KindTimeout, KindOf(fault.Wrap(errors.New("x"), ftag.With(KindTimeout))))
	assert.Equal(t, ftag.Kind(""), KindOf(nil))
}
