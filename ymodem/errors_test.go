package ymodem

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	e := unexpectedByte(0x41, "ACK")
	e.State = StateSendingData
	e.Block = 3
	assert.Equal(t, "ymodem protocol violation: expected ACK (byte: 0x41) (block: 3)", e.Error())

	e = wrapError(ErrChannelIO, "write", io.ErrClosedPipe)
	assert.Equal(t, "ymodem channel I/O error: write: io: read/write on closed pipe", e.Error())
}

func TestError_Unwrap(t *testing.T) {
	err := fmt.Errorf("upload: %w", wrapError(ErrChannelTimeout, "read response", ErrReadTimeout))

	assert.True(t, errors.Is(err, ErrReadTimeout))
	assert.True(t, IsTimeout(err))
	assert.False(t, IsCancelled(err))
	assert.False(t, IsReceiverAbort(err))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrChannelTimeout, kind)

	_, ok = KindOf(io.EOF)
	assert.False(t, ok)
}

func TestErrorKind_String(t *testing.T) {
	for k := ErrProtocolViolation; k <= ErrInvalidFilename; k++ {
		assert.NotEqual(t, "unknown error", k.String())
	}
	assert.Equal(t, "unknown error", ErrorKind(99).String())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "AwaitStart", StateAwaitStart.String())
	assert.Equal(t, "Aborted", StateAborted.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateSendingData.Terminal())
}
