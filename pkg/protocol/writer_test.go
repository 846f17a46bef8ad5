package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndMessageWithoutStart(t *testing.T) {
	w := NewWriter()
	defer w.Recycle()

	assert.ErrorIs(t, w.EndMessage(), ErrUnbalancedFraming)

	w.StartMessage(1)
	require.NoError(t, w.EndMessage())
	assert.ErrorIs(t, w.EndMessage(), ErrUnbalancedFraming)
}

func TestFinalizeWithOpenMessage(t *testing.T) {
	w := NewWriter()
	defer w.Recycle()

	w.StartMessage(1)
	w.StartMessage(2)
	require.NoError(t, w.EndMessage())

	_, err := w.Finalize(true)
	assert.ErrorIs(t, err, ErrUnbalancedFraming)
	assert.Equal(t, 1, w.Depth())

	require.NoError(t, w.EndMessage())
	_, err = w.Finalize(true)
	assert.NoError(t, err)
}

func TestFinalizeHeaderHandling(t *testing.T) {
	t.Run("single_frame", func(t *testing.T) {
		w := NewWriter()
		defer w.Recycle()

		w.StartMessage(5)
		w.WriteUint16(0x0102)
		require.NoError(t, w.EndMessage())

		with, err := w.Finalize(true)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x02, 0x00, 0x05, 0x02, 0x01}, with)

		without, err := w.Finalize(false)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x02, 0x01}, without)
	})

	t.Run("leading_raw_bytes", func(t *testing.T) {
		w := NewWriter()
		defer w.Recycle()

		w.WriteByte(0xFF)
		w.StartMessage(5)
		require.NoError(t, w.EndMessage())

		without, err := w.Finalize(false)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0x00, 0x00, 0x05}, without)
	})

	t.Run("trailing_raw_bytes", func(t *testing.T) {
		w := NewWriter()
		defer w.Recycle()

		w.StartMessage(5)
		require.NoError(t, w.EndMessage())
		w.WriteByte(0xFF)

		without, err := w.Finalize(false)
		require.NoError(t, err)
		assert.Equal(t, []byte{0x00, 0x00, 0x05, 0xFF}, without)
	})

	t.Run("empty", func(t *testing.T) {
		w := NewWriter()
		defer w.Recycle()

		out, err := w.Finalize(false)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestFinalizeReturnsCopy(t *testing.T) {
	w := NewWriter()
	defer w.Recycle()

	w.StartMessage(1)
	w.WriteByte(0xAA)
	require.NoError(t, w.EndMessage())

	out, err := w.Finalize(true)
	require.NoError(t, err)
	out[3] = 0x00

	assert.Equal(t, byte(0xAA), w.Bytes()[3])
}

func TestPayloadTooLarge(t *testing.T) {
	w := GetWriter(MaxPayloadSize + 16)
	defer w.Recycle()

	w.StartMessage(1)
	w.WriteBytes(make([]byte, MaxPayloadSize))
	require.NoError(t, w.EndMessage(), "exactly MaxPayloadSize fits")

	w.Reset()
	w.StartMessage(1)
	w.WriteBytes(make([]byte, MaxPayloadSize+1))
	assert.ErrorIs(t, w.EndMessage(), ErrPayloadTooLarge)
	assert.Equal(t, 1, w.Depth(), "oversized message stays open")

	require.NoError(t, w.CancelMessage())
	assert.Zero(t, w.Len())
	assert.Zero(t, w.Depth())
}

func TestCancelMessage(t *testing.T) {
	w := NewWriter()
	defer w.Recycle()

	assert.ErrorIs(t, w.CancelMessage(), ErrUnbalancedFraming)

	w.StartMessage(1)
	w.WriteByte(0x01)
	w.StartMessage(2)
	w.WriteString("discard me")
	require.NoError(t, w.CancelMessage())
	w.WriteByte(0x02)
	require.NoError(t, w.EndMessage())

	data, err := w.Finalize(true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x01, 0x01, 0x02}, data)
}

func TestWriterResetAndReuse(t *testing.T) {
	w := NewWriter()
	w.StartMessage(1)
	w.WriteString("stale")
	w.Recycle()

	w2 := NewWriter()
	defer w2.Recycle()
	assert.Zero(t, w2.Len())
	assert.Zero(t, w2.Depth())

	w2.StartMessage(3)
	require.NoError(t, w2.EndMessage())
	out, err := w2.Finalize(false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestWriterRecycleTwice(t *testing.T) {
	w := NewWriter()
	w.Recycle()
	before := WriterPoolStats().Puts
	w.Recycle()
	assert.Equal(t, before, WriterPoolStats().Puts)
}

func TestGetWriterCapacity(t *testing.T) {
	w := GetWriter(4096)
	defer w.Recycle()
	assert.GreaterOrEqual(t, cap(w.Bytes()), 4096)
}

func TestPackedInt32Sizes(t *testing.T) {
	w := NewWriter()
	defer w.Recycle()

	w.WritePackedInt32(1)
	assert.Equal(t, 1, w.Len())
	w.WritePackedInt32(-1)
	assert.Equal(t, 1+MaxPackedLen, w.Len())
}
