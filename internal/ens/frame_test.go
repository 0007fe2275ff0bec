package ens

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFrame(messageID uint64, refID string, payload []byte) []byte {
	buf := make([]byte, 0, 16+len(refID)+len(payload))
	var msgIDBytes [8]byte
	binary.LittleEndian.PutUint64(msgIDBytes[:], messageID)
	buf = append(buf, msgIDBytes[:]...)
	buf = append(buf, 0, 0) // reserved
	buf = append(buf, byte(len(refID)))
	buf = append(buf, []byte(refID)...)
	buf = append(buf, 0) // payload_format = JSON
	var sizeBytes [4]byte
	binary.LittleEndian.PutUint32(sizeBytes[:], uint32(len(payload)))
	buf = append(buf, sizeBytes[:]...)
	buf = append(buf, payload...)
	return buf
}

func TestDecodeFrames_SingleCompleteFrame(t *testing.T) {
	raw := encodeFrame(42, "orders", []byte(`{"Data":[]}`))

	frames, remainder, err := DecodeFrames(raw)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, uint64(42), frames[0].MessageID)
	assert.Equal(t, "orders", frames[0].ReferenceID)
	assert.Equal(t, `{"Data":[]}`, string(frames[0].Payload))
	assert.Empty(t, remainder)
}

func TestDecodeFrames_IncompleteTrailingBytesRollOver(t *testing.T) {
	full := encodeFrame(1, "x", []byte(`{}`))
	truncated := full[:len(full)-1]

	frames, remainder, err := DecodeFrames(truncated)
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Equal(t, truncated, remainder)

	// Feeding the missing byte via the rollover buffer should complete it.
	frames, remainder, err = DecodeFrames(append(remainder, full[len(full)-1]))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Empty(t, remainder)
}

func TestDecodeFrames_MultipleFramesConcatenated(t *testing.T) {
	raw := append(encodeFrame(1, "a", []byte(`{"n":1}`)), encodeFrame(2, "b", []byte(`{"n":2}`))...)

	frames, remainder, err := DecodeFrames(raw)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(1), frames[0].MessageID)
	assert.Equal(t, uint64(2), frames[1].MessageID)
	assert.Empty(t, remainder)
}

func TestDecodeFrames_NonZeroPayloadFormatIsUnrecoverable(t *testing.T) {
	raw := encodeFrame(1, "a", []byte(`{}`))
	raw[11+1] = 1 // payload_format byte, refID "a" is 1 byte

	_, _, err := DecodeFrames(raw)
	assert.ErrorIs(t, err, ErrUnrecoverableFormat)
}
