// Package ens implements the Event Notification Service streaming
// client: binary frame decoding, control/activity classification,
// liveness monitoring, and token-aware reconnection.
package ens

import (
	"encoding/binary"
	"fmt"
)

// Frame is one decoded binary ENS record.
type Frame struct {
	MessageID     uint64
	ReferenceID   string
	PayloadFormat byte
	Payload       []byte
}

// frameHeaderMinSize is the smallest possible prefix before a frame's
// variable-length reference id and payload: 8 (message_id) + 2
// (reserved) + 1 (reference_id_size).
const frameHeaderMinSize = 11

// ErrUnrecoverableFormat is returned when payload_format is non-zero.
// Per spec.md §4.2 this is unrecoverable for the current buffer: the
// rollover buffer must be cleared.
var ErrUnrecoverableFormat = fmt.Errorf("ens: non-JSON payload_format, buffer discarded")

// DecodeFrames parses as many complete frames as are present in buf and
// returns them along with the unconsumed remainder, which the caller
// must prepend to the next read (the "rollover buffer" spec.md §4.2
// describes for incomplete trailing bytes).
//
// If a frame reports a non-zero payload_format, decoding stops
// immediately and ErrUnrecoverableFormat is returned; the caller must
// discard the entire buffer rather than retain a remainder.
func DecodeFrames(buf []byte) (frames []Frame, remainder []byte, err error) {
	offset := 0
	for {
		remaining := buf[offset:]
		if len(remaining) < frameHeaderMinSize {
			break
		}

		messageID := binary.LittleEndian.Uint64(remaining[0:8])
		// bytes 8:10 reserved
		refIDSize := int(remaining[10])

		headerWithRef := frameHeaderMinSize + refIDSize + 1 + 4 // + payload_format + payload_size
		if len(remaining) < headerWithRef {
			break
		}

		refID := string(remaining[11 : 11+refIDSize])
		payloadFormat := remaining[11+refIDSize]
		payloadSizeOffset := 12 + refIDSize
		payloadSize := binary.LittleEndian.Uint32(remaining[payloadSizeOffset : payloadSizeOffset+4])

		payloadStart := payloadSizeOffset + 4
		payloadEnd := payloadStart + int(payloadSize)
		if len(remaining) < payloadEnd {
			break
		}

		if payloadFormat != 0 {
			return frames, nil, ErrUnrecoverableFormat
		}

		payload := make([]byte, payloadSize)
		copy(payload, remaining[payloadStart:payloadEnd])

		frames = append(frames, Frame{
			MessageID:     messageID,
			ReferenceID:   refID,
			PayloadFormat: payloadFormat,
			Payload:       payload,
		})

		offset += payloadEnd
	}

	remainder = append([]byte(nil), buf[offset:]...)
	return frames, remainder, nil
}
