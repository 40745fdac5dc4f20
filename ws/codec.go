// File: ws/codec.go
// Author: momentics <momentics@gmail.com>
//
// Incremental, non-blocking frame decoding and encoding. DecodeFrame keeps
// the teacher's frame_codec.go convention of returning (zero Frame, 0, nil)
// on an incomplete header or payload rather than an error — the caller
// (engine.go) is expected to retry once more bytes have arrived.

package ws

import (
	"encoding/binary"
	"fmt"
)

// DecodeFrame attempts to parse one frame from the front of raw. It never
// allocates for the header; Payload aliases raw directly. Returns the frame,
// the number of bytes consumed from raw, and an error. An incomplete frame
// (not enough bytes yet) is reported as (Frame{}, 0, nil) — this is not an
// error, it means "try again after more bytes arrive". A masked frame is a
// fatal protocol error: RFC 6455 §5.1 forbids a server from masking.
func DecodeFrame(raw []byte) (Frame, int, error) {
	if len(raw) < 2 {
		return Frame{}, 0, nil
	}
	fin := raw[0]&finBit != 0
	opcode := Opcode(raw[0] & 0x0F)
	masked := raw[1]&maskBit != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return Frame{}, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return Frame{}, 0, nil
		}
		length = int64(binary.BigEndian.Uint64(raw[offset:]))
		offset += 8
		if length < 0 {
			return Frame{}, 0, fmt.Errorf("ws: invalid frame length")
		}
	}

	if length > MaxFramePayload {
		return Frame{}, 0, fmt.Errorf("ws: frame payload %d exceeds maximum %d", length, MaxFramePayload)
	}

	// RFC 6455 §5.1: a server MUST NOT mask any frame it sends to the
	// client. A masked server frame is a fatal protocol error, not a
	// format to accommodate.
	if masked {
		return Frame{}, 0, fmt.Errorf("ws: masked frame received from server")
	}

	total := offset + int(length)
	if len(raw) < total {
		return Frame{}, 0, nil
	}

	payload := raw[offset:total]

	return Frame{Fin: fin, Opcode: opcode, Payload: payload}, total, nil
}

// EncodeFrame appends the wire representation of a frame with the given
// fin/opcode/payload to dst, masking with maskKey, and returns the extended
// slice. Per RFC 6455 §5.1, a client MUST mask every frame it sends.
func EncodeFrame(dst []byte, fin bool, opcode Opcode, payload []byte, maskKey [4]byte) []byte {
	var b0 byte
	if fin {
		b0 = finBit
	}
	b0 |= byte(opcode) & 0x0F

	plen := len(payload)
	switch {
	case plen <= 125:
		dst = append(dst, b0, byte(plen)|maskBit)
	case plen <= 0xFFFF:
		dst = append(dst, b0, 126|maskBit, 0, 0)
		binary.BigEndian.PutUint16(dst[len(dst)-2:], uint16(plen))
	default:
		dst = append(dst, b0, 127|maskBit, 0, 0, 0, 0, 0, 0, 0, 0)
		binary.BigEndian.PutUint64(dst[len(dst)-8:], uint64(plen))
	}

	dst = append(dst, maskKey[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	for i := range dst[start:] {
		dst[start+i] ^= maskKey[i%4]
	}
	return dst
}
