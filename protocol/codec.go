// File: protocol/codec.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frame encode/decode over a cumulative byte buffer. Decode follows the
// incomplete-input contract used throughout this library: (nil, 0, nil)
// means "need more bytes", and no phase consumes anything until a whole
// frame is present.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/momentics/wirews/api"
)

// maxPayload is the hard per-frame payload cap. Longer frames are refused
// in both directions; 64-bit length extensions must have a zero high half.
const maxPayload = math.MaxUint32

// Decode parses one frame from the front of raw.
//
// Returns the frame and the number of bytes consumed, or (nil, 0, nil)
// when raw does not yet hold a complete frame. remoteMustMask is the role
// policy: a mask bit that differs from it is a fatal protocol violation
// (servers require masked input, clients require unmasked input).
//
// A buffer starting with ASCII "HT" is rejected as stream misdirection:
// framed input never begins with those bytes, but a leaky upstream HTTP
// parser's residue does.
func Decode(raw []byte, remoteMustMask bool) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil
	}
	if raw[0] == 'H' && raw[1] == 'T' {
		return nil, 0, api.ErrStreamMisdirection
	}

	final := raw[0]&finBit != 0
	opcode := Opcode(raw[0] & 0x0F)
	masked := raw[1]&maskBit != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	if !final {
		return nil, 0, api.ErrFragmentedFrame
	}

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil
		}
		wide := binary.BigEndian.Uint64(raw[offset:])
		if wide>>32 != 0 {
			return nil, 0, fmt.Errorf("%w: 64-bit length %d", api.ErrPayloadTooLarge, wide)
		}
		length = int64(wide)
		offset += 8
	}

	if masked != remoteMustMask {
		return nil, 0, fmt.Errorf("%w: mask bit %v violates role policy", api.ErrProtocolViolation, masked)
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := int64(offset) + length
	if int64(len(raw)) < total {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, raw[offset:total])
	if masked {
		maskBytes(payload, maskKey)
	}

	return &Frame{
		Final:   final,
		Opcode:  opcode,
		Masked:  masked,
		MaskKey: maskKey,
		Payload: payload,
	}, int(total), nil
}

// Encode appends one wire frame to dst and returns the extended slice.
// FIN is always set; this library never emits continuation frames. When
// mask is true a fresh random key is drawn and the payload copy inside
// dst is XOR'd, leaving the caller's payload untouched.
func Encode(dst []byte, opcode Opcode, payload []byte, mask bool) ([]byte, error) {
	if uint64(len(payload)) > maxPayload {
		return dst, fmt.Errorf("%w: %d bytes", api.ErrPayloadTooLarge, len(payload))
	}

	b0 := byte(finBit) | byte(opcode&0x0F)
	var b1 byte
	if mask {
		b1 = maskBit
	}

	plen := len(payload)
	switch {
	case plen <= 125:
		dst = append(dst, b0, b1|byte(plen))
	case plen <= 0xFFFF:
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(plen))
		dst = append(dst, b0, b1|126, ext[0], ext[1])
	default:
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(plen))
		dst = append(dst, b0, b1|127)
		dst = append(dst, ext[:]...)
	}

	if mask {
		var key [4]byte
		if _, err := rand.Read(key[:]); err != nil {
			return dst, fmt.Errorf("wirews: mask key: %w", err)
		}
		dst = append(dst, key[:]...)
		start := len(dst)
		dst = append(dst, payload...)
		maskBytes(dst[start:], key)
		return dst, nil
	}

	return append(dst, payload...), nil
}

// maskBytes XORs buf in place with the 4-byte key.
func maskBytes(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}

// EncodeClosePayload builds a CLOSE frame payload: the big-endian code
// followed by the UTF-8 reason. An empty reason yields a 2-byte payload.
func EncodeClosePayload(code CloseCode, reason string) []byte {
	p := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(p, uint16(code))
	copy(p[2:], reason)
	return p
}

// ParseClosePayload extracts the close code and reason from a CLOSE frame
// payload. Payloads shorter than 2 bytes (including the RFC-malformed
// 1-byte case) carry neither; ok is false and both results are zero.
func ParseClosePayload(p []byte) (code CloseCode, reason string, ok bool) {
	if len(p) < 2 {
		return 0, "", false
	}
	return CloseCode(binary.BigEndian.Uint16(p)), string(p[2:]), true
}
