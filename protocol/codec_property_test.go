// File: protocol/codec_property_test.go
// Copyright 2025 momentics@gmail.com
// License: Apache-2.0
//
// Property-based round-trip coverage of the frame codec.

package protocol

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_EncodeDecodeRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(p)) == p for every opcode and mask", prop.ForAll(
		func(opcodeIdx int, payload []byte, mask bool) bool {
			opcodes := []Opcode{OpText, OpBinary, OpClose, OpPing, OpPong}
			opcode := opcodes[opcodeIdx]

			wire, err := Encode(nil, opcode, payload, mask)
			if err != nil {
				return false
			}
			frame, n, err := Decode(wire, mask)
			if err != nil || frame == nil {
				return false
			}
			return n == len(wire) &&
				frame.Final &&
				frame.Opcode == opcode &&
				frame.Masked == mask &&
				bytes.Equal(frame.Payload, payload)
		},
		gen.IntRange(0, 4),
		gen.SliceOf(gen.UInt8()),
		gen.Bool(),
	))

	properties.Property("decode consumes exactly one frame from concatenated input", prop.ForAll(
		func(first []byte, second []byte) bool {
			wire1, err := Encode(nil, OpBinary, first, false)
			if err != nil {
				return false
			}
			wire, err := Encode(wire1, OpText, second, false)
			if err != nil {
				return false
			}
			frame, n, err := Decode(wire, false)
			if err != nil || frame == nil {
				return false
			}
			if !bytes.Equal(frame.Payload, first) || n != len(wire1) {
				return false
			}
			rest, m, err := Decode(wire[n:], false)
			if err != nil || rest == nil {
				return false
			}
			return m == len(wire)-n && bytes.Equal(rest.Payload, second)
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
