// File: protocol/codes.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// CloseCode is the 16-bit application-layer reason embedded in a CLOSE
// frame payload.
type CloseCode uint16

// Close codes per RFC 6455 section 7.4.1. The reserved and pseudo codes
// (1004, 1005, 1006, 1015) are deliberately absent; peers sending codes
// outside this table are reported numeric-only.
const (
	CodeNormal           CloseCode = 1000
	CodeGoingAway        CloseCode = 1001
	CodeProtocolError    CloseCode = 1002
	CodeUnacceptable     CloseCode = 1003
	CodeMalformed        CloseCode = 1007
	CodePolicyViolation  CloseCode = 1008
	CodeTooBig           CloseCode = 1009
	CodeMissingExtension CloseCode = 1010
	CodeUnexpectedError  CloseCode = 1011
)

var codeNames = map[CloseCode]string{
	CodeNormal:           "NORMAL",
	CodeGoingAway:        "GOING_AWAY",
	CodeProtocolError:    "PROTOCOL_ERROR",
	CodeUnacceptable:     "UNACCEPTABLE",
	CodeMalformed:        "MALFORMED",
	CodePolicyViolation:  "POLICY_VIOLATION",
	CodeTooBig:           "TOO_BIG",
	CodeMissingExtension: "MISSING_EXTENSION",
	CodeUnexpectedError:  "UNEXPECTED_ERROR",
}

// Name returns the symbolic name for the code, or "" for values outside
// the table. The numeric value is still meaningful to callers.
func (c CloseCode) Name() string {
	return codeNames[c]
}

// CodeFromName resolves a symbolic name back to its wire value.
func CodeFromName(name string) (CloseCode, bool) {
	for c, n := range codeNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}
