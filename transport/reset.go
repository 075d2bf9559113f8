// File: transport/reset.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Classification of "peer vanished underneath us" transport faults. These
// are surfaced as a connection reset rather than an error: the peer is
// simply gone without a closing frame.

package transport

import (
	"errors"
	"io"
	"net"
)

// IsReset reports whether err means the peer closed the transport without
// a WebSocket-level goodbye: connection reset, broken pipe, or a write
// against an already-closed stream.
func IsReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return isResetErrno(err)
}
