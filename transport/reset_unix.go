//go:build unix

// File: transport/reset_unix.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isResetErrno matches the errnos a dying TCP peer produces on POSIX
// systems: ECONNRESET on read, EPIPE on write-after-FIN.
func isResetErrno(err error) bool {
	return errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.EPIPE)
}
