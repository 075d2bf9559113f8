// File: api/interfaces.go
// Package api defines the contracts between the wirews packages.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "io"

// Stream abstracts the byte-stream endpoint a connection takes ownership
// of after the HTTP upgrade. CloseWrite shuts the write side while the
// read side stays open for the peer's closing frame.
type Stream interface {
	io.Reader
	io.Writer
	Close() error
	CloseWrite() error
}

// Handlers is the set of callback slots a connection dispatches into.
// Nil slots are skipped. Install handlers before the read pump starts;
// the connection invokes them from its pump goroutine in wire order.
type Handlers struct {
	// Text receives the UTF-8 payload of a TEXT frame.
	Text func(string)
	// Binary receives the payload of a BINARY frame.
	Binary func([]byte)
	// Ping receives a PING payload. When auto-pong is enabled the
	// reciprocating PONG goes out after this returns.
	Ping func([]byte)
	// Pong receives a PONG payload.
	Pong func([]byte)
	// ConnectionReset fires at most once, strictly before End, when the
	// peer vanished without a CLOSE frame.
	ConnectionReset func()
	// Error precedes End for non-EOF faults.
	Error func(error)
	// End fires exactly once per connection. code is the symbolic close
	// code name ("NORMAL", ...) or empty when none or unknown; reason is
	// the peer-supplied close reason or empty.
	End func(code, reason string)
}
