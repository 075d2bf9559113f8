// File: transport/netconn.go
// Package transport adapts an established byte stream for the connection
// layer: residual-byte pushback ahead of socket reads, half-close, and
// peer-address reporting.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"io"
	"net"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/wirews/api"
)

var _ api.Stream = (*NetConn)(nil)

// NetConn wraps the raw stream a connection owns. Bytes pushed back with
// Unread drain in FIFO order before any read touches the underlying
// stream, which is how over-read handshake residue rejoins the framed
// byte sequence.
type NetConn struct {
	conn io.ReadWriteCloser

	mu      sync.Mutex
	head    []byte       // partially consumed front segment
	pending *queue.Queue // queued []byte segments behind head
}

// NewNetConn wraps conn. The adapter assumes exclusive ownership.
func NewNetConn(conn io.ReadWriteCloser) *NetConn {
	return &NetConn{
		conn:    conn,
		pending: queue.New(),
	}
}

// Unread queues p to be returned by subsequent reads before the stream is
// consulted again. The bytes are copied; segments drain in the order they
// were queued.
func (n *NetConn) Unread(p []byte) {
	if len(p) == 0 {
		return
	}
	seg := make([]byte, len(p))
	copy(seg, p)
	n.mu.Lock()
	n.pending.Add(seg)
	n.mu.Unlock()
}

// Read serves pushed-back segments first, then the underlying stream.
func (n *NetConn) Read(p []byte) (int, error) {
	n.mu.Lock()
	for len(n.head) == 0 && n.pending.Length() > 0 {
		n.head = n.pending.Remove().([]byte)
	}
	if len(n.head) > 0 {
		c := copy(p, n.head)
		n.head = n.head[c:]
		n.mu.Unlock()
		return c, nil
	}
	n.mu.Unlock()
	return n.conn.Read(p)
}

// Write passes straight through; the core does not enforce flow control.
func (n *NetConn) Write(p []byte) (int, error) {
	return n.conn.Write(p)
}

// Close tears down the underlying stream.
func (n *NetConn) Close() error {
	return n.conn.Close()
}

// CloseWrite shuts the write side when the stream supports half-close
// (TCP does); otherwise it falls back to a full close.
func (n *NetConn) CloseWrite() error {
	if hc, ok := n.conn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return n.conn.Close()
}

// RemoteAddr returns the peer address string, "" when the stream carries
// no addressing.
func (n *NetConn) RemoteAddr() string {
	if c, ok := n.conn.(net.Conn); ok {
		if a := c.RemoteAddr(); a != nil {
			return a.String()
		}
	}
	return ""
}

// LocalAddr returns the local address string, "" when unavailable.
func (n *NetConn) LocalAddr() string {
	if c, ok := n.conn.(net.Conn); ok {
		if a := c.LocalAddr(); a != nil {
			return a.String()
		}
	}
	return ""
}
