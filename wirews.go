// File: wirews.go
// Package wirews is an RFC 6455 (version 13) framing engine over an
// already-established byte stream.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The factory takes control of a stream after the HTTP/1.1 Upgrade
// exchange has been parsed elsewhere: Accept for the server role,
// Connect for the client role. Both push any residual bytes the HTTP
// parser over-read back in front of the framed stream, and both have a
// detached variant that validates and completes the handshake but hands
// back the raw stream for proxy pass-through.

package wirews

import (
	"io"
	"net/http"

	"github.com/momentics/wirews/protocol"
	"github.com/momentics/wirews/transport"
)

// GenerateKey produces a fresh Sec-WebSocket-Key nonce: 16 random bytes,
// base64-encoded.
func GenerateKey() (string, error) {
	return protocol.GenerateKey()
}

// Accept validates an upgrade request, writes the 101 response to the
// stream, and returns the server-side connection. residual holds any
// bytes the HTTP parser read past the request; they are decoded before
// new stream bytes.
//
// On a rejected handshake nothing is written; the caller owns the stream
// and may answer with protocol.WriteRejectResponse.
//
// The returned connection has not started reading. Install handlers,
// then call Start.
func Accept(req *http.Request, stream io.ReadWriteCloser, residual []byte, opts ...Option) (*Conn, error) {
	o := collectOptions(opts)
	sub, err := protocol.ValidateUpgrade(req.Header, o.Subprotocols)
	if err != nil {
		return nil, err
	}

	nc := transport.NewNetConn(stream)
	nc.Unread(residual)
	if err := protocol.WriteAcceptResponse(nc, req.Header.Get(protocol.HeaderSecWebSocketKey), sub); err != nil {
		return nil, err
	}
	return newConn(nc, false, sub, o), nil
}

// AcceptDetached validates the upgrade and writes the 101 response, but
// builds no connection: the raw stream comes back with residual bytes
// pushed in front, ready for pass-through.
func AcceptDetached(req *http.Request, stream io.ReadWriteCloser, residual []byte, opts ...Option) (*transport.NetConn, error) {
	o := collectOptions(opts)
	sub, err := protocol.ValidateUpgrade(req.Header, o.Subprotocols)
	if err != nil {
		return nil, err
	}

	nc := transport.NewNetConn(stream)
	nc.Unread(residual)
	if err := protocol.WriteAcceptResponse(nc, req.Header.Get(protocol.HeaderSecWebSocketKey), sub); err != nil {
		return nil, err
	}
	return nc, nil
}

// Connect validates an upgrade response against the nonce originally
// sent as Sec-WebSocket-Key and returns the client-side connection. The
// subprotocol echoed by the server, if any, is recorded on the
// connection.
func Connect(resp *http.Response, stream io.ReadWriteCloser, residual []byte, sentKey string, opts ...Option) (*Conn, error) {
	o := collectOptions(opts)
	sub, err := protocol.ValidateAcceptResponse(resp.StatusCode, resp.Header, sentKey)
	if err != nil {
		return nil, err
	}

	nc := transport.NewNetConn(stream)
	nc.Unread(residual)
	return newConn(nc, true, sub, o), nil
}

// ConnectDetached validates the upgrade response and hands back the raw
// stream with residual bytes pushed in front.
func ConnectDetached(resp *http.Response, stream io.ReadWriteCloser, residual []byte, sentKey string) (*transport.NetConn, error) {
	if _, err := protocol.ValidateAcceptResponse(resp.StatusCode, resp.Header, sentKey); err != nil {
		return nil, err
	}
	nc := transport.NewNetConn(stream)
	nc.Unread(residual)
	return nc, nil
}
