// File: protocol/handshake.go
// Package protocol implements the server side of the RFC 6455 upgrade
// handshake: header validation, subprotocol negotiation, accept-key
// computation, and response serialization.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/momentics/wirews/api"
)

// Handshake header names and pinned values.
const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	HeaderConnection         = "Connection"
	HeaderUpgrade            = "Upgrade"
	HeaderSecWebSocketKey    = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer    = "Sec-WebSocket-Version"
	HeaderSecWebSocketProto  = "Sec-WebSocket-Protocol"
	HeaderSecWebSocketAccept = "Sec-WebSocket-Accept"
	RequiredWebSocketVersion = "13"
)

// GenerateKey produces the client nonce for Sec-WebSocket-Key: 16
// cryptographically random bytes, base64-encoded.
func GenerateKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("wirews: nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// AcceptKey computes the Sec-WebSocket-Accept value for a client key
// per RFC 6455 section 1.3.
func AcceptKey(clientKey string) string {
	sum := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ValidateUpgrade checks an upgrade request's headers and negotiates a
// subprotocol. supported is the server's ordered, case-sensitive list.
// The chosen subprotocol is "" when the client offered none.
func ValidateUpgrade(hdr http.Header, supported []string) (string, error) {
	if !strings.EqualFold(hdr.Get(HeaderUpgrade), "websocket") {
		return "", api.NewHandshakeError(api.HandshakeMissingUpgrade,
			"Upgrade header is %q, want websocket", hdr.Get(HeaderUpgrade))
	}
	if hdr.Get(HeaderSecWebSocketKey) == "" {
		return "", api.NewHandshakeError(api.HandshakeMissingKey, "no Sec-WebSocket-Key header")
	}
	if v := hdr.Get(HeaderSecWebSocketVer); v != "" && v != RequiredWebSocketVersion {
		return "", api.NewHandshakeError(api.HandshakeBadVersion,
			"version %q, only %q is supported", v, RequiredWebSocketVersion)
	}
	return negotiateSubprotocol(hdr.Get(HeaderSecWebSocketProto), supported)
}

// negotiateSubprotocol picks the first client-offered protocol that the
// server also supports. Order and case of the offers are preserved.
func negotiateSubprotocol(offered string, supported []string) (string, error) {
	if offered == "" {
		return "", nil
	}
	if len(supported) == 0 {
		return "", api.NewHandshakeError(api.HandshakeUnexpectedSubprotocolRequest,
			"client offered %q but no subprotocols are served", offered)
	}
	for _, candidate := range strings.Split(offered, ",") {
		candidate = strings.TrimSpace(candidate)
		for _, s := range supported {
			if candidate == s {
				return candidate, nil
			}
		}
	}
	return "", api.NewHandshakeError(api.HandshakeNoMatchingSubprotocol,
		"none of %q is served", offered)
}

// WriteAcceptResponse serializes the 101 Switching Protocols response for
// a validated upgrade. subprotocol may be empty.
func WriteAcceptResponse(w io.Writer, clientKey, subprotocol string) error {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	b.WriteString(HeaderSecWebSocketAccept + ": " + AcceptKey(clientKey) + "\r\n")
	if subprotocol != "" {
		b.WriteString(HeaderSecWebSocketProto + ": " + subprotocol + "\r\n")
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteRejectResponse answers a failed upgrade with a bare 400. Callers
// are free to write their own response instead.
func WriteRejectResponse(w io.Writer) error {
	_, err := io.WriteString(w, "HTTP/1.1 400 Bad Request\r\nConnection: close\r\n\r\n")
	return err
}

// ReadUpgradeRequest reads one HTTP request off a raw stream and returns
// it together with any bytes the buffered reader over-read past the
// header terminator. Those residual bytes belong to the framed stream
// and must be pushed back before decoding begins.
func ReadUpgradeRequest(r io.Reader) (*http.Request, []byte, error) {
	br := bufio.NewReader(r)
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, nil, fmt.Errorf("wirews: read upgrade request: %w", err)
	}
	return req, drainBuffered(br), nil
}

// ReadUpgradeResponse reads one HTTP response off a raw stream, returning
// the residual over-read the same way as ReadUpgradeRequest.
func ReadUpgradeResponse(r io.Reader) (*http.Response, []byte, error) {
	br := bufio.NewReader(r)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("wirews: read upgrade response: %w", err)
	}
	return resp, drainBuffered(br), nil
}

// drainBuffered copies out whatever the reader holds beyond the parsed
// message.
func drainBuffered(br *bufio.Reader) []byte {
	n := br.Buffered()
	if n == 0 {
		return nil
	}
	residual := make([]byte, n)
	io.ReadFull(br, residual)
	return residual
}
