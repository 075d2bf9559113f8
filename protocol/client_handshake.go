// File: protocol/client_handshake.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Client side of the upgrade handshake: validation of the server's 101
// response against the originally sent nonce.

package protocol

import (
	"net/http"
	"strings"

	"github.com/momentics/wirews/api"
)

// ValidateAcceptResponse checks an upgrade response. sentKey is the nonce
// the client put in Sec-WebSocket-Key. On success it returns the
// subprotocol the server echoed, "" if none.
func ValidateAcceptResponse(status int, hdr http.Header, sentKey string) (string, error) {
	if status != http.StatusSwitchingProtocols {
		return "", api.NewHandshakeError(api.HandshakeBadStatus, "status %d, want 101", status)
	}
	if !headerContainsToken(hdr, HeaderConnection, "upgrade") {
		return "", api.NewHandshakeError(api.HandshakeMissingConnection,
			"Connection header %q lacks upgrade token", hdr.Get(HeaderConnection))
	}
	if !strings.EqualFold(hdr.Get(HeaderUpgrade), "websocket") {
		return "", api.NewHandshakeError(api.HandshakeMissingUpgrade,
			"Upgrade header is %q, want websocket", hdr.Get(HeaderUpgrade))
	}
	if v := hdr.Get(HeaderSecWebSocketVer); v != "" && v != RequiredWebSocketVersion {
		return "", api.NewHandshakeError(api.HandshakeBadVersion,
			"version %q, only %q is supported", v, RequiredWebSocketVersion)
	}
	accept := hdr.Get(HeaderSecWebSocketAccept)
	if accept == "" || accept != AcceptKey(sentKey) {
		return "", api.NewHandshakeError(api.HandshakeBadAccept,
			"Sec-WebSocket-Accept %q does not match sent key", accept)
	}
	return hdr.Get(HeaderSecWebSocketProto), nil
}

// headerContainsToken reports whether the comma-separated header contains
// token, case-insensitive.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
