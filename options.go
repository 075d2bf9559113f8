// File: options.go
// Package wirews
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wirews

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/wirews/control"
)

// Options configures the factory. The zero value is not usable; start
// from defaultOptions via the Option list on Accept/Connect.
type Options struct {
	// Keepalive enables periodic empty PINGs. Applies to client
	// connections; servers rely on the peer's keepalive.
	Keepalive bool
	// KeepaliveInterval is the PING period.
	KeepaliveInterval time.Duration
	// AutoPong controls the automatic PONG reply to inbound PINGs.
	AutoPong bool
	// Subprotocols is the server's ordered list for negotiation.
	Subprotocols []string
	// Logger receives debug-level lifecycle and fault logs.
	Logger *zerolog.Logger
	// Metrics, when set, aggregates counters across connections.
	Metrics *control.Metrics
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() Options {
	nop := zerolog.Nop()
	return Options{
		Keepalive:         true,
		KeepaliveInterval: 5 * time.Second,
		AutoPong:          true,
		Logger:            &nop,
	}
}

func collectOptions(opts []Option) Options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithKeepalive toggles client-side keepalive PINGs.
func WithKeepalive(enabled bool) Option {
	return func(o *Options) { o.Keepalive = enabled }
}

// WithKeepaliveInterval sets the PING period.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(o *Options) { o.KeepaliveInterval = d }
}

// WithAutoPong toggles the automatic PONG reply to PINGs.
func WithAutoPong(enabled bool) Option {
	return func(o *Options) { o.AutoPong = enabled }
}

// WithSubprotocols sets the server-supported subprotocol list, in
// preference order.
func WithSubprotocols(protocols ...string) Option {
	return func(o *Options) { o.Subprotocols = protocols }
}

// WithLogger installs a logger; the default discards everything.
func WithLogger(l *zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithMetrics installs a shared counter registry.
func WithMetrics(m *control.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}
