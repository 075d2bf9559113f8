// File: connection.go
// Package wirews implements the core WebSocket connection state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn owns an upgraded byte stream and drives RFC 6455 semantics over
// it: greedy frame decoding out of a cumulative receive buffer, event
// dispatch in wire order, automatic PONG replies, the CLOSE handshake,
// and keepalive PINGs on client connections.
//
// All inbound events are emitted from a single pump goroutine, so for
// frames F1, F2 received in that order their events fire in that order,
// and the reciprocating PONG for a PING goes out after the ping event
// but before any later frame is dispatched.

package wirews

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"

	"github.com/momentics/wirews/api"
	"github.com/momentics/wirews/control"
	"github.com/momentics/wirews/protocol"
	"github.com/momentics/wirews/transport"
)

// readChunk is the per-read scratch size of the pump.
const readChunk = 4096

// Conn is a WebSocket connection over an exclusively owned byte stream.
//
// The factory returns a Conn without reading from the stream; install
// handlers, then call Start. This gives the caller time to register
// handlers before any pre-buffered residual bytes are dispatched.
type Conn struct {
	stream  *transport.NetConn
	log     zerolog.Logger
	metrics *control.Metrics

	remoteMustMask  bool
	localShouldMask bool
	subprotocol     string
	keepalive       time.Duration // 0 disables the PING ticker
	autoPong        bool

	handlers api.Handlers

	mu             sync.Mutex
	rbuf           recvBuffer
	started        bool
	closeWritten   bool
	closeReceived  bool
	endEmitted     bool
	draining       bool
	destroyed      bool
	closeCode      protocol.CloseCode
	closeName      string
	closeReason    string
	framesReceived int64
	framesSent     int64

	// wmu serializes whole frames onto the stream: the pump's auto-PONG
	// replies and application sends may run concurrently.
	wmu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
}

func newConn(stream *transport.NetConn, isClient bool, subprotocol string, o Options) *Conn {
	logger := o.Logger.With().
		Str("component", "wirews").
		Bool("client", isClient).
		Str("remote", stream.RemoteAddr()).
		Logger()

	var keepalive time.Duration
	if isClient && o.Keepalive {
		keepalive = o.KeepaliveInterval
	}

	c := &Conn{
		stream:          stream,
		log:             logger,
		metrics:         o.Metrics,
		remoteMustMask:  !isClient,
		localShouldMask: isClient,
		subprotocol:     subprotocol,
		keepalive:       keepalive,
		autoPong:        o.AutoPong,
		rbuf:            newRecvBuffer(),
		done:            make(chan struct{}),
	}
	c.metrics.Add(control.MetricConnectionsOpened, 1)
	return c
}

// Handler registration. Set these before Start; the pump goroutine reads
// them without further synchronization.

// OnText installs the TEXT message handler.
func (c *Conn) OnText(fn func(string)) { c.handlers.Text = fn }

// OnBinary installs the BINARY message handler.
func (c *Conn) OnBinary(fn func([]byte)) { c.handlers.Binary = fn }

// OnPing installs the PING handler.
func (c *Conn) OnPing(fn func([]byte)) { c.handlers.Ping = fn }

// OnPong installs the PONG handler.
func (c *Conn) OnPong(fn func([]byte)) { c.handlers.Pong = fn }

// OnConnectionReset installs the peer-vanished handler.
func (c *Conn) OnConnectionReset(fn func()) { c.handlers.ConnectionReset = fn }

// OnError installs the fault handler.
func (c *Conn) OnError(fn func(error)) { c.handlers.Error = fn }

// OnEnd installs the terminal handler. It fires exactly once.
func (c *Conn) OnEnd(fn func(code, reason string)) { c.handlers.End = fn }

// Handle installs every non-nil slot of h at once.
func (c *Conn) Handle(h api.Handlers) {
	if h.Text != nil {
		c.handlers.Text = h.Text
	}
	if h.Binary != nil {
		c.handlers.Binary = h.Binary
	}
	if h.Ping != nil {
		c.handlers.Ping = h.Ping
	}
	if h.Pong != nil {
		c.handlers.Pong = h.Pong
	}
	if h.ConnectionReset != nil {
		c.handlers.ConnectionReset = h.ConnectionReset
	}
	if h.Error != nil {
		c.handlers.Error = h.Error
	}
	if h.End != nil {
		c.handlers.End = h.End
	}
}

// Start launches the read pump and, on keepalive-enabled client
// connections, the PING ticker. Calling Start more than once is a no-op.
func (c *Conn) Start() {
	c.mu.Lock()
	if c.started || c.destroyed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	if c.keepalive > 0 {
		go c.keepaliveLoop()
	}
	go c.pump()
}

// Protocol returns the negotiated subprotocol, "" if none.
func (c *Conn) Protocol() string {
	return c.subprotocol
}

// CloseCode returns the close code observed from the peer. ok is false
// when no code arrived (no CLOSE, or a CLOSE payload shorter than 2
// bytes).
func (c *Conn) CloseCode() (code protocol.CloseCode, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeCode != 0
}

// RemoteAddr returns the peer address string when the stream carries one.
func (c *Conn) RemoteAddr() string { return c.stream.RemoteAddr() }

// LocalAddr returns the local address string when the stream carries one.
func (c *Conn) LocalAddr() string { return c.stream.LocalAddr() }

// Stats snapshots the per-connection frame counters.
func (c *Conn) Stats() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]int64{
		"frames_received": c.framesReceived,
		"frames_sent":     c.framesSent,
	}
}

// Send emits message as a TEXT frame when it is a string and a BINARY
// frame when it is a byte slice. Anything else is rejected synchronously.
func (c *Conn) Send(message any) error {
	switch m := message.(type) {
	case string:
		return c.SendText(m)
	case []byte:
		return c.SendBinary(m)
	default:
		return fmt.Errorf("%w: %T", api.ErrInvalidMessage, message)
	}
}

// SendText emits a TEXT frame.
func (c *Conn) SendText(s string) error {
	return c.writeFrame(protocol.OpText, []byte(s))
}

// SendBinary emits a BINARY frame.
func (c *Conn) SendBinary(p []byte) error {
	return c.writeFrame(protocol.OpBinary, p)
}

// Ping emits a PING frame with the given payload.
func (c *Conn) Ping(payload []byte) error {
	return c.writeFrame(protocol.OpPing, payload)
}

// End performs the graceful local close: it sends a CLOSE frame with
// code NORMAL and the optional reason, at most once. Later calls are
// no-ops. The connection turns terminal when the peer answers and the
// transport drains.
func (c *Conn) End(reason string) error {
	return c.end(protocol.CodeNormal, reason)
}

// EndWithCode is End with an explicit close code. Codes outside the
// 16-bit range are rejected synchronously.
func (c *Conn) EndWithCode(code int, reason string) error {
	if code < 0 || code > 0xFFFF {
		return fmt.Errorf("%w: %d", api.ErrInvalidCloseCode, code)
	}
	return c.end(protocol.CloseCode(code), reason)
}

func (c *Conn) end(code protocol.CloseCode, reason string) error {
	c.mu.Lock()
	if c.closeWritten || c.destroyed || c.endEmitted {
		c.mu.Unlock()
		return nil
	}
	c.closeWritten = true
	c.mu.Unlock()
	return c.writeControl(protocol.OpClose, protocol.EncodeClosePayload(code, reason))
}

// Destroy detaches from the stream and force-closes it without a CLOSE
// frame. The terminal event fires if it has not yet. Idempotent; meant
// for unclean teardown.
func (c *Conn) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	c.mu.Unlock()

	c.stopKeepalive()
	c.stream.Close()
	c.emitEnd()
}

// writeFrame serializes and writes one data frame, honoring the local
// masking policy.
func (c *Conn) writeFrame(op protocol.Opcode, payload []byte) error {
	c.mu.Lock()
	if c.destroyed || c.endEmitted || c.closeWritten {
		c.mu.Unlock()
		return api.ErrConnectionClosed
	}
	c.mu.Unlock()
	return c.writeControl(op, payload)
}

// writeControl is writeFrame without the close-state gate, used for the
// CLOSE frame itself and auto-PONG replies during the closing exchange.
func (c *Conn) writeControl(op protocol.Opcode, payload []byte) error {
	bb := bytebufferpool.Get()
	out, err := protocol.Encode(bb.B[:0], op, payload, c.localShouldMask)
	if err == nil {
		bb.B = out
		c.wmu.Lock()
		_, err = c.stream.Write(bb.B)
		c.wmu.Unlock()
	}
	bytebufferpool.Put(bb)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.framesSent++
	c.mu.Unlock()
	c.metrics.Add(control.MetricFramesSent, 1)
	c.metrics.Add(control.MetricBytesSent, int64(len(payload)))
	return nil
}

// pump is the read loop: transport bytes into the receive buffer, then
// greedy decoding until the buffer runs dry or the connection turns
// terminal.
func (c *Conn) pump() {
	defer func() {
		c.mu.Lock()
		c.rbuf.release()
		c.mu.Unlock()
	}()

	chunk := make([]byte, readChunk)
	for {
		n, err := c.stream.Read(chunk)
		if n > 0 {
			c.rbuf.push(chunk[:n])
			if !c.drainFrames() {
				return
			}
		}
		if err != nil {
			c.readFailed(err)
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

// drainFrames decodes until "need more". Returns false when the
// connection turned terminal and the pump must stop.
func (c *Conn) drainFrames() bool {
	for {
		c.mu.Lock()
		paused := c.draining || c.endEmitted || c.destroyed
		c.mu.Unlock()
		if paused {
			return !c.isTerminal()
		}

		frame, n, err := protocol.Decode(c.rbuf.bytes(), c.remoteMustMask)
		if err != nil {
			return c.decodeFailed(err)
		}
		if frame == nil {
			return true
		}
		c.rbuf.advance(n)

		c.mu.Lock()
		c.framesReceived++
		c.mu.Unlock()
		c.metrics.Add(control.MetricFramesReceived, 1)
		c.metrics.Add(control.MetricBytesReceived, int64(len(frame.Payload)))

		if !c.dispatch(frame) {
			return false
		}
	}
}

// dispatch routes one decoded frame to its event and side effects.
func (c *Conn) dispatch(f *protocol.Frame) bool {
	switch f.Opcode {
	case protocol.OpText:
		if h := c.handlers.Text; h != nil {
			h(string(f.Payload))
		}
	case protocol.OpBinary:
		if h := c.handlers.Binary; h != nil {
			h(f.Payload)
		}
	case protocol.OpPing:
		if h := c.handlers.Ping; h != nil {
			h(f.Payload)
		}
		if c.autoPong {
			if err := c.writeControl(protocol.OpPong, f.Payload); err != nil {
				c.log.Debug().Err(err).Msg("pong reply failed")
			}
		}
	case protocol.OpPong:
		if h := c.handlers.Pong; h != nil {
			h(f.Payload)
		}
	case protocol.OpClose:
		c.handleClose(f.Payload)
	default:
		c.log.Debug().Str("opcode", f.Opcode.String()).Msg("unsupported opcode")
		return c.decodeFailed(fmt.Errorf("%w: opcode %#x", api.ErrProtocolViolation, byte(f.Opcode)))
	}
	return true
}

// handleClose runs the peer-initiated closing handshake: record the
// code/reason, reciprocate with a CLOSE unless one already went out,
// then shut the write side. The terminal event follows on transport EOF.
func (c *Conn) handleClose(payload []byte) {
	c.mu.Lock()
	c.closeReceived = true
	if code, reason, ok := protocol.ParseClosePayload(payload); ok {
		c.closeCode = code
		c.closeName = code.Name()
		c.closeReason = reason
	}
	c.mu.Unlock()

	c.End("")
	if err := c.stream.CloseWrite(); err != nil {
		c.log.Debug().Err(err).Msg("write-side shutdown failed")
	}
}

// decodeFailed classifies a codec error. Fragmented frames trigger a
// graceful local close and leave the pump running until the peer hangs
// up; everything else is fatal.
func (c *Conn) decodeFailed(err error) bool {
	if errors.Is(err, api.ErrFragmentedFrame) {
		c.log.Debug().Msg("fragmented frame received, closing")
		c.mu.Lock()
		c.draining = true
		c.mu.Unlock()
		c.End("")
		return true
	}

	c.log.Debug().Err(err).Msg("fatal framing error")
	c.emitError(err)
	c.stream.CloseWrite()
	c.emitEnd()
	c.stream.Close()
	return false
}

// readFailed classifies a transport fault. EOF and reset-class errors
// from a peer that never sent CLOSE surface as connectionReset; other
// faults surface as error. Either way the connection turns terminal.
//
// Destroy closes the stream out from under a blocked Read, which lands
// here looking like a reset. That is local teardown, not the peer
// vanishing, so the destroyed flag suppresses connectionReset and error;
// only the (idempotent) terminal event remains.
func (c *Conn) readFailed(err error) {
	c.stopKeepalive()

	c.mu.Lock()
	alreadyEnded := c.endEmitted
	gotClose := c.closeReceived
	destroyed := c.destroyed
	c.mu.Unlock()

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || transport.IsReset(err) {
		if !gotClose && !alreadyEnded && !destroyed {
			c.metrics.Add(control.MetricResets, 1)
			if h := c.handlers.ConnectionReset; h != nil {
				h()
			}
		}
		c.emitEnd()
	} else {
		if !alreadyEnded && !destroyed {
			c.emitError(err)
		}
		c.emitEnd()
	}
	c.stream.Close()
}

// emitError delivers a fault to the error handler.
func (c *Conn) emitError(err error) {
	if h := c.handlers.Error; h != nil {
		h(err)
	}
}

// emitEnd fires the terminal event exactly once and cancels keepalive.
func (c *Conn) emitEnd() {
	c.mu.Lock()
	if c.endEmitted {
		c.mu.Unlock()
		return
	}
	c.endEmitted = true
	code, reason := c.closeName, c.closeReason
	c.mu.Unlock()

	c.stopKeepalive()
	c.metrics.Add(control.MetricConnectionsClosed, 1)
	c.log.Debug().Str("code", code).Str("reason", reason).Msg("connection ended")
	if h := c.handlers.End; h != nil {
		h(code, reason)
	}
}

func (c *Conn) isTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endEmitted || c.destroyed
}

// stopKeepalive cancels the PING ticker; safe to call repeatedly.
func (c *Conn) stopKeepalive() {
	c.stopOnce.Do(func() { close(c.done) })
}

// keepaliveLoop sends empty PINGs on the configured interval until the
// connection turns terminal.
func (c *Conn) keepaliveLoop() {
	ticker := time.NewTicker(c.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.writeFrame(protocol.OpPing, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
