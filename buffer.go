// File: buffer.go
// Package wirews
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Receive buffer: undecoded bytes persist across reads, a successful
// decode advances the read cursor by exactly the frame size. Storage is
// pooled; the cursor compacts lazily instead of re-slicing on every
// frame.

package wirews

import "github.com/valyala/bytebufferpool"

// compactThreshold is how far the cursor may run ahead before the live
// region is copied back to the front of the backing array.
const compactThreshold = 4096

type recvBuffer struct {
	bb  *bytebufferpool.ByteBuffer
	off int
}

func newRecvBuffer() recvBuffer {
	return recvBuffer{bb: bytebufferpool.Get()}
}

// push appends freshly read bytes.
func (b *recvBuffer) push(p []byte) {
	if b.off >= compactThreshold {
		b.compact()
	}
	b.bb.Write(p)
}

// bytes returns the unparsed region.
func (b *recvBuffer) bytes() []byte {
	return b.bb.B[b.off:]
}

// advance consumes n parsed bytes.
func (b *recvBuffer) advance(n int) {
	b.off += n
	if b.off == len(b.bb.B) {
		b.bb.Reset()
		b.off = 0
	}
}

func (b *recvBuffer) compact() {
	n := copy(b.bb.B, b.bb.B[b.off:])
	b.bb.B = b.bb.B[:n]
	b.off = 0
}

// release returns the backing store to the pool.
func (b *recvBuffer) release() {
	if b.bb != nil {
		bytebufferpool.Put(b.bb)
		b.bb = nil
	}
}
