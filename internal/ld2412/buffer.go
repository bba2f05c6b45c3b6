package ld2412

import "sync/atomic"

// DefaultBufferCeiling caps the stream buffer at 3000 bytes; when the cap
// is exceeded the buffer keeps only the most recent half.
const DefaultBufferCeiling = 3000

// StreamBuffer is an append-only rolling buffer of unconsumed serial bytes.
// When the retained size exceeds the ceiling it unconditionally discards
// all but the most recent half: lossy, but a desynchronised stream can
// never grow memory without bound, and the scanner re-syncs from whatever
// bytes survive.
type StreamBuffer struct {
	buf     []byte
	ceiling int

	// dropped counts bytes discarded by the trim policy, not bytes
	// consumed as frames. Atomic so status endpoints can read it while
	// the processing loop appends.
	dropped atomic.Uint64
}

// NewStreamBuffer returns a buffer with the given ceiling; ceiling <= 0
// selects DefaultBufferCeiling.
func NewStreamBuffer(ceiling int) *StreamBuffer {
	if ceiling <= 0 {
		ceiling = DefaultBufferCeiling
	}
	return &StreamBuffer{ceiling: ceiling}
}

// Append adds bytes to the tail and applies the trim policy, so the buffer
// never holds more than the ceiling once Append returns.
func (b *StreamBuffer) Append(p []byte) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.ceiling {
		keep := b.ceiling / 2
		b.dropped.Add(uint64(len(b.buf) - keep))
		b.buf = append(b.buf[:0], b.buf[len(b.buf)-keep:]...)
	}
}

// TrimConsumed discards everything before the scanner-reported consumption
// offset. Offsets beyond the buffer clear it entirely.
func (b *StreamBuffer) TrimConsumed(upTo int) {
	if upTo <= 0 {
		return
	}
	if upTo >= len(b.buf) {
		b.buf = b.buf[:0]
		return
	}
	b.buf = append(b.buf[:0], b.buf[upTo:]...)
}

// Bytes returns the unconsumed bytes. The slice is only valid until the
// next Append or TrimConsumed.
func (b *StreamBuffer) Bytes() []byte { return b.buf }

// Len returns the number of unconsumed bytes.
func (b *StreamBuffer) Len() int { return len(b.buf) }

// Dropped returns the total bytes discarded by the trim policy.
func (b *StreamBuffer) Dropped() uint64 { return b.dropped.Load() }

// Reset discards all buffered bytes, e.g. on disconnect.
func (b *StreamBuffer) Reset() { b.buf = b.buf[:0] }
