// Package rollsum implements rsync's weak rolling checksum: an Adler-32
// style two-accumulator sum that can be updated in O(1) as a fixed-size
// window slides forward one byte at a time (spec.md §4.D, "Rolling
// checksum").
package rollsum

const charOffset = 31

// Sum is a rolling checksum over a sliding byte window. The zero value is
// an empty window.
type Sum struct {
	a, b   uint32
	window []byte
	start  int // index of the oldest byte in window (ring buffer head)
	count  int
}

// New creates a Sum primed with the given initial window contents.
func New(data []byte) *Sum {
	s := &Sum{window: make([]byte, len(data))}
	copy(s.window, data)
	s.count = len(data)
	for i, c := range data {
		s.a += uint32(c) + charOffset
		s.b += uint32(len(data)-i) * (uint32(c) + charOffset)
	}
	return s
}

// Value returns the current 32-bit checksum: low 16 bits of a combined
// with low 16 bits of b.
func (s *Sum) Value() uint32 {
	return (s.b << 16) | (s.a & 0xffff)
}

// Roll slides the window forward by one byte: removeByte leaves the
// window and addByte enters it. The caller is responsible for knowing
// the window length (rollsum does not track byte identities beyond a's
// and b's accumulators once primed this way); callers that keep the
// actual window slice around can re-prime from it with Reset.
func (s *Sum) Roll(removeByte, addByte byte, windowLen int) {
	s.a = s.a - uint32(removeByte) - charOffset + uint32(addByte) + charOffset
	s.b = s.b - uint32(windowLen)*(uint32(removeByte)+charOffset) + s.a
}

// Reset reinitializes the accumulators from a fresh window, used when a
// match advances the cursor by more than one byte (block boundary jump).
func (s *Sum) Reset(data []byte) {
	s.a, s.b = 0, 0
	for i, c := range data {
		s.a += uint32(c) + charOffset
		s.b += uint32(len(data)-i) * (uint32(c) + charOffset)
	}
}

// Checksum computes the rolling checksum of data in one pass without
// retaining any state, for one-shot use (e.g. signature generation).
func Checksum(data []byte) uint32 {
	var a, b uint32
	n := len(data)
	for i, c := range data {
		a += uint32(c) + charOffset
		b += uint32(n-i) * (uint32(c) + charOffset)
	}
	return (b << 16) | (a & 0xffff)
}
