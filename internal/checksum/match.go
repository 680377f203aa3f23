package checksum

import (
	"bytes"

	"github.com/oferchen/rsync-sub026/internal/strongsum"
)

// Matcher finds, for a rolling window over the target data, whether the
// window's checksum pair matches a known block of the basis file's
// Signature. It is hash-indexed on the low 16 bits of the weak checksum
// to keep per-byte lookup cheap (spec.md §4.D, "Matching").
type Matcher struct {
	sig    *Signature
	byLow16 map[uint16][]int // low16(weak) -> indices into sig.Blocks
	algo   strongsum.Algo
	seed   int32
}

// NewMatcher indexes sig for fast lookup. algo/seed must match what
// Generate used to build sig, since strong-digest confirmation re-hashes
// candidate windows.
func NewMatcher(sig *Signature, algo strongsum.Algo, seed int32) *Matcher {
	m := &Matcher{
		sig:     sig,
		byLow16: make(map[uint16][]int, len(sig.Blocks)),
		algo:    algo,
		seed:    seed,
	}
	for i, b := range sig.Blocks {
		low := uint16(b.Weak & 0xffff)
		m.byLow16[low] = append(m.byLow16[low], i)
	}
	return m
}

// Match looks up window's weak checksum and, on a low-16 hit, confirms
// with a full weak-checksum comparison followed by a strong-digest
// comparison over windowData. It returns the matched block index and
// true, or false if no block of the basis matches this window.
func (m *Matcher) Match(weak uint32, windowData []byte) (blockIndex int32, ok bool) {
	candidates := m.byLow16[uint16(weak&0xffff)]
	if len(candidates) == 0 {
		return 0, false
	}
	var strong []byte
	for _, idx := range candidates {
		b := &m.sig.Blocks[idx]
		if b.Weak != weak {
			continue
		}
		if strong == nil {
			s, err := strongsum.Sum(m.algo, m.seed, windowData)
			if err != nil {
				return 0, false
			}
			if len(b.Strong) < len(s) {
				s = s[:len(b.Strong)]
			}
			strong = s
		}
		if bytes.Equal(strong, b.Strong) {
			return b.Index, true
		}
	}
	return 0, false
}

// BlockSize returns the block length a matched index spans; the final
// block may be shorter (sig.RemainderLength).
func (m *Matcher) BlockSize(blockIndex int32) int32 {
	if int(blockIndex) == len(m.sig.Blocks)-1 && m.sig.RemainderLength != 0 {
		return m.sig.RemainderLength
	}
	return m.sig.BlockLength
}
