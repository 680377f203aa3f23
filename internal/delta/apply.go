package delta

import (
	"errors"
	"io"
)

// MaxMapSize bounds how much of the basis file apply keeps mapped in
// memory at once via ReaderAt.ReadAt, mirroring upstream's windowed basis
// access (spec.md §4.D, "Delta application"). Since block matches can
// reference the basis file at any offset, apply never needs more than
// one block in memory at a time regardless of MaxMapSize; the constant
// exists to size an optional read-ahead buffer for sequential basis
// access patterns.
const MaxMapSize = 256 * 1024

// ChunkSize is the write granularity apply uses when checking for
// all-zero spans that can become holes in a sparse output file (spec.md
// §4.E, "Sparse writes").
const ChunkSize = 32 * 1024

// ErrBlockIndexOutOfRange means a match token referenced a block index
// the basis signature doesn't have, an otherwise-impossible situation
// that indicates sender/receiver desync.
var ErrBlockIndexOutOfRange = errors.New("delta: block index out of range")

// BlockBounds returns a block index's (offset, length) within the basis
// file, accounting for the final block possibly being shorter.
type BlockBounds func(blockIndex int32) (offset int64, length int32, err error)

// SparseWriter is satisfied by outputs that support detecting all-zero
// regions and turning them into holes instead of writing real zero
// bytes; *os.File with Seek support satisfies this via WriteAt plus
// Truncate extending the file, which callers wire up themselves.
type SparseWriter interface {
	io.WriterAt
	Truncate(size int64) error
}

// Apply replays a token stream against basis, writing the reconstructed
// file to out. basis must support random access since match tokens can
// reference any prior block regardless of output write order.
func Apply(tokens Reader, basis io.ReaderAt, bounds BlockBounds, out io.Writer) (int64, error) {
	var written int64
	for {
		tok, err := ReadToken(tokens)
		if err != nil {
			return written, err
		}
		if tok.End() {
			return written, nil
		}
		if tok.Match {
			off, length, err := bounds(tok.BlockIndex)
			if err != nil {
				return written, err
			}
			buf := make([]byte, length)
			if _, err := basis.ReadAt(buf, off); err != nil && err != io.EOF {
				return written, err
			}
			n, err := out.Write(buf)
			written += int64(n)
			if err != nil {
				return written, err
			}
			continue
		}
		n, err := out.Write(tok.Literal)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
}

// ApplySparse is like Apply but writes through a SparseWriter, skipping
// physical writes for chunks that are entirely zero so the output file
// gains holes instead of explicit zero bytes, matching rsync's
// --sparse behavior. offset tracks the current write position since
// WriteAt needs an explicit position.
func ApplySparse(tokens Reader, basis io.ReaderAt, bounds BlockBounds, out SparseWriter) (int64, error) {
	var offset int64
	for {
		tok, err := ReadToken(tokens)
		if err != nil {
			return offset, err
		}
		if tok.End() {
			if err := out.Truncate(offset); err != nil {
				return offset, err
			}
			return offset, nil
		}

		var data []byte
		if tok.Match {
			off, length, err := bounds(tok.BlockIndex)
			if err != nil {
				return offset, err
			}
			buf := make([]byte, length)
			if _, err := basis.ReadAt(buf, off); err != nil && err != io.EOF {
				return offset, err
			}
			data = buf
		} else {
			data = tok.Literal
		}

		if err := writeSparseChunks(out, offset, data); err != nil {
			return offset, err
		}
		offset += int64(len(data))
	}
}

func writeSparseChunks(out SparseWriter, offset int64, data []byte) error {
	for start := 0; start < len(data); start += ChunkSize {
		end := start + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]
		if isAllZero(chunk) {
			continue // hole: rely on the file's extended size to read back as zero
		}
		if _, err := out.WriteAt(chunk, offset+int64(start)); err != nil {
			return err
		}
	}
	return nil
}

func isAllZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// DefaultBlockBounds builds a BlockBounds closure from block length and
// total block count, the common case where blocks are laid out
// contiguously except for a possibly-short final block.
func DefaultBlockBounds(blockLength int32, blockCount int32, remainderLength int32) BlockBounds {
	return func(blockIndex int32) (int64, int32, error) {
		if blockIndex < 0 || blockIndex >= blockCount {
			return 0, 0, ErrBlockIndexOutOfRange
		}
		length := blockLength
		if blockIndex == blockCount-1 && remainderLength != 0 {
			length = remainderLength
		}
		return int64(blockIndex) * int64(blockLength), length, nil
	}
}
