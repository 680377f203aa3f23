// Package checksum builds and matches block signatures: the per-block
// (rolling checksum, strong digest) pairs a receiver sends back to a
// sender so the sender can diff its copy of a file against the
// receiver's without ever seeing the receiver's bytes (spec.md §4.D,
// "Signature generation").
package checksum

import (
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/oferchen/rsync-sub026/internal/rollsum"
	"github.com/oferchen/rsync-sub026/internal/strongsum"
)

// BlockSignature is one block's weak+strong checksum pair.
type BlockSignature struct {
	Index  int32
	Weak   uint32
	Strong []byte
}

// Signature is the ordered set of block signatures for one file, plus
// the parameters needed to interpret token offsets against it.
type Signature struct {
	BlockLength     int32
	ChecksumLength  int32 // strong digest truncation length (spec.md §4.D)
	RemainderLength int32 // size of the final, possibly-short block
	FileSize        int64
	Blocks          []BlockSignature
}

// BlockLengthFor implements the block-size heuristic: sqrt(fileSize),
// rounded up to a power of two, clamped to [minBlockLength,
// maxBlockLength] (spec.md §4.D, "Block-size heuristic").
func BlockLengthFor(fileSize int64) int32 {
	const (
		minBlockLength = 700
		maxBlockLength = 1 << 17 // 128 KiB
	)
	if fileSize <= 0 {
		return minBlockLength
	}
	// integer sqrt
	var root int64
	for root*root < fileSize {
		root++
	}
	bl := int64(1)
	for bl < root {
		bl <<= 1
	}
	if bl < minBlockLength {
		bl = minBlockLength
	}
	if bl > maxBlockLength {
		bl = maxBlockLength
	}
	return int32(bl)
}

// ChecksumLengthFor implements the strong-digest truncation heuristic:
// shorter digests for smaller files/blocks, since a small file can't
// produce enough distinct blocks to need the full digest width to avoid
// collisions (spec.md §4.D, "Strong digest").
func ChecksumLengthFor(fileSize int64, algoSize int) int32 {
	const minChecksumLength = 2
	if fileSize < 1<<20 {
		if minChecksumLength < algoSize {
			return minChecksumLength
		}
	}
	return int32(algoSize)
}

// Generate computes the block signature list for r, reading fileSize
// bytes total in blockLength-sized chunks (the last possibly shorter).
func Generate(r io.Reader, fileSize int64, blockLength, checksumLength int32, algo strongsum.Algo, seed int32) (*Signature, error) {
	sig := &Signature{BlockLength: blockLength, ChecksumLength: checksumLength, FileSize: fileSize}
	buf := make([]byte, blockLength)
	var idx int32
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			strong, serr := strongsum.Sum(algo, seed, buf[:n])
			if serr != nil {
				return nil, serr
			}
			if int(checksumLength) < len(strong) {
				strong = strong[:checksumLength]
			}
			sig.Blocks = append(sig.Blocks, BlockSignature{
				Index:  idx,
				Weak:   rollsum.Checksum(buf[:n]),
				Strong: strong,
			})
			if int32(n) < blockLength {
				sig.RemainderLength = int32(n)
			}
			idx++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return sig, nil
}

// ParallelSignature computes block signatures using a bounded worker
// pool, useful for large basis files where per-block strong-digest
// computation dominates. data must already be fully resident in memory
// (the caller maps or reads the basis file up front); each block is
// computed by its own task, which writes only that block's slot, so
// results need no locking to assemble.
func ParallelSignature(data []byte, blockLength, checksumLength int32, algo strongsum.Algo, seed int32, workers int) (*Signature, error) {
	if workers < 1 {
		workers = 1
	}
	fileSize := int64(len(data))
	nBlocks := int((fileSize + int64(blockLength) - 1) / int64(blockLength))
	if nBlocks == 0 {
		return &Signature{BlockLength: blockLength, ChecksumLength: checksumLength, FileSize: fileSize}, nil
	}
	blocks := make([]BlockSignature, nBlocks)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := 0; i < nBlocks; i++ {
		i := i
		g.Go(func() error {
			start := int64(i) * int64(blockLength)
			end := start + int64(blockLength)
			if end > fileSize {
				end = fileSize
			}
			block := data[start:end]
			strong, err := strongsum.Sum(algo, seed, block)
			if err != nil {
				return err
			}
			if int(checksumLength) < len(strong) {
				strong = strong[:checksumLength]
			}
			blocks[i] = BlockSignature{
				Index:  int32(i),
				Weak:   rollsum.Checksum(block),
				Strong: strong,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sig := &Signature{BlockLength: blockLength, ChecksumLength: checksumLength, FileSize: fileSize, Blocks: blocks}
	if rem := fileSize % int64(blockLength); rem != 0 {
		sig.RemainderLength = int32(rem)
	}
	return sig, nil
}
