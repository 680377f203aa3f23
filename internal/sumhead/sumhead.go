// Package sumhead implements the wire encoding of a block signature
// header (block length, checksum length, file size, block count,
// remainder length, followed by each block's weak+strong checksum pair),
// shared by internal/receiver (which generates signatures against a local
// basis file) and internal/sender (which consumes them to produce a delta
// token stream). Keeping the codec in one place keeps both sides honest
// about the field order (spec.md §4.D, "Block signature header").
package sumhead

import (
	"fmt"

	"github.com/oferchen/rsync-sub026/internal/checksum"
	"github.com/oferchen/rsync-sub026/internal/rsyncwire"
)

// Write sends sig's header and every block's weak/strong checksum pair.
func Write(c *rsyncwire.Conn, sig *checksum.Signature) error {
	if err := rsyncwire.WriteVarint30(c.Writer, sig.BlockLength); err != nil {
		return err
	}
	if err := rsyncwire.WriteVarint30(c.Writer, sig.ChecksumLength); err != nil {
		return err
	}
	if err := rsyncwire.WriteFileSize(c, sig.FileSize); err != nil {
		return err
	}
	if err := rsyncwire.WriteVarint30(c.Writer, int32(len(sig.Blocks))); err != nil {
		return err
	}
	if err := rsyncwire.WriteVarint30(c.Writer, sig.RemainderLength); err != nil {
		return err
	}
	for _, b := range sig.Blocks {
		if err := c.WriteInt32(int32(b.Weak)); err != nil {
			return err
		}
		if len(b.Strong) != int(sig.ChecksumLength) {
			return fmt.Errorf("sumhead: strong digest length %d != checksum length %d", len(b.Strong), sig.ChecksumLength)
		}
		if _, err := c.Writer.Write(b.Strong); err != nil {
			return err
		}
	}
	return nil
}

// Read decodes a header written by Write.
func Read(c *rsyncwire.Conn) (*checksum.Signature, error) {
	blockLength, err := rsyncwire.ReadVarint30(c.Reader)
	if err != nil {
		return nil, err
	}
	checksumLength, err := rsyncwire.ReadVarint30(c.Reader)
	if err != nil {
		return nil, err
	}
	fileSize, err := rsyncwire.ReadFileSize(c)
	if err != nil {
		return nil, err
	}
	blockCount, err := rsyncwire.ReadVarint30(c.Reader)
	if err != nil {
		return nil, err
	}
	remainderLength, err := rsyncwire.ReadVarint30(c.Reader)
	if err != nil {
		return nil, err
	}
	sig := &checksum.Signature{
		BlockLength:     blockLength,
		ChecksumLength:  checksumLength,
		FileSize:        fileSize,
		RemainderLength: remainderLength,
		Blocks:          make([]checksum.BlockSignature, blockCount),
	}
	for i := range sig.Blocks {
		weak, err := c.ReadInt32()
		if err != nil {
			return nil, err
		}
		strong, err := c.ReadN(int(checksumLength))
		if err != nil {
			return nil, err
		}
		sig.Blocks[i] = checksum.BlockSignature{Index: int32(i), Weak: uint32(weak), Strong: strong}
	}
	return sig, nil
}
