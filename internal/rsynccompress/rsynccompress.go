// Package rsynccompress implements the token-stream compression codecs
// negotiable over the wire (spec.md §4.B, "Capability algorithm
// negotiation"; §4.D "Compressed token format"): zstd and zlib via
// klauspost/compress, lz4 via pierrec/lz4, and a no-op passthrough.
package rsynccompress

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses/decompresses literal runs of the delta token stream.
// Match tokens (basis block references) are never compressed since they
// carry no payload bytes over the wire.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

type none struct{}

func (none) Name() string                             { return "none" }
func (none) Compress(data []byte) ([]byte, error)      { return data, nil }
func (none) Decompress(data []byte) ([]byte, error)    { return data, nil }

// None is the no-op codec used when compression negotiation selects
// "none" or wasn't attempted at all.
var None Codec = none{}

type zlibCodec struct{ level int }

func NewZlib(level int) Codec { return zlibCodec{level: level} }

func (z zlibCodec) Name() string { return "zlib" }

func (z zlibCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, z.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (z zlibCodec) Decompress(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// zlibx is the same zlib stream format as zlibCodec but negotiated under
// a distinct name ("zlibx") because upstream uses it to mean "zlib
// without the rsync-specific Z_SYNC_FLUSH-per-token framing"; this
// implementation's zlib codec has no such framing to begin with, so the
// two are functionally identical here.
type zlibxCodec struct{ zlibCodec }

func NewZlibX(level int) Codec { return zlibxCodec{zlibCodec{level: level}} }
func (z zlibxCodec) Name() string { return "zlibx" }

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstd builds a reusable zstd codec. Callers should keep one instance
// per connection direction rather than constructing a new encoder per
// call, since *zstd.Encoder carries its own goroutine pool.
func NewZstd(level zstd.EncoderLevel) (Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (z *zstdCodec) Name() string { return "zstd" }

func (z *zstdCodec) Compress(data []byte) ([]byte, error) {
	return z.enc.EncodeAll(data, nil), nil
}

func (z *zstdCodec) Decompress(compressed []byte) ([]byte, error) {
	return z.dec.DecodeAll(compressed, nil)
}

// Close releases the zstd codec's background goroutines.
func (z *zstdCodec) Close() {
	z.enc.Close()
	z.dec.Close()
}

type lz4Codec struct{}

// NewLZ4 builds an lz4 block-format codec (not the frame format), since
// rsync's compressed token payloads are already individually
// length-prefixed on the wire and don't need lz4's own framing.
func NewLZ4() Codec { return lz4Codec{} }

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	var c lz4.Compressor
	n, err := c.CompressBlock(data, buf)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// Incompressible input: lz4 signals this by writing nothing: fall
		// back to storing the block verbatim with a sentinel marker.
		return append([]byte{0}, data...), nil
	}
	return append([]byte{1}, buf[:n]...), nil
}

func (lz4Codec) Decompress(compressed []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, nil
	}
	marker, payload := compressed[0], compressed[1:]
	if marker == 0 {
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil
	}
	// Decompressed size isn't carried in the block format; callers that
	// need exact bounds should track the original literal length from
	// the token stream itself, so an oversized scratch buffer suffices
	// here.
	buf := make([]byte, len(payload)*8+64)
	for i := 0; i < 8; i++ {
		n, err := lz4.UncompressBlock(payload, buf)
		if err == nil {
			return buf[:n], nil
		}
		if err != lz4.ErrInvalidSourceShortBuffer {
			return nil, err
		}
		buf = make([]byte, len(buf)*2)
	}
	return nil, lz4.ErrInvalidSourceShortBuffer
}
