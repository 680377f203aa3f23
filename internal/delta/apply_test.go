package delta

import (
	"bytes"
	"testing"
)

func TestApplyMatchAndLiteral(t *testing.T) {
	basis := []byte("0123456789ABCDEFGHIJ") // 20 bytes, 2 blocks of 10
	bounds := DefaultBlockBounds(10, 2, 0)

	w := &memWriter{}
	tokens := []Token{
		{Match: true, BlockIndex: 1}, // "ABCDEFGHIJ"
		{Literal: []byte("-new-")},
		{Match: true, BlockIndex: 0}, // "0123456789"
		{},
	}
	for _, tok := range tokens {
		if err := WriteToken(w, tok); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	r := &memReader{r: bytes.NewReader(w.buf.Bytes())}
	n, err := Apply(r, bytes.NewReader(basis), bounds, &out)
	if err != nil {
		t.Fatal(err)
	}
	want := "ABCDEFGHIJ-new-0123456789"
	if int(n) != len(want) {
		t.Errorf("Apply wrote %d bytes, want %d", n, len(want))
	}
	if out.String() != want {
		t.Errorf("Apply output = %q, want %q", out.String(), want)
	}
}

func TestApplyBlockIndexOutOfRange(t *testing.T) {
	basis := []byte("0123456789")
	bounds := DefaultBlockBounds(10, 1, 0)

	w := &memWriter{}
	if err := WriteToken(w, Token{Match: true, BlockIndex: 5}); err != nil {
		t.Fatal(err)
	}
	if err := WriteToken(w, Token{}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	r := &memReader{r: bytes.NewReader(w.buf.Bytes())}
	if _, err := Apply(r, bytes.NewReader(basis), bounds, &out); err != ErrBlockIndexOutOfRange {
		t.Errorf("Apply returned err=%v, want ErrBlockIndexOutOfRange", err)
	}
}

func TestDefaultBlockBoundsRemainder(t *testing.T) {
	bounds := DefaultBlockBounds(100, 3, 50)
	off, length, err := bounds(2)
	if err != nil {
		t.Fatal(err)
	}
	if off != 200 || length != 50 {
		t.Errorf("bounds(2) = (%d, %d), want (200, 50)", off, length)
	}
	off, length, err = bounds(0)
	if err != nil {
		t.Fatal(err)
	}
	if off != 0 || length != 100 {
		t.Errorf("bounds(0) = (%d, %d), want (0, 100)", off, length)
	}
}

// sparseFile is an in-memory SparseWriter that records which byte ranges
// were actually written, so a test can confirm all-zero chunks are
// skipped rather than physically written.
type sparseFile struct {
	data    []byte
	written []bool
}

func (f *sparseFile) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if end > len(f.data) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
		f.written = append(f.written, make([]bool, end-len(f.written))...)
	}
	copy(f.data[off:end], p)
	for i := int(off); i < end; i++ {
		f.written[i] = true
	}
	return len(p), nil
}

func (f *sparseFile) Truncate(size int64) error {
	if int(size) > len(f.data) {
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
		f.written = append(f.written, make([]bool, int(size)-len(f.written))...)
	} else {
		f.data = f.data[:size]
		f.written = f.written[:size]
	}
	return nil
}

func TestApplySparseSkipsZeroChunks(t *testing.T) {
	zeroChunk := make([]byte, ChunkSize)
	literal := append(append([]byte{}, zeroChunk...), []byte("nonzero")...)

	w := &memWriter{}
	if err := WriteToken(w, Token{Literal: literal}); err != nil {
		t.Fatal(err)
	}
	if err := WriteToken(w, Token{}); err != nil {
		t.Fatal(err)
	}

	out := &sparseFile{}
	r := &memReader{r: bytes.NewReader(w.buf.Bytes())}
	n, err := ApplySparse(r, bytes.NewReader(nil), DefaultBlockBounds(1, 0, 0), out)
	if err != nil {
		t.Fatal(err)
	}
	if int(n) != len(literal) {
		t.Fatalf("ApplySparse wrote %d logical bytes, want %d", n, len(literal))
	}
	for i := 0; i < ChunkSize; i++ {
		if out.written[i] {
			t.Fatalf("byte %d of the all-zero chunk was physically written", i)
		}
	}
	for i := ChunkSize; i < len(literal); i++ {
		if !out.written[i] {
			t.Fatalf("byte %d of the nonzero tail was not written", i)
		}
	}
	if !bytes.Equal(out.data[ChunkSize:], []byte("nonzero")) {
		t.Errorf("tail data = %q, want %q", out.data[ChunkSize:], "nonzero")
	}
}
