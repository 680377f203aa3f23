package checksum

import (
	"bytes"
	"testing"

	"github.com/oferchen/rsync-sub026/internal/strongsum"
)

func TestBlockLengthFor(t *testing.T) {
	for _, tt := range []struct {
		fileSize int64
		want     int32
	}{
		{0, 700},
		{1, 700},
		{700 * 700, 1024}, // sqrt(490000)=700, rounded up to the next power of two
		{1 << 40, 1 << 17},
	} {
		if got := BlockLengthFor(tt.fileSize); got != tt.want {
			t.Errorf("BlockLengthFor(%d) = %d, want %d", tt.fileSize, got, tt.want)
		}
	}
}

func TestBlockLengthForMonotonic(t *testing.T) {
	prev := BlockLengthFor(0)
	for _, size := range []int64{1 << 10, 1 << 20, 1 << 30, 1 << 40} {
		got := BlockLengthFor(size)
		if got < prev {
			t.Errorf("BlockLengthFor(%d) = %d, smaller than BlockLengthFor of a smaller size (%d)", size, got, prev)
		}
		prev = got
	}
}

func TestChecksumLengthFor(t *testing.T) {
	if got := ChecksumLengthFor(100, 16); got != 2 {
		t.Errorf("ChecksumLengthFor(small file) = %d, want 2", got)
	}
	if got := ChecksumLengthFor(1<<21, 16); got != 16 {
		t.Errorf("ChecksumLengthFor(large file) = %d, want 16 (full digest)", got)
	}
}

func TestGenerateSignature(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 100) // 1000 bytes
	const blockLength = 300
	sig, err := Generate(bytes.NewReader(data), int64(len(data)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	wantBlocks := 4 // 300*3 + 100
	if len(sig.Blocks) != wantBlocks {
		t.Fatalf("len(sig.Blocks) = %d, want %d", len(sig.Blocks), wantBlocks)
	}
	if sig.RemainderLength != 100 {
		t.Errorf("RemainderLength = %d, want 100", sig.RemainderLength)
	}
	for i, b := range sig.Blocks {
		if b.Index != int32(i) {
			t.Errorf("block %d has Index %d", i, b.Index)
		}
		if len(b.Strong) != 16 {
			t.Errorf("block %d strong digest length = %d, want 16", i, len(b.Strong))
		}
	}
}

func TestGenerateExactMultiple(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 900) // exactly 3 blocks of 300
	sig, err := Generate(bytes.NewReader(data), int64(len(data)), 300, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig.Blocks) != 3 {
		t.Fatalf("len(sig.Blocks) = %d, want 3", len(sig.Blocks))
	}
	if sig.RemainderLength != 0 {
		t.Errorf("RemainderLength = %d, want 0 for an exact multiple", sig.RemainderLength)
	}
}

func TestGenerateEmpty(t *testing.T) {
	sig, err := Generate(bytes.NewReader(nil), 0, 700, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig.Blocks) != 0 {
		t.Errorf("len(sig.Blocks) = %d, want 0 for empty input", len(sig.Blocks))
	}
}

func TestParallelSignatureMatchesSequential(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefghij"), 250) // 2500 bytes
	const blockLength = 700
	seq, err := Generate(bytes.NewReader(data), int64(len(data)), blockLength, 16, strongsum.MD4, 7)
	if err != nil {
		t.Fatal(err)
	}
	par, err := ParallelSignature(data, blockLength, 16, strongsum.MD4, 7, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(seq.Blocks) != len(par.Blocks) {
		t.Fatalf("sequential produced %d blocks, parallel produced %d", len(seq.Blocks), len(par.Blocks))
	}
	for i := range seq.Blocks {
		if seq.Blocks[i].Weak != par.Blocks[i].Weak {
			t.Errorf("block %d: weak mismatch sequential=%d parallel=%d", i, seq.Blocks[i].Weak, par.Blocks[i].Weak)
		}
		if !bytes.Equal(seq.Blocks[i].Strong, par.Blocks[i].Strong) {
			t.Errorf("block %d: strong digest mismatch", i)
		}
	}
	if seq.RemainderLength != par.RemainderLength {
		t.Errorf("RemainderLength: sequential=%d parallel=%d", seq.RemainderLength, par.RemainderLength)
	}
}
