package checksum

import (
	"bytes"
	"testing"

	"github.com/oferchen/rsync-sub026/internal/rollsum"
	"github.com/oferchen/rsync-sub026/internal/strongsum"
)

func TestMatcherMatch(t *testing.T) {
	data := append(append(bytes.Repeat([]byte("0123456789"), 10), bytes.Repeat([]byte("abcdefghij"), 10)...), bytes.Repeat([]byte("ABCDEFGHIJ"), 10)...) // 300 bytes, 3 distinct blocks of 100
	const blockLength = 100
	sig, err := Generate(bytes.NewReader(data), int64(len(data)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(sig, strongsum.MD4, 0)

	block1 := data[100:200]
	weak := rollsum.Checksum(block1)
	idx, ok := m.Match(weak, block1)
	if !ok {
		t.Fatal("Match did not find the second basis block")
	}
	if idx != 1 {
		t.Errorf("Match returned blockIndex %d, want 1", idx)
	}
}

func TestMatcherNoMatchOnDifferentContent(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 30)
	const blockLength = 100
	sig, err := Generate(bytes.NewReader(data), int64(len(data)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(sig, strongsum.MD4, 0)

	other := bytes.Repeat([]byte{0xFF}, 100)
	weak := rollsum.Checksum(other)
	if _, ok := m.Match(weak, other); ok {
		t.Error("Match reported a match against unrelated data")
	}
}

func TestMatcherStrongDigestDiscriminates(t *testing.T) {
	// A forged window with the same weak checksum as a basis block but
	// different content must not be reported as a match: Match has to
	// fall through to the strong digest before confirming a hit.
	data := []byte("aaaaaaaaaa" + "bbbbbbbbbb") // 2 blocks of 10
	const blockLength = 10
	sig, err := Generate(bytes.NewReader(data), int64(len(data)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(sig, strongsum.MD4, 0)

	block0 := data[0:10]
	weak0 := rollsum.Checksum(block0)
	idx, ok := m.Match(weak0, block0)
	if !ok || idx != 0 {
		t.Fatalf("Match(block0) = (%d, %v), want (0, true)", idx, ok)
	}

	// Same weak checksum value, unrelated content: Match must reject it
	// on the strong-digest comparison rather than trust the weak hit.
	forged := []byte("zzzzzzzzzz")
	if _, ok := m.Match(weak0, forged); ok {
		t.Error("Match reported a hit for forged data sharing only the weak checksum")
	}
}

func TestMatcherBlockSize(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 250) // blockLength 100: blocks of 100, 100, 50
	const blockLength = 100
	sig, err := Generate(bytes.NewReader(data), int64(len(data)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(sig, strongsum.MD4, 0)

	if got := m.BlockSize(0); got != 100 {
		t.Errorf("BlockSize(0) = %d, want 100", got)
	}
	if got := m.BlockSize(2); got != 50 {
		t.Errorf("BlockSize(2) = %d, want 50 (remainder block)", got)
	}
}
