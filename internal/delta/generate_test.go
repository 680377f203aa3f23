package delta

import (
	"bytes"
	"testing"

	"github.com/oferchen/rsync-sub026/internal/checksum"
	"github.com/oferchen/rsync-sub026/internal/strongsum"
)

func TestGenerateIdenticalFileIsAllMatches(t *testing.T) {
	basis := bytes.Repeat([]byte("0123456789"), 30) // 300 bytes, 3 blocks of 100
	const blockLength = 100
	sig, err := checksum.Generate(bytes.NewReader(basis), int64(len(basis)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	m := checksum.NewMatcher(sig, strongsum.MD4, 0)

	tokens := Generate(basis, m, blockLength)
	var matches int
	for _, tok := range tokens {
		if tok.End() {
			continue
		}
		if !tok.Match {
			t.Fatalf("unexpected literal token %+v for an identical file", tok)
		}
		matches++
	}
	if matches != 3 {
		t.Errorf("got %d match tokens, want 3", matches)
	}
	if !tokens[len(tokens)-1].End() {
		t.Error("token stream does not end with the end-of-stream marker")
	}
}

func TestGenerateCompletelyDifferentIsOneLiteral(t *testing.T) {
	basis := bytes.Repeat([]byte{0xAA}, 300)
	const blockLength = 100
	sig, err := checksum.Generate(bytes.NewReader(basis), int64(len(basis)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	m := checksum.NewMatcher(sig, strongsum.MD4, 0)

	target := bytes.Repeat([]byte{0xBB}, 300)
	tokens := Generate(target, m, blockLength)
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2 (one literal + end marker): %+v", len(tokens), tokens)
	}
	if !bytes.Equal(tokens[0].Literal, target) {
		t.Errorf("literal token = %q, want the full target", tokens[0].Literal)
	}
	if !tokens[1].End() {
		t.Error("second token is not the end-of-stream marker")
	}
}

func TestGenerateAppendedTailIsMatchThenLiteral(t *testing.T) {
	basis := bytes.Repeat([]byte("0123456789"), 10) // 100 bytes, 1 block
	const blockLength = 100
	sig, err := checksum.Generate(bytes.NewReader(basis), int64(len(basis)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	m := checksum.NewMatcher(sig, strongsum.MD4, 0)

	target := append(append([]byte{}, basis...), []byte("appended")...)
	tokens := Generate(target, m, blockLength)

	if len(tokens) < 2 {
		t.Fatalf("got %d tokens, want at least a match and a trailing literal: %+v", len(tokens), tokens)
	}
	if !tokens[0].Match || tokens[0].BlockIndex != 0 {
		t.Fatalf("first token = %+v, want a match against block 0", tokens[0])
	}
	last := tokens[len(tokens)-2] // before the end marker
	if last.Match || !bytes.Equal(last.Literal, []byte("appended")) {
		t.Errorf("trailing token = %+v, want literal %q", last, "appended")
	}
}

func TestStreamGenerateMatchesGenerate(t *testing.T) {
	basis := bytes.Repeat([]byte("abcdefghij"), 20) // 200 bytes
	const blockLength = 50
	sig, err := checksum.Generate(bytes.NewReader(basis), int64(len(basis)), blockLength, 16, strongsum.MD4, 0)
	if err != nil {
		t.Fatal(err)
	}
	target := append(append([]byte{}, basis[:100]...), []byte("some new tail data here")...)

	m1 := checksum.NewMatcher(sig, strongsum.MD4, 0)
	want := Generate(target, m1, blockLength)

	m2 := checksum.NewMatcher(sig, strongsum.MD4, 0)
	w := &memWriter{}
	if err := StreamGenerate(w, target, m2, blockLength); err != nil {
		t.Fatal(err)
	}
	r := &memReader{r: bytes.NewReader(w.buf.Bytes())}
	var got []Token
	for {
		tok, err := ReadToken(r)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, tok)
		if tok.End() {
			break
		}
	}

	if len(got) != len(want) {
		t.Fatalf("StreamGenerate produced %d tokens, Generate produced %d", len(got), len(want))
	}
	for i := range want {
		if want[i].Match != got[i].Match || want[i].BlockIndex != got[i].BlockIndex || !bytes.Equal(want[i].Literal, got[i].Literal) {
			t.Errorf("token %d: StreamGenerate=%+v, Generate=%+v", i, got[i], want[i])
		}
	}
}
