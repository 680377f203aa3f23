package delta

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// memWriter/memReader are minimal Writer/Reader implementations backed by
// a byte buffer, used to exercise the sign-biased token framing without
// pulling in the wire package.
type memWriter struct {
	buf bytes.Buffer
}

func (w *memWriter) WriteInt32(v int32) error {
	return binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

type memReader struct {
	r *bytes.Reader
}

func (r *memReader) ReadInt32() (int32, error) {
	var v int32
	if err := binary.Read(r.r, binary.LittleEndian, &v); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		return 0, err
	}
	return v, nil
}

func (r *memReader) ReadN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func TestTokenRoundTripLiteral(t *testing.T) {
	w := &memWriter{}
	tok := Token{Literal: []byte("hello")}
	if err := WriteToken(w, tok); err != nil {
		t.Fatal(err)
	}
	r := &memReader{r: bytes.NewReader(w.buf.Bytes())}
	got, err := ReadToken(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Literal, tok.Literal) || got.Match {
		t.Errorf("ReadToken = %+v, want %+v", got, tok)
	}
}

func TestTokenRoundTripMatch(t *testing.T) {
	for _, blockIndex := range []int32{0, 1, 41} {
		w := &memWriter{}
		tok := Token{Match: true, BlockIndex: blockIndex}
		if err := WriteToken(w, tok); err != nil {
			t.Fatal(err)
		}
		r := &memReader{r: bytes.NewReader(w.buf.Bytes())}
		got, err := ReadToken(r)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Match || got.BlockIndex != blockIndex {
			t.Errorf("ReadToken(match %d) = %+v, want Match=true BlockIndex=%d", blockIndex, got, blockIndex)
		}
	}
}

func TestTokenRoundTripEnd(t *testing.T) {
	w := &memWriter{}
	if err := WriteToken(w, Token{}); err != nil {
		t.Fatal(err)
	}
	r := &memReader{r: bytes.NewReader(w.buf.Bytes())}
	got, err := ReadToken(r)
	if err != nil {
		t.Fatal(err)
	}
	if !got.End() {
		t.Errorf("ReadToken(end) = %+v, want End() true", got)
	}
}

func TestTokenStreamMixed(t *testing.T) {
	w := &memWriter{}
	toks := []Token{
		{Literal: []byte("abc")},
		{Match: true, BlockIndex: 3},
		{Literal: []byte("xyz")},
		{},
	}
	for _, tok := range toks {
		if err := WriteToken(w, tok); err != nil {
			t.Fatal(err)
		}
	}
	r := &memReader{r: bytes.NewReader(w.buf.Bytes())}
	for i, want := range toks {
		got, err := ReadToken(r)
		if err != nil {
			t.Fatalf("token %d: %v", i, err)
		}
		if want.End() {
			if !got.End() {
				t.Fatalf("token %d: got %+v, want end", i, got)
			}
			continue
		}
		if want.Match {
			if !got.Match || got.BlockIndex != want.BlockIndex {
				t.Fatalf("token %d: got %+v, want %+v", i, got, want)
			}
			continue
		}
		if !bytes.Equal(got.Literal, want.Literal) {
			t.Fatalf("token %d: got %+v, want %+v", i, got, want)
		}
	}
}
