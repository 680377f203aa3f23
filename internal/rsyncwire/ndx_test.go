package rsyncwire

import (
	"bytes"
	"testing"
)

func TestNdxRoundTripModern(t *testing.T) {
	seq := []int32{0, 1, 2, 5, 300, 301, NdxFlistEOF, NdxDone, -5, -6, -500}
	var buf bytes.Buffer
	wc := &Conn{Writer: &buf, ProtocolVersion: 32}
	var wstate NdxState
	for _, n := range seq {
		var err error
		if n == NdxFlistEOF {
			err = WriteNdxFlistEOF(wc, &wstate)
		} else if n == NdxDone {
			err = WriteNdxDone(wc)
		} else {
			err = WriteNdx(wc, &wstate, n)
		}
		if err != nil {
			t.Fatalf("write %d: %v", n, err)
		}
	}

	rc := &Conn{Reader: bytes.NewReader(buf.Bytes()), ProtocolVersion: 32}
	var rstate NdxState
	for _, want := range seq {
		got, err := ReadNdx(rc, &rstate)
		if err != nil {
			t.Fatalf("read (want %d): %v", want, err)
		}
		if got != want {
			t.Fatalf("ReadNdx = %d, want %d", got, want)
		}
	}
}

func TestNdxRoundTripLegacy(t *testing.T) {
	seq := []int32{0, 1, 100, NdxFlistEOF, NdxDone, -5}
	var buf bytes.Buffer
	wc := &Conn{Writer: &buf, ProtocolVersion: 29}
	var wstate NdxState
	for _, n := range seq {
		var err error
		if n == NdxFlistEOF {
			err = WriteNdxFlistEOF(wc, &wstate)
		} else if n == NdxDone {
			err = WriteNdxDone(wc)
		} else {
			err = WriteNdx(wc, &wstate, n)
		}
		if err != nil {
			t.Fatalf("write %d: %v", n, err)
		}
	}
	if buf.Len() != len(seq)*4 {
		t.Fatalf("legacy encoding wrote %d bytes, want %d (4 bytes/value)", buf.Len(), len(seq)*4)
	}

	rc := &Conn{Reader: bytes.NewReader(buf.Bytes()), ProtocolVersion: 29}
	var rstate NdxState
	for _, want := range seq {
		got, err := ReadNdx(rc, &rstate)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("ReadNdx = %d, want %d", got, want)
		}
	}
}

func TestNdxModernSmallDeltaIsOneByte(t *testing.T) {
	var buf bytes.Buffer
	wc := &Conn{Writer: &buf, ProtocolVersion: 32}
	var state NdxState
	if err := WriteNdx(wc, &state, 1); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 1 {
		t.Errorf("encoding a first small positive index wrote %d bytes, want 1", buf.Len())
	}
}

func TestNdxModernLargeDeltaUsesExtension(t *testing.T) {
	var buf bytes.Buffer
	wc := &Conn{Writer: &buf, ProtocolVersion: 32}
	var state NdxState
	if err := WriteNdx(wc, &state, 10000); err != nil {
		t.Fatal(err)
	}
	if buf.Len() <= 1 {
		t.Errorf("encoding a large delta wrote only %d byte(s), want more than 1", buf.Len())
	}
	if buf.Bytes()[0] != ndxExtExtended {
		t.Errorf("first byte = %#x, want the extended marker %#x", buf.Bytes()[0], ndxExtExtended)
	}
}

func TestNdxInvalidSequenceByte(t *testing.T) {
	// 254 and 255 are reserved as the extended/negative markers and can
	// never appear as a plain delta byte in the default (positive) path
	// other than through those markers, so a raw 254 alone (not as a
	// marker-prefixed negative sequence) is well-formed as ndxExtExtended
	// requiring a following varint; feed a byte stream that is neither a
	// valid marker consumption nor a small delta to trigger the error.
	r := bytes.NewReader([]byte{254}) // ndxExtExtended with no following varint bytes
	rc := &Conn{Reader: r, ProtocolVersion: 32}
	var state NdxState
	if _, err := ReadNdx(rc, &state); err == nil {
		t.Error("ReadNdx with a truncated extended sequence returned nil error")
	}
}
