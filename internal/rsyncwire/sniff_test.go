package rsyncwire

import (
	"bytes"
	"io"
	"testing"
)

func TestSniffLegacy(t *testing.T) {
	input := []byte("@RSYNCD: 31.0\nrest of stream")
	br, isLegacy, err := Sniff(bytes.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if !isLegacy {
		t.Error("Sniff reported isLegacy=false for an @RSYNCD greeting")
	}
	got, err := io.ReadAll(br)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, input) {
		t.Errorf("Sniff consumed bytes from the stream: got %q, want %q", got, input)
	}
}

func TestSniffBinary(t *testing.T) {
	input := []byte{0x00, 0x01, 0x02, 0x03}
	br, isLegacy, err := Sniff(bytes.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if isLegacy {
		t.Error("Sniff reported isLegacy=true for a non-greeting binary stream")
	}
	got, err := io.ReadAll(br)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, input) {
		t.Errorf("Sniff consumed bytes from the stream: got %v, want %v", got, input)
	}
}

func TestSniffEmptyStream(t *testing.T) {
	_, _, err := Sniff(bytes.NewReader(nil))
	if err == nil {
		t.Error("Sniff on an empty stream returned nil error, want io.EOF")
	}
}
