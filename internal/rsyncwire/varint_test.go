package rsyncwire

import (
	"bytes"
	"testing"
)

func TestWriteVarintKnownVectors(t *testing.T) {
	for _, tt := range []struct {
		v    int64
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{0x7f, []byte{0x7f}},
		{0x80, []byte{0x80, 0x80}},
		{0x3fff, []byte{0xbf, 0xff}},
		{0x4000, []byte{0xc0, 0x00, 0x40}},
	} {
		var buf bytes.Buffer
		if err := WriteVarint(&buf, tt.v, 0); err != nil {
			t.Fatalf("WriteVarint(%d): %v", tt.v, err)
		}
		if !bytes.Equal(buf.Bytes(), tt.want) {
			t.Errorf("WriteVarint(%d) = % x, want % x", tt.v, buf.Bytes(), tt.want)
		}
	}
}

func TestVarintHeaderShape(t *testing.T) {
	// Verify the leading-one-bits-count-the-payload shape spec.md §4.A
	// describes, across the width boundaries.
	for _, tt := range []struct {
		v        int64
		extra    int
		topBits  byte
		topMask  byte
	}{
		{0x7f, 0, 0x00, 0x80},       // 0xxxxxxx
		{0x3fff, 1, 0x80, 0xc0},     // 10xxxxxx
		{0x1fffff, 2, 0xc0, 0xe0},   // 110xxxxx
		{0x0fffffff, 3, 0xe0, 0xf0}, // 1110xxxx
	} {
		var buf bytes.Buffer
		if err := WriteVarint(&buf, tt.v, 0); err != nil {
			t.Fatalf("WriteVarint(%#x): %v", tt.v, err)
		}
		got := buf.Bytes()
		if len(got) != tt.extra+1 {
			t.Fatalf("WriteVarint(%#x): got %d bytes, want %d", tt.v, len(got), tt.extra+1)
		}
		if got[0]&tt.topMask != tt.topBits {
			t.Errorf("WriteVarint(%#x): header %#08b, want top bits %#08b masked by %#08b", tt.v, got[0], tt.topBits, tt.topMask)
		}
	}
}

func TestVarintMaximalCase(t *testing.T) {
	var buf bytes.Buffer
	v := int64(1)<<62 + 12345
	if err := WriteVarint(&buf, v, 0); err != nil {
		t.Fatal(err)
	}
	got := buf.Bytes()
	if len(got) != 9 || got[0] != 0xFF {
		t.Fatalf("WriteVarint(%d) = % x, want 9 bytes starting with 0xff", v, got)
	}
	rt, err := ReadVarint(bytes.NewReader(got), 0)
	if err != nil {
		t.Fatal(err)
	}
	if rt != v {
		t.Errorf("round trip = %d, want %d", rt, v)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []int64{
		0, 1, 2, 0x7f, 0x80, 0xff, 0x100,
		0x3fff, 0x4000, 0x1fffff, 0x200000,
		0x0fffffff, 0x10000000,
		1<<32 - 1, 1 << 32, 1 << 40, 1<<63 - 1,
	}
	for _, minBytes := range []int{0, 3, 4} {
		for _, v := range values {
			var buf bytes.Buffer
			if err := WriteVarint(&buf, v, minBytes); err != nil {
				t.Fatalf("WriteVarint(%d, min=%d): %v", v, minBytes, err)
			}
			got, err := ReadVarint(bytes.NewReader(buf.Bytes()), minBytes)
			if err != nil {
				t.Fatalf("ReadVarint(%d, min=%d): %v", v, minBytes, err)
			}
			if got != v {
				t.Errorf("round trip of %d (min=%d) = %d", v, minBytes, got)
			}
		}
	}
}

func TestVarintMinBytesFloor(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVarint(&buf, 1, 3); err != nil {
		t.Fatal(err)
	}
	if got, want := len(buf.Bytes()), 4; got != want {
		t.Fatalf("WriteVarint(1, min=3) wrote %d bytes, want %d", got, want)
	}
	got, err := ReadVarint(bytes.NewReader(buf.Bytes()), 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("got %d, want 1", got)
	}
}

func TestWriteVarintRejectsNegative(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVarint(&buf, -1, 0); err == nil {
		t.Fatal("expected error writing a negative varint, got nil")
	}
}

func TestReadVarintTruncated(t *testing.T) {
	// Header claims two extra bytes but only one follows.
	if _, err := ReadVarint(bytes.NewReader([]byte{0xc0, 0x01}), 0); err == nil {
		t.Fatal("expected error for truncated varint payload")
	}
}

func TestReadVarintBelowMinBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVarint(&buf, 1, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadVarint(bytes.NewReader(buf.Bytes()), 3); err == nil {
		t.Fatal("expected InvalidVarintError when header's extra-byte count is below minBytes")
	}
}

func TestFileSizeMTimeRoundTrip(t *testing.T) {
	c := &Conn{ProtocolVersion: 32}
	var buf bytes.Buffer
	c.Writer = &buf
	for _, size := range []int64{0, 1, 1024, 1 << 40} {
		buf.Reset()
		if err := WriteFileSize(c, size); err != nil {
			t.Fatal(err)
		}
		c.Reader = bytes.NewReader(buf.Bytes())
		got, err := ReadFileSize(c)
		if err != nil {
			t.Fatal(err)
		}
		if got != size {
			t.Errorf("file size round trip: got %d, want %d", got, size)
		}
	}

	c.ProtocolVersion = 29
	for _, mtime := range []int64{0, 1257890400, 1 << 33} {
		buf.Reset()
		c.Writer = &buf
		if err := WriteMTime(c, mtime); err != nil {
			t.Fatal(err)
		}
		c.Reader = bytes.NewReader(buf.Bytes())
		got, err := ReadMTime(c)
		if err != nil {
			t.Fatal(err)
		}
		if got != mtime {
			t.Errorf("legacy mtime round trip: got %d, want %d", got, mtime)
		}
	}
}

func FuzzVarintRoundTrip(f *testing.F) {
	f.Add(int64(0), 0)
	f.Add(int64(0x7f), 0)
	f.Add(int64(0x80), 0)
	f.Add(int64(1)<<40, 0)
	f.Add(int64(-1), 3)
	f.Fuzz(func(t *testing.T, v int64, minBytes int) {
		if v < 0 {
			return
		}
		if minBytes < 0 || minBytes > 8 {
			return
		}
		var buf bytes.Buffer
		if err := WriteVarint(&buf, v, minBytes); err != nil {
			return
		}
		got, err := ReadVarint(bytes.NewReader(buf.Bytes()), minBytes)
		if err != nil {
			t.Fatalf("ReadVarint after successful WriteVarint(%d, %d): %v", v, minBytes, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: wrote %d, read %d", v, got)
		}
	})
}

func FuzzReadVarintNoPanic(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add([]byte{0xff})
	f.Add([]byte{0xff, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})
	f.Add([]byte{0xc0})
	f.Add([]byte{0xc0, 0x01})
	f.Fuzz(func(t *testing.T, b []byte) {
		// Must never panic, and must return a typed error on any
		// malformed input rather than a garbage value.
		_, _ = ReadVarint(bytes.NewReader(b), 0)
	})
}
