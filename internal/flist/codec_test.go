package flist

import (
	"bytes"
	"testing"

	"github.com/oferchen/rsync-sub026/internal/rsyncwire"
)

func roundTrip(t *testing.T, encodeOpts, decodeOpts Codec, entries []*Entry) []*Entry {
	t.Helper()
	var buf bytes.Buffer
	enc := encodeOpts
	enc.Conn = &rsyncwire.Conn{Writer: &buf, ProtocolVersion: 32}
	for _, e := range entries {
		if err := enc.EncodeEntry(e); err != nil {
			t.Fatalf("EncodeEntry(%+v): %v", e, err)
		}
	}
	if err := enc.EndOfList(); err != nil {
		t.Fatal(err)
	}

	dec := decodeOpts
	dec.Conn = &rsyncwire.Conn{Reader: bytes.NewReader(buf.Bytes()), ProtocolVersion: 32}
	var got []*Entry
	for {
		e, ok, err := dec.DecodeEntry()
		if err != nil {
			t.Fatalf("DecodeEntry: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, e)
	}
	if len(got) != len(entries) {
		t.Fatalf("decoded %d entries, want %d", len(got), len(entries))
	}
	return got
}

func TestCodecRoundTripBasic(t *testing.T) {
	entries := []*Entry{
		{Name: ".", Size: 0, MTime: 1000, Mode: 0o040755},
		{Name: "dir/a", Size: 100, MTime: 1000, Mode: 0o100644, UID: 1000, GID: 1000},
		{Name: "dir/ab", Size: 200, MTime: 2000, Mode: 0o100644, UID: 1000, GID: 1000},
		{Name: "dir/b", Size: 50, MTime: 2000, Mode: 0o100600, UID: 0, GID: 0},
	}
	opts := Codec{PreserveUID: true, PreserveGID: true}
	got := roundTrip(t, opts, opts, entries)
	for i, e := range entries {
		g := got[i]
		if g.Name != e.Name || g.Size != e.Size || g.MTime != e.MTime || g.Mode != e.Mode || g.UID != e.UID || g.GID != e.GID {
			t.Errorf("entry %d: got %+v, want %+v", i, g, e)
		}
	}
}

func TestCodecSameNamePrefixCompression(t *testing.T) {
	// "dir/aaaa" followed by "dir/aaab" shares a 7-byte prefix, exercising
	// the XmitSameName path explicitly rather than just trusting the
	// round trip above to happen to take it.
	entries := []*Entry{
		{Name: "dir/aaaa", Mode: 0o100644},
		{Name: "dir/aaab", Mode: 0o100644},
	}
	opts := Codec{}
	got := roundTrip(t, opts, opts, entries)
	if got[1].Name != "dir/aaab" {
		t.Errorf("second entry name = %q, want %q", got[1].Name, "dir/aaab")
	}
}

func TestCodecSymlink(t *testing.T) {
	entries := []*Entry{
		{Name: "link", Mode: 0o120777, SymlinkTarget: "target/path"},
	}
	opts := Codec{PreserveLinks: true}
	got := roundTrip(t, opts, opts, entries)
	if got[0].SymlinkTarget != "target/path" {
		t.Errorf("SymlinkTarget = %q, want %q", got[0].SymlinkTarget, "target/path")
	}
}

func TestCodecHardlink(t *testing.T) {
	entries := []*Entry{
		{Name: "first", Mode: 0o100644, Hardlink: &HardlinkRef{Index: -1}},
		{Name: "second", Mode: 0o100644, Hardlink: &HardlinkRef{Index: 0}},
	}
	opts := Codec{}
	got := roundTrip(t, opts, opts, entries)
	if got[0].Hardlink == nil || got[0].Hardlink.Index != -1 {
		t.Errorf("first entry Hardlink = %+v, want Index -1", got[0].Hardlink)
	}
	if got[1].Hardlink == nil || got[1].Hardlink.Index != 0 {
		t.Errorf("second entry Hardlink = %+v, want Index 0", got[1].Hardlink)
	}
}

func TestCodecEmbeddedNul(t *testing.T) {
	var buf bytes.Buffer
	conn := &rsyncwire.Conn{Writer: &buf, ProtocolVersion: 32}
	conn.WriteByte(1) // XmitTopDir only, no extended byte
	rsyncwire.WriteLongNameLength(conn, 1)
	conn.WriteString("\x00")

	dec := Codec{Conn: &rsyncwire.Conn{Reader: bytes.NewReader(buf.Bytes()), ProtocolVersion: 32}}
	_, _, err := dec.DecodeEntry()
	if err != ErrEmbeddedNul {
		t.Errorf("got error %v, want ErrEmbeddedNul", err)
	}
}

func TestCodecDeviceAndChecksum(t *testing.T) {
	entries := []*Entry{
		{Name: "dev1", Mode: 0o020644, RdevMajor: 8, RdevMinor: 1, Checksum: bytes.Repeat([]byte{0xAB}, 16)},
		{Name: "dev2", Mode: 0o020644, RdevMajor: 8, RdevMinor: 2, Checksum: bytes.Repeat([]byte{0xCD}, 16)},
	}
	opts := Codec{PreserveDevices: true, AlwaysChecksum: true, ChecksumLen: 16}
	got := roundTrip(t, opts, opts, entries)
	for i, e := range entries {
		g := got[i]
		if g.RdevMajor != e.RdevMajor || g.RdevMinor != e.RdevMinor {
			t.Errorf("entry %d: rdev = (%d,%d), want (%d,%d)", i, g.RdevMajor, g.RdevMinor, e.RdevMajor, e.RdevMinor)
		}
		if !bytes.Equal(g.Checksum, e.Checksum) {
			t.Errorf("entry %d: checksum = % x, want % x", i, g.Checksum, e.Checksum)
		}
	}
}

func TestCodecEndOfListSentinel(t *testing.T) {
	var buf bytes.Buffer
	enc := Codec{Conn: &rsyncwire.Conn{Writer: &buf, ProtocolVersion: 32}}
	if err := enc.EndOfList(); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.Bytes(), []byte{0}; !bytes.Equal(got, want) {
		t.Errorf("EndOfList wrote % x, want % x", got, want)
	}
	dec := Codec{Conn: &rsyncwire.Conn{Reader: bytes.NewReader(buf.Bytes()), ProtocolVersion: 32}}
	_, ok, err := dec.DecodeEntry()
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("DecodeEntry on empty-flags terminator returned ok=true")
	}
}

func FuzzCodecDecodeEntryNoPanic(f *testing.F) {
	f.Add([]byte{0})
	f.Add([]byte{1, 0, 0})
	f.Add([]byte{byte(XmitExtendedFlags), 0xFF, 0})
	f.Fuzz(func(t *testing.T, b []byte) {
		dec := Codec{Conn: &rsyncwire.Conn{Reader: bytes.NewReader(b), ProtocolVersion: 32}}
		_, _, _ = dec.DecodeEntry()
	})
}
