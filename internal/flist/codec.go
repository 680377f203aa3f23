package flist

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/oferchen/rsync-sub026/internal/rsyncwire"
)

// UnknownXmitFlagError means a decoded flags byte set a bit this
// implementation does not understand.
type UnknownXmitFlagError struct{ Flags uint16 }

func (e *UnknownXmitFlagError) Error() string {
	return fmt.Sprintf("unknown XMIT flag bits: 0x%04x", e.Flags)
}

// ErrEmbeddedNul and ErrSharedPrefixTooLong are decode-time validation
// failures (spec.md §4.C, "Decoding").
var (
	ErrEmbeddedNul         = errors.New("flist: name contains embedded NUL")
	ErrSharedPrefixTooLong = errors.New("flist: shared prefix length exceeds previous name")
	ErrNegativeSize        = errors.New("flist: negative file size")
	ErrNoPreviousEntry     = errors.New("flist: entry reuses a field of a previous entry that does not exist")
)

const knownXmitMask = 0xFFFF // every bit above is defined in entry.go; update together

// Codec encodes/decodes file-list entries against a running "previous
// entry" state, the prefix-compression anchor (spec.md §4.C, "Encoding").
type Codec struct {
	Conn              *rsyncwire.Conn
	PreserveUID       bool
	PreserveGID       bool
	PreserveLinks     bool
	PreserveDevices   bool
	PreserveSpecials  bool
	AlwaysChecksum    bool
	ChecksumLen       int
	SendUIDName       bool // numeric_ids == false
	SendGIDName       bool

	prev *Entry
}

// EncodeEntry writes one entry, prefix-compressed against the codec's
// remembered previous entry, and updates that memory to e.
func (c *Codec) EncodeEntry(e *Entry) error {
	flags, prefixLen, suffix := c.computeFlags(e)

	if flags&0xFF00 != 0 || flags == 0 {
		flags |= XmitExtendedFlags
	}
	if err := c.Conn.WriteByte(byte(flags)); err != nil {
		return err
	}
	if flags&XmitExtendedFlags != 0 {
		if err := c.Conn.WriteByte(byte(flags >> 8)); err != nil {
			return err
		}
	}

	if flags&XmitSameName != 0 {
		if err := c.Conn.WriteByte(byte(prefixLen)); err != nil {
			return err
		}
	}
	if err := rsyncwire.WriteLongNameLength(c.Conn, len(suffix)); err != nil {
		return err
	}
	if err := c.Conn.WriteString(suffix); err != nil {
		return err
	}

	if err := rsyncwire.WriteFileSize(c.Conn, e.Size); err != nil {
		return err
	}
	if flags&XmitSameTime == 0 {
		if err := rsyncwire.WriteMTime(c.Conn, e.MTime); err != nil {
			return err
		}
	}
	if flags&XmitModNsec != 0 {
		if err := rsyncwire.WriteVarint30(c.Conn.Writer, e.MTimeNsec); err != nil {
			return err
		}
	}
	if flags&XmitSameMode == 0 {
		if err := c.Conn.WriteInt32(int32(e.Mode)); err != nil {
			return err
		}
	}
	if c.PreserveUID && flags&XmitSameUID == 0 {
		if err := c.Conn.WriteInt32(int32(e.UID)); err != nil {
			return err
		}
		if flags&XmitUserNameFollows != 0 {
			if err := c.Conn.WriteVString(e.UIDName); err != nil {
				return err
			}
		}
	}
	if c.PreserveGID && flags&XmitSameGID == 0 {
		if err := c.Conn.WriteInt32(int32(e.GID)); err != nil {
			return err
		}
		if flags&XmitGroupNameFollows != 0 {
			if err := c.Conn.WriteVString(e.GIDName); err != nil {
				return err
			}
		}
	}
	if (c.PreserveDevices && e.IsDevice()) || (c.PreserveSpecials && (e.IsFIFO() || e.IsSocket())) {
		if err := c.Conn.WriteInt32(int32(e.RdevMinor)); err != nil {
			return err
		}
		if flags&XmitSameRdevMajor == 0 {
			if err := c.Conn.WriteInt32(int32(e.RdevMajor)); err != nil {
				return err
			}
		}
	}
	if c.PreserveLinks && e.IsSymlink() {
		if err := rsyncwire.WriteLongNameLength(c.Conn, len(e.SymlinkTarget)); err != nil {
			return err
		}
		if err := c.Conn.WriteString(e.SymlinkTarget); err != nil {
			return err
		}
	}
	if flags&XmitHardlinked != 0 && flags&XmitHardlinkFirst == 0 {
		if err := c.Conn.WriteInt32(e.Hardlink.Index); err != nil {
			return err
		}
	}
	if err := rsyncwire.WriteVarint30(c.Conn.Writer, int32(e.XattrNdx)); err != nil {
		return err
	}
	if c.AlwaysChecksum {
		if _, err := c.Conn.Writer.Write(e.Checksum[:c.ChecksumLen]); err != nil {
			return err
		}
	}

	c.prev = e
	return nil
}

// EndOfList writes the zero-flags terminator byte (spec.md §4.C).
func (c *Codec) EndOfList() error {
	return c.Conn.WriteByte(0)
}

// computeFlags derives the XMIT flags, shared-prefix length and name
// suffix for e relative to the codec's previous entry.
func (c *Codec) computeFlags(e *Entry) (flags uint16, prefixLen int, suffix string) {
	prev := c.prev
	if e.Name == "." {
		flags |= XmitTopDir
	}

	if prev != nil {
		prefixLen = commonPrefixLen(prev.Name, e.Name)
		if prefixLen > 255 {
			prefixLen = 255
		}
		if prefixLen > 0 {
			flags |= XmitSameName
		}
		if prev.Mode == e.Mode {
			flags |= XmitSameMode
		}
		if prev.UID == e.UID {
			flags |= XmitSameUID
		}
		if prev.GID == e.GID {
			flags |= XmitSameGID
		}
		if prev.MTime == e.MTime {
			flags |= XmitSameTime
		}
		if prev.RdevMajor == e.RdevMajor {
			flags |= XmitSameRdevMajor
		}
	}
	suffix = e.Name[prefixLen:]
	if len(suffix) > 255 {
		flags |= XmitLongName
	}
	if c.SendUIDName && e.UIDName != "" && flags&XmitSameUID == 0 {
		flags |= XmitUserNameFollows
	}
	if c.SendGIDName && e.GIDName != "" && flags&XmitSameGID == 0 {
		flags |= XmitGroupNameFollows
	}
	if e.Hardlink != nil {
		flags |= XmitHardlinked
		if e.Hardlink.Index < 0 {
			flags |= XmitHardlinkFirst
		}
	}
	if e.MTimeNsec != 0 {
		flags |= XmitModNsec
	}
	return flags, prefixLen, suffix
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// DecodeEntry reads one entry. ok is false (with err == nil) on the
// zero-flags end-of-list terminator.
func (c *Codec) DecodeEntry() (e *Entry, ok bool, err error) {
	flagsLo, err := c.Conn.ReadByte()
	if err != nil {
		return nil, false, err
	}
	flags := uint16(flagsLo)
	if flags == 0 {
		return nil, false, nil
	}
	if flags&XmitExtendedFlags != 0 {
		hi, err := c.Conn.ReadByte()
		if err != nil {
			return nil, false, err
		}
		flags |= uint16(hi) << 8
	}
	if flags&^knownXmitMask != 0 {
		return nil, false, &UnknownXmitFlagError{Flags: flags}
	}
	if c.prev == nil && flags&(XmitSameMode|XmitSameUID|XmitSameGID|XmitSameTime|XmitSameRdevMajor) != 0 {
		return nil, false, ErrNoPreviousEntry
	}

	e = &Entry{}
	prev := c.prev

	prefixLen := 0
	if flags&XmitSameName != 0 {
		b, err := c.Conn.ReadByte()
		if err != nil {
			return nil, false, err
		}
		prefixLen = int(b)
		if prev == nil || prefixLen > len(prev.Name) {
			return nil, false, ErrSharedPrefixTooLong
		}
	}
	suffixLen, err := rsyncwire.ReadLongNameLength(c.Conn)
	if err != nil {
		return nil, false, err
	}
	suffixBytes, err := c.Conn.ReadN(suffixLen)
	if err != nil {
		return nil, false, err
	}
	if bytes.IndexByte(suffixBytes, 0) >= 0 {
		return nil, false, ErrEmbeddedNul
	}
	name := string(suffixBytes)
	if prefixLen > 0 {
		name = prev.Name[:prefixLen] + name
	}
	e.Name = name

	size, err := rsyncwire.ReadFileSize(c.Conn)
	if err != nil {
		return nil, false, err
	}
	if size < 0 {
		return nil, false, ErrNegativeSize
	}
	e.Size = size

	if flags&XmitSameTime != 0 {
		e.MTime = prev.MTime
	} else {
		e.MTime, err = rsyncwire.ReadMTime(c.Conn)
		if err != nil {
			return nil, false, err
		}
	}
	if flags&XmitModNsec != 0 {
		v, err := rsyncwire.ReadVarint30(c.Conn.Reader)
		if err != nil {
			return nil, false, err
		}
		e.MTimeNsec = v
	}
	if flags&XmitSameMode != 0 {
		e.Mode = prev.Mode
	} else {
		v, err := c.Conn.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		e.Mode = uint32(v)
	}
	if c.PreserveUID {
		if flags&XmitSameUID != 0 {
			e.UID, e.UIDName = prev.UID, prev.UIDName
		} else {
			v, err := c.Conn.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			e.UID = uint32(v)
			if flags&XmitUserNameFollows != 0 {
				e.UIDName, err = c.Conn.ReadVString()
				if err != nil {
					return nil, false, err
				}
			}
		}
	}
	if c.PreserveGID {
		if flags&XmitSameGID != 0 {
			e.GID, e.GIDName = prev.GID, prev.GIDName
		} else {
			v, err := c.Conn.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			e.GID = uint32(v)
			if flags&XmitGroupNameFollows != 0 {
				e.GIDName, err = c.Conn.ReadVString()
				if err != nil {
					return nil, false, err
				}
			}
		}
	}
	if (c.PreserveDevices && e.IsDevice()) || (c.PreserveSpecials && (e.IsFIFO() || e.IsSocket())) {
		minor, err := c.Conn.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		e.RdevMinor = uint32(minor)
		if flags&XmitSameRdevMajor != 0 {
			e.RdevMajor = prev.RdevMajor
		} else {
			major, err := c.Conn.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			e.RdevMajor = uint32(major)
		}
	}
	if c.PreserveLinks && e.IsSymlink() {
		n, err := rsyncwire.ReadLongNameLength(c.Conn)
		if err != nil {
			return nil, false, err
		}
		target, err := c.Conn.ReadN(n)
		if err != nil {
			return nil, false, err
		}
		e.SymlinkTarget = string(target)
	}
	if flags&XmitHardlinked != 0 {
		if flags&XmitHardlinkFirst != 0 {
			e.Hardlink = &HardlinkRef{Index: -1}
		} else {
			idx, err := c.Conn.ReadInt32()
			if err != nil {
				return nil, false, err
			}
			e.Hardlink = &HardlinkRef{Index: idx}
		}
	}
	xattrNdx, err := rsyncwire.ReadVarint30(c.Conn.Reader)
	if err != nil {
		return nil, false, err
	}
	e.XattrNdx = uint32(xattrNdx)
	if c.AlwaysChecksum {
		sum, err := c.Conn.ReadN(c.ChecksumLen)
		if err != nil {
			return nil, false, err
		}
		e.Checksum = sum
	}

	c.prev = e
	return e, true, nil
}
