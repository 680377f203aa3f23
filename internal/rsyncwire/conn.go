package rsyncwire

import (
	"encoding/binary"
	"io"
)

// Conn is a thin framing-agnostic read/write pair over the transport. The
// caller decides when to switch Writer to a *MultiplexWriter (after the
// handshake) and when to run Reader through a *MultiplexReader.
type Conn struct {
	Reader io.Reader
	Writer io.Writer

	// ProtocolVersion gates which integer encoding WriteVarint/ReadVarint
	// style helpers use. It is set once, immediately after negotiation,
	// and never re-read inside hot loops.
	ProtocolVersion int32
}

func (c *Conn) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (c *Conn) WriteByte(b byte) error {
	_, err := c.Writer.Write([]byte{b})
	return err
}

func (c *Conn) ReadInt32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

func (c *Conn) WriteInt32(v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

// WriteInt32BE writes a big-endian 32-bit integer, used for the binary
// protocol-version handshake (spec.md §6.2).
func (c *Conn) WriteInt32BE(v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

func (c *Conn) ReadInt32BE() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// ReadInt64 implements the legacy rsync "longint" encoding used for
// file sizes and mtimes on protocol <30: a 32-bit value, or -1 followed
// by a 64-bit value when the quantity doesn't fit in 31 bits.
func (c *Conn) ReadInt64() (int64, error) {
	v, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	if v != -1 {
		return int64(v), nil
	}
	var buf [8]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func (c *Conn) WriteInt64(v int64) error {
	if v >= 0 && v <= 0x7FFFFFFF {
		return c.WriteInt32(int32(v))
	}
	if err := c.WriteInt32(-1); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

func (c *Conn) WriteString(s string) error {
	_, err := io.WriteString(c.Writer, s)
	return err
}

func (c *Conn) ReadN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// vstring is the length-prefixed string used for capability negotiation
// (1-byte length + bytes), spec.md §4.B.
func (c *Conn) ReadVString() (string, error) {
	n, err := c.ReadByte()
	if err != nil {
		return "", err
	}
	buf, err := c.ReadN(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (c *Conn) WriteVString(s string) error {
	if len(s) > 0xff {
		return &InvalidVarintError{LenByte: 0xff}
	}
	if err := c.WriteByte(byte(len(s))); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	return c.WriteString(s)
}
