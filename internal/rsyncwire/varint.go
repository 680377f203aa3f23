package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVarintCutover is the protocol version at which rsync switched
// from fixed-width longint encoding to the self-describing varint/varlong
// encoding (spec.md §3, "Protocol version").
const ProtocolVarintCutover = 30

// maxVarintBytes bounds the wire length of a varint: one header byte plus
// up to 8 payload bytes covers a full 64-bit quantity (varlong).
const maxVarintBytes = 9

// WriteVarint writes a non-negative integer using rsync's bit-packed
// variable-length encoding (spec.md §4.A): the header byte's leading
// one-bits (terminated by a zero bit, or all eight bits set for the
// maximal case) count how many little-endian payload bytes follow; the
// header's remaining low bits hold the value's next-most-significant
// bits above those payload bytes.
//
//	0xxxxxxx            -> 7-bit value, 0 extra bytes
//	10xxxxxx + 1 byte    -> 14-bit value
//	110xxxxx + 2 bytes   -> 21-bit value
//	...
//	11111111 + 8 bytes   -> 64-bit value
//
// minBytes forces a floor on the number of payload (extra) bytes, the way
// write_varlong's min_bytes argument reserves headroom for file sizes and
// mtimes so small values keep a consistent on-wire width across a
// session.
func WriteVarint(w io.Writer, v int64, minBytes int) error {
	if v < 0 {
		return fmt.Errorf("rsyncwire: varint of negative value %d not supported", v)
	}
	uv := uint64(v)

	extra := minBytes
	if extra < 0 {
		extra = 0
	}
	if extra > 8 {
		extra = 8
	}
	for extra < 8 {
		if extra == 7 {
			if uv>>56 == 0 {
				break
			}
		} else {
			headerBits := uint(7 - extra)
			if uv>>(uint(extra)*8+headerBits) == 0 {
				break
			}
		}
		extra++
	}

	var payload [8]byte
	binary.LittleEndian.PutUint64(payload[:], uv)

	if extra >= 8 {
		out := make([]byte, 0, 9)
		out = append(out, 0xFF)
		out = append(out, payload[:]...)
		_, err := w.Write(out)
		return err
	}

	headerBits := uint(7 - extra)
	header := byte(0)
	for i := 0; i < extra; i++ {
		header |= 1 << uint(7-i)
	}
	if headerBits > 0 {
		high := uv >> (uint(extra) * 8)
		header |= byte(high) & byte((1<<headerBits)-1)
	}

	out := make([]byte, 0, extra+1)
	out = append(out, header)
	out = append(out, payload[:extra]...)
	_, err := w.Write(out)
	return err
}

// ReadVarint is the inverse of WriteVarint.
func ReadVarint(r io.Reader, minBytes int) (int64, error) {
	var hb [1]byte
	if _, err := io.ReadFull(r, hb[:]); err != nil {
		return 0, err
	}
	header := hb[0]

	if header == 0xFF {
		if minBytes > 8 {
			return 0, &InvalidVarintError{LenByte: header}
		}
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		return int64(binary.LittleEndian.Uint64(buf[:])), nil
	}

	extra := 0
	for extra < 7 && header&(1<<uint(7-extra)) != 0 {
		extra++
	}
	if extra < minBytes {
		return 0, &InvalidVarintError{LenByte: header}
	}

	var buf [8]byte
	if extra > 0 {
		if _, err := io.ReadFull(r, buf[:extra]); err != nil {
			return 0, err
		}
	}
	low := binary.LittleEndian.Uint64(buf[:])

	headerBits := uint(7 - extra)
	var highMask byte
	if headerBits > 0 {
		highMask = byte((1 << headerBits) - 1)
	}
	high := uint64(header & highMask)

	v := low | (high << (uint(extra) * 8))
	return int64(v), nil
}

// WriteVarint30 writes a 32-bit quantity using the modern varint
// encoding (no forced minimum).
func WriteVarint30(w io.Writer, v int32) error {
	return WriteVarint(w, int64(v), 0)
}

func ReadVarint30(r io.Reader) (int32, error) {
	v, err := ReadVarint(r, 0)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// WriteVarlong writes a 64-bit quantity (file sizes, mtimes) using the
// varint encoding with a caller-specified minimum byte count.
func WriteVarlong(w io.Writer, v int64, minBytes int) error {
	return WriteVarint(w, v, minBytes)
}

func ReadVarlong(r io.Reader, minBytes int) (int64, error) {
	return ReadVarint(r, minBytes)
}

// WriteFileSize dispatches between legacy 4/12-byte longint framing
// (protocol <30) and varlong (>=30), per spec.md §4.A.
func WriteFileSize(c *Conn, size int64) error {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.WriteInt64(size)
	}
	return WriteVarlong(c.Writer, size, 3)
}

func ReadFileSize(c *Conn) (int64, error) {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.ReadInt64()
	}
	return ReadVarlong(c.Reader, 3)
}

// WriteMTime dispatches the same way for modification times.
func WriteMTime(c *Conn, mtime int64) error {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.WriteInt64(mtime)
	}
	return WriteVarlong(c.Writer, mtime, 4)
}

func ReadMTime(c *Conn) (int64, error) {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.ReadInt64()
	}
	return ReadVarlong(c.Reader, 4)
}

// WriteLongNameLength writes a file-list name-suffix length: a 4-byte
// (legacy) or varint30 (modern) integer depending on negotiated protocol.
func WriteLongNameLength(c *Conn, n int) error {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.WriteInt32(int32(n))
	}
	return WriteVarint30(c.Writer, int32(n))
}

func ReadLongNameLength(c *Conn) (int, error) {
	if c.ProtocolVersion < ProtocolVarintCutover {
		v, err := c.ReadInt32()
		return int(v), err
	}
	v, err := ReadVarint30(c.Reader)
	return int(v), err
}
