package rsyncwire

import "io"

// NDX sentinel values (spec.md §3, "NDX value").
const (
	NdxDone        int32 = -1
	NdxFlistEOF    int32 = -2
	NdxDelStats    int32 = -3
	NdxFlistOffset int32 = -101
)

// NdxState tracks the two running deltas (one for non-negative indexes,
// one for negative/sentinel indexes) that the modern NDX codec uses to
// keep the common case down to a couple of bytes.
type NdxState struct {
	PrevPositive int32
	PrevNegative int32
}

// WriteNdx writes a file-list index, dispatching between the legacy
// 4-byte little-endian form (protocol <30) and the modern delta-coded
// form (>=30).
func WriteNdx(c *Conn, state *NdxState, ndx int32) error {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.WriteInt32(ndx)
	}
	return writeNdxModern(c.Writer, state, ndx)
}

func ReadNdx(c *Conn, state *NdxState) (int32, error) {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.ReadInt32()
	}
	return readNdxModern(c.Reader, state)
}

// WriteNdxDone/WriteNdxFlistEOF write the sentinel values directly
// without touching codec state (they are special-cased single bytes in
// the modern encoding).
func WriteNdxDone(c *Conn) error {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.WriteInt32(NdxDone)
	}
	return c.WriteByte(0x00)
}

func WriteNdxFlistEOF(c *Conn, state *NdxState) error {
	if c.ProtocolVersion < ProtocolVarintCutover {
		return c.WriteInt32(NdxFlistEOF)
	}
	return writeNdxModern(c.Writer, state, NdxFlistEOF)
}

const (
	ndxExtDone     = 0x00
	ndxExtExtended = 0xFE
	ndxExtNegative = 0xFF
)

// writeNdxModern implements the delta encoding described in spec.md §3:
// single-byte fast path for small positive deltas (1..=253), extension
// prefixes for DONE/extended/negative.
func writeNdxModern(w io.Writer, state *NdxState, ndx int32) error {
	if ndx == NdxDone {
		_, err := w.Write([]byte{ndxExtDone})
		return err
	}

	var prev *int32
	var sign byte
	if ndx >= 0 {
		prev = &state.PrevPositive
		sign = 0
	} else {
		prev = &state.PrevNegative
		sign = ndxExtNegative
	}

	delta := ndx - *prev
	if sign == ndxExtNegative {
		delta = -delta
	}
	*prev = ndx

	if sign == ndxExtNegative {
		if _, err := w.Write([]byte{ndxExtNegative}); err != nil {
			return err
		}
	}

	if delta >= 1 && delta <= 253 {
		_, err := w.Write([]byte{byte(delta)})
		return err
	}

	if _, err := w.Write([]byte{ndxExtExtended}); err != nil {
		return err
	}
	return WriteVarint30(w, delta)
}

func readNdxModern(r io.Reader, state *NdxState) (int32, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	switch b[0] {
	case ndxExtDone:
		return NdxDone, nil
	case ndxExtNegative:
		var b2 [1]byte
		if _, err := io.ReadFull(r, b2[:]); err != nil {
			return 0, err
		}
		var delta int32
		if b2[0] == ndxExtExtended {
			v, err := ReadVarint30(r)
			if err != nil {
				return 0, err
			}
			delta = v
		} else if b2[0] >= 1 && b2[0] <= 253 {
			delta = int32(b2[0])
		} else {
			return 0, &InvalidNdxSequenceError{Byte: b2[0]}
		}
		ndx := state.PrevNegative - delta
		state.PrevNegative = ndx
		return ndx, nil
	case ndxExtExtended:
		delta, err := ReadVarint30(r)
		if err != nil {
			return 0, err
		}
		ndx := state.PrevPositive + delta
		state.PrevPositive = ndx
		return ndx, nil
	default:
		if b[0] < 1 || b[0] > 253 {
			return 0, &InvalidNdxSequenceError{Byte: b[0]}
		}
		ndx := state.PrevPositive + int32(b[0])
		state.PrevPositive = ndx
		return ndx, nil
	}
}
