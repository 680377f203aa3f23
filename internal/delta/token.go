// Package delta implements the token stream that describes how to
// reconstruct a target file from a basis file plus literal data: a
// sequence of matched-block references and literal runs, generated by
// diffing against a Signature and applied by replaying it against the
// basis (spec.md §4.D, "Delta token stream").
package delta

// Token is one entry of the wire token stream. A token with Match == false
// and an empty Literal marks end-of-stream (see End).
type Token struct {
	// Literal, when non-nil, is a run of bytes to copy verbatim into the
	// output (not present anywhere in the basis).
	Literal []byte

	// Match, when true, means "copy BlockIndex's bytes from the basis
	// file"; BlockIndex indexes into the Signature the delta was
	// generated against.
	Match      bool
	BlockIndex int32
}

// End reports whether this token is the end-of-stream marker.
func (t Token) End() bool {
	return !t.Match && len(t.Literal) == 0
}

// Writer and Reader encode/decode the wire form of a token stream:
//
//	int32 n:
//	  n == 0            -> end of stream
//	  n  > 0             -> n literal bytes follow
//	  n  < 0             -> match, block index is -(n+1)
//
// (spec.md §4.D, "Token wire format"; the sign-biased encoding is how
// upstream distinguishes a literal-length of zero, which cannot occur,
// from a match against block 0.)
type Writer interface {
	WriteInt32(int32) error
	Write([]byte) (int, error)
}

type Reader interface {
	ReadInt32() (int32, error)
	ReadN(n int) ([]byte, error)
}

// WriteToken writes one token using the sign-biased int32 framing.
func WriteToken(w Writer, t Token) error {
	if t.End() {
		return w.WriteInt32(0)
	}
	if t.Match {
		return w.WriteInt32(-(t.BlockIndex + 1))
	}
	if err := w.WriteInt32(int32(len(t.Literal))); err != nil {
		return err
	}
	_, err := w.Write(t.Literal)
	return err
}

// ReadToken reads one token. The returned Token's End() is true at
// end-of-stream.
func ReadToken(r Reader) (Token, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return Token{}, err
	}
	if n == 0 {
		return Token{}, nil
	}
	if n < 0 {
		return Token{Match: true, BlockIndex: -(n + 1)}, nil
	}
	data, err := r.ReadN(int(n))
	if err != nil {
		return Token{}, err
	}
	return Token{Literal: data}, nil
}
