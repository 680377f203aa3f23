package delta

import (
	"github.com/oferchen/rsync-sub026/internal/checksum"
	"github.com/oferchen/rsync-sub026/internal/rollsum"
)

// Generate diffs target against the basis file's signature, producing a
// token stream of literal runs and block matches (spec.md §4.D,
// "Generation"). It operates on a fully-buffered target because the
// rolling window must be able to look arbitrarily far back within a
// single literal run before flushing it.
func Generate(target []byte, m *checksum.Matcher, blockLength int32) []Token {
	var tokens []Token
	var literal []byte

	n := len(target)
	pos := 0
	for pos < n {
		winLen := int(blockLength)
		if pos+winLen > n {
			winLen = n - pos
		}
		window := target[pos : pos+winLen]
		weak := rollsum.Checksum(window)

		if idx, ok := m.Match(weak, window); ok {
			if len(literal) > 0 {
				tokens = append(tokens, Token{Literal: literal})
				literal = nil
			}
			tokens = append(tokens, Token{Match: true, BlockIndex: idx})
			pos += int(m.BlockSize(idx))
			continue
		}

		literal = append(literal, target[pos])
		pos++
	}
	if len(literal) > 0 {
		tokens = append(tokens, Token{Literal: literal})
	}
	tokens = append(tokens, Token{})
	return tokens
}

// StreamGenerate writes tokens directly to w as they are produced instead
// of returning a slice, used by the sender so large files don't require
// materializing the whole token stream before any bytes are flushed.
func StreamGenerate(w Writer, target []byte, m *checksum.Matcher, blockLength int32) error {
	var literal []byte
	flush := func() error {
		if len(literal) == 0 {
			return nil
		}
		if err := WriteToken(w, Token{Literal: literal}); err != nil {
			return err
		}
		literal = nil
		return nil
	}

	n := len(target)
	pos := 0
	for pos < n {
		winLen := int(blockLength)
		if pos+winLen > n {
			winLen = n - pos
		}
		window := target[pos : pos+winLen]
		weak := rollsum.Checksum(window)

		if idx, ok := m.Match(weak, window); ok {
			if err := flush(); err != nil {
				return err
			}
			if err := WriteToken(w, Token{Match: true, BlockIndex: idx}); err != nil {
				return err
			}
			pos += int(m.BlockSize(idx))
			continue
		}

		literal = append(literal, target[pos])
		pos++
	}
	if err := flush(); err != nil {
		return err
	}
	return WriteToken(w, Token{})
}
