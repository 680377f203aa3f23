package rsyncwire

import (
	"bufio"
	"io"
)

// Sniff peeks at the first byte of r to decide whether the peer is
// speaking the legacy ASCII daemon greeting or binary protocol framing
// (spec.md §4.B, "Prologue sniffer"). It returns a reader that replays the
// peeked byte, so downstream layers see the full, unmodified stream.
//
// br must be a *bufio.Reader (or created here) because Peek needs to work
// against Interrupted-style retries without losing data.
func Sniff(r io.Reader) (br *bufio.Reader, isLegacy bool, err error) {
	br = bufio.NewReaderSize(r, 4096)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if err == io.ErrNoProgress {
				continue
			}
			return br, false, err
		}
		return br, IsLegacyGreetingPrefixByte(b[0]), nil
	}
}
