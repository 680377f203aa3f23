// Package negotiate implements the version and capability negotiation
// state machine described in spec.md §4.B: version selection over the
// mutually supported set, compatibility-flag exchange for protocol >=30,
// and digest/compression algorithm preference negotiation.
package negotiate

import (
	"fmt"
	"slices"
	"sort"

	"github.com/oferchen/rsync-sub026"
	"github.com/oferchen/rsync-sub026/internal/rsyncwire"
)

// NoMutualProtocolError means the peer's advertised version set has no
// overlap with {28..32}.
type NoMutualProtocolError struct {
	PeerVersions []int32
}

func (e *NoMutualProtocolError) Error() string {
	return fmt.Sprintf("no mutual protocol version with peer (peer advertised %v)", e.PeerVersions)
}

// UnsupportedVersionError means a peer advertised a version outside the
// plausible 0..255 range.
type UnsupportedVersionError struct {
	Version int32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported protocol version: %d", e.Version)
}

// CompatFlagsDisagreementError means SAFE_FLIST was required (protocol
// >=31) but absent from the intersected flag set.
type CompatFlagsDisagreementError struct{}

func (e *CompatFlagsDisagreementError) Error() string {
	return "compatibility flags disagreement: SAFE_FLIST required from protocol 31 but not negotiated"
}

// SelectVersion picks min(localNewest, peerNewest), failing if the result
// falls outside the mutually supported set. Symmetric: SelectVersion(a,
// b) == SelectVersion(b, a).
func SelectVersion(localNewest, peerNewest int32) (int32, error) {
	if peerNewest < 0 || peerNewest > 255 {
		return 0, &UnsupportedVersionError{Version: peerNewest}
	}
	chosen := localNewest
	if peerNewest < chosen {
		chosen = peerNewest
	}
	if chosen < rsync.MinProtocolVersion || chosen > rsync.MaxProtocolVersion {
		return 0, &NoMutualProtocolError{PeerVersions: []int32{peerNewest}}
	}
	return chosen, nil
}

// NegotiateBinary performs the binary version handshake: write our
// newest version (big-endian u32), read the peer's, and pick the
// minimum. Symmetric regardless of who calls first, as long as one side
// writes then reads and the other reads then writes (the caller decides
// ordering based on its role).
func NegotiateBinary(c *rsyncwire.Conn, localNewest int32, writeFirst bool) (int32, error) {
	if writeFirst {
		if err := c.WriteInt32BE(localNewest); err != nil {
			return 0, err
		}
	}
	peer, err := c.ReadInt32BE()
	if err != nil {
		return 0, err
	}
	if !writeFirst {
		if err := c.WriteInt32BE(localNewest); err != nil {
			return 0, err
		}
	}
	return SelectVersion(localNewest, peer)
}

// localCompatFlags is the full set of flags this implementation
// understands and may advertise.
func localCompatFlags(version int32) rsync.CompatFlag {
	flags := rsync.CompatIncRecurse | rsync.CompatSymlinkTimes | rsync.CompatSymlinkIconv | rsync.CompatAvoidXattrOptim
	if version >= 31 {
		flags |= rsync.CompatSafeFList
	}
	if version >= 32 {
		flags |= rsync.CompatFixedChecksumSeed | rsync.CompatID0Names
	}
	return flags
}

// ExchangeCompatFlags writes our understood flags and reads the peer's,
// intersecting (never merging, per spec.md §9) and unknown bits are
// always cleared from both sides via rsync.KnownFlags. The write runs
// concurrently with the read, so neither side has to go first.
func ExchangeCompatFlags(c *rsyncwire.Conn, version int32) (rsync.CompatFlag, error) {
	local := localCompatFlags(version)
	werr := make(chan error, 1)
	go func() { werr <- rsyncwire.WriteVarint30(c.Writer, int32(local)) }()
	peerRaw, err := rsyncwire.ReadVarint30(c.Reader)
	if err != nil {
		return 0, err
	}
	if err := <-werr; err != nil {
		return 0, err
	}
	effective := rsync.KnownFlags(local) & rsync.KnownFlags(rsync.CompatFlag(peerRaw))
	if version >= 31 && effective&rsync.CompatSafeFList == 0 {
		return 0, &CompatFlagsDisagreementError{}
	}
	if version < 32 {
		// FIXED_CHECKSUM_SEED is only honored from protocol 32 per
		// spec.md §9 Open Question (1): upstream's own behavior below
		// that version is ambiguous, so this implementation never acts
		// on the flag before 32 regardless of what was negotiated.
		effective &^= rsync.CompatFixedChecksumSeed
	}
	return effective, nil
}

// DigestAlgo and CompressAlgo name the negotiable algorithms, ordered
// from most to least preferred (spec.md §4.B, "Capability algorithm
// negotiation").
type DigestAlgo string

const (
	DigestXXH3_128 DigestAlgo = "xxh3_128"
	DigestXXH3     DigestAlgo = "xxh3"
	DigestXXH64    DigestAlgo = "xxh64"
	DigestSHA512   DigestAlgo = "sha512"
	DigestSHA256   DigestAlgo = "sha256"
	DigestMD5      DigestAlgo = "md5"
	DigestMD4      DigestAlgo = "md4"
)

var digestPreference = []DigestAlgo{
	DigestXXH3_128, DigestXXH3, DigestXXH64, DigestSHA512, DigestSHA256, DigestMD5, DigestMD4,
}

type CompressAlgo string

const (
	CompressZstd  CompressAlgo = "zstd"
	CompressLZ4   CompressAlgo = "lz4"
	CompressZlibX CompressAlgo = "zlibx"
	CompressZlib  CompressAlgo = "zlib"
	CompressNone  CompressAlgo = "none"
)

var compressPreference = []CompressAlgo{
	CompressZstd, CompressLZ4, CompressZlibX, CompressZlib, CompressNone,
}

// pickPreferred returns the first entry of preference that also appears
// in offered, or "" if there is no overlap.
func pickPreferred[T ~string](preference []T, offered []T) T {
	offeredSet := make(map[T]bool, len(offered))
	for _, o := range offered {
		offeredSet[o] = true
	}
	for _, p := range preference {
		if offeredSet[p] {
			return p
		}
	}
	var zero T
	return zero
}

// NegotiateDigest sends our preference list (vstring, comma-separated)
// and returns the choice the other side replies with, mirroring the
// client/server roles used for capability negotiation (spec.md §4.B).
// isClient selects which half sends the list first. The server picks the
// most preferred algorithm present in both its own and the client's list,
// or "" when they share none.
func NegotiateDigest(c *rsyncwire.Conn, available []DigestAlgo, isClient bool) (DigestAlgo, error) {
	chosen, err := negotiateList(c, stringsOf(available), isClient, func(offered []string) string {
		var avail []DigestAlgo
		for _, s := range offered {
			if slices.Contains(available, DigestAlgo(s)) {
				avail = append(avail, DigestAlgo(s))
			}
		}
		return string(pickPreferred(digestPreference, avail))
	})
	return DigestAlgo(chosen), err
}

func NegotiateCompress(c *rsyncwire.Conn, available []CompressAlgo, isClient bool) (CompressAlgo, error) {
	chosen, err := negotiateList(c, stringsOf(available), isClient, func(offered []string) string {
		var avail []CompressAlgo
		for _, s := range offered {
			if slices.Contains(available, CompressAlgo(s)) {
				avail = append(avail, CompressAlgo(s))
			}
		}
		return string(pickPreferred(compressPreference, avail))
	})
	return CompressAlgo(chosen), err
}

func stringsOf[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	sort.Strings(out) // deterministic wire order
	return out
}

// negotiateList implements the common shape: the client sends a
// comma-joined vstring of what it supports, the server picks (using
// pick) and replies with its own vstring choice.
func negotiateList(c *rsyncwire.Conn, mine []string, isClient bool, pick func(offered []string) string) (string, error) {
	joined := joinCommas(mine)
	if isClient {
		if err := c.WriteVString(joined); err != nil {
			return "", err
		}
		return c.ReadVString()
	}
	offeredStr, err := c.ReadVString()
	if err != nil {
		return "", err
	}
	choice := pick(splitCommas(offeredStr))
	if err := c.WriteVString(choice); err != nil {
		return "", err
	}
	return choice, nil
}

func joinCommas(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

func splitCommas(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
