// Package strongsum implements the strong-checksum algorithm registry
// used for block signatures and whole-file verification: MD4 (the
// historical default, seeded), MD5, SHA-256, SHA-512 and the xxHash
// family offered during capability negotiation (spec.md §4.B, "Capability
// algorithm negotiation"; §4.D, "Strong digest").
package strongsum

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"

	"github.com/cespare/xxhash/v2"
	"github.com/mmcloughlin/md4"
	"github.com/zeebo/xxh3"
)

// Algo names a strong-checksum algorithm, matching the wire names used by
// internal/negotiate.DigestAlgo.
type Algo string

const (
	MD4     Algo = "md4"
	MD5     Algo = "md5"
	SHA256  Algo = "sha256"
	SHA512  Algo = "sha512"
	XXH64   Algo = "xxh64"
	XXH3    Algo = "xxh3"
	XXH3_128 Algo = "xxh3_128"
)

// Size returns the full digest length in bytes for algo.
func Size(algo Algo) int {
	switch algo {
	case MD4:
		return md4.Size
	case MD5:
		return md5.Size
	case SHA256:
		return sha256.Size
	case SHA512:
		return sha512.Size
	case XXH64:
		return 8
	case XXH3:
		return 8
	case XXH3_128:
		return 16
	default:
		return 0
	}
}

// UnknownAlgoError is returned by New for an Algo not in this registry.
type UnknownAlgoError struct{ Algo Algo }

func (e *UnknownAlgoError) Error() string { return "strongsum: unknown algorithm " + string(e.Algo) }

// New constructs a fresh hash.Hash for algo, pre-seeded with seed (the
// session checksum seed, little-endian, per spec.md §3 "Checksum seed").
// Algorithms that don't accept seeding (the xxHash family has no
// rsync-defined seed convention) ignore seed.
func New(algo Algo, seed int32) (hash.Hash, error) {
	switch algo {
	case MD4:
		h := md4.New()
		writeSeedLE(h, seed)
		return h, nil
	case MD5:
		h := md5.New()
		writeSeedLE(h, seed)
		return h, nil
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	case XXH64:
		return xxhash.New(), nil
	default:
		return nil, &UnknownAlgoError{Algo: algo}
	}
}

func writeSeedLE(h hash.Hash, seed int32) {
	if seed == 0 {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(seed))
	h.Write(buf[:])
}

// Sum128 computes an xxh3_128 digest in one shot; xxh3/xxh3_128 have no
// incremental seed convention in this implementation so they are
// exercised through one-shot helpers rather than hash.Hash.
func Sum128(data []byte) [16]byte {
	return xxh3.Hash128(data).Bytes()
}

func Sum64XXH3(data []byte) uint64 {
	return xxh3.Hash(data)
}

// Sum computes a one-shot digest for algo over data, seeded the same way
// New does for incremental hashers.
func Sum(algo Algo, seed int32, data []byte) ([]byte, error) {
	switch algo {
	case XXH3:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], Sum64XXH3(data))
		return buf[:], nil
	case XXH3_128:
		sum := Sum128(data)
		return sum[:], nil
	default:
		h, err := New(algo, seed)
		if err != nil {
			return nil, err
		}
		h.Write(data)
		return h.Sum(nil), nil
	}
}
