// Hash algorithm implementations for the two independent hash
// families LT/CLT need: one for slot/probe-
// window selection and a second, seeded one for bloom-filter bit
// selection.
package lattice

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Hash algorithm constants, selectable via Config.HashAlgorithm.
const (
	AlgXXHash3 = 1 // default, fastest
	AlgFNV1a   = 2 // no external dependencies
	AlgBlake2b = 3 // best distribution
)

// keyString renders a lookup key (string, integer, or anything
// Stringer-like) as the string the hash functions operate on.
func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}
	return fmt.Sprint(key)
}

// hashKey hashes key with the file's configured algorithm. Used for
// LT/CLT slot/probe-window selection.
func hashKey(key any, alg int) uint64 {
	s := keyString(key)
	switch alg {
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write([]byte(s))
		return h.Sum64()
	case AlgBlake2b:
		h, _ := blake2b.New512(nil)
		h.Write([]byte(s))
		return binary.LittleEndian.Uint64(h.Sum(nil))
	case AlgXXHash3:
		fallthrough
	default:
		return xxh3.HashString(s)
	}
}

// hashKeySeeded produces the second, independent hash family used for
// bloom-filter bit selection. It is keyed with bloomSeed via
// blake2b's native key parameter so it never degenerates into a
// trivial function of hashKey's output for the same key.
func hashKeySeeded(key any, bloomSeed int64) uint64 {
	var seedKey [8]byte
	binary.LittleEndian.PutUint64(seedKey[:], uint64(bloomSeed))
	h, err := blake2b.New(8, seedKey[:])
	if err != nil {
		// blake2b.New only fails for out-of-range key/size; 8 bytes
		// is always valid, so this path is unreachable in practice.
		h, _ = blake2b.New(8, nil)
	}
	h.Write([]byte(keyString(key)))
	return binary.LittleEndian.Uint64(h.Sum(nil))
}
