package util

import (
	"github.com/cespare/xxhash"
	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest
type Digest [32]byte

// HashKey produces a `xxhash` hash from a given byte slice
// NOTE: https://github.com/cespare/xxhash for more details
func HashKey(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

// KeyedDigest computes a BLAKE3 keyed digest; the domain is zero-padded
// (or truncated) to 32 bytes so that equal inputs hash differently per domain
func KeyedDigest(domain string, payload []byte) (d Digest) {
	var key [32]byte
	copy(key[:], domain)

	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// only fails on a wrong key length, which is fixed above
		panic(err)
	}

	h.Write(payload)
	copy(d[:], h.Sum(nil))

	return d
}
