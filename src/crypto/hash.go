package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the concatenation of the given chunks.
func SHA256(chunks ...[]byte) []byte {
	hasher := sha256.New()
	for _, c := range chunks {
		hasher.Write(c)
	}
	return hasher.Sum(nil)
}

// ChainHash hashes prev and data together. It is used to derive the content
// identifier of a delta from the identifier of its predecessor.
func ChainHash(prev []byte, data []byte) []byte {
	return SHA256(prev, data)
}
