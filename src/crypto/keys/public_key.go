package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"strings"
)

// ToPublicKey parses the uncompressed form of a point on Curve(), as returned
// by FromPublicKey. It returns nil if the bytes are not a valid point.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey returns the uncompressed form of the public key.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyID returns the 32-bit FNV-1a hash of the uncompressed public key.
// Collisions are possible but unlikely within a permissioned peer list; the id
// is what envelopes carry instead of the 65-byte key.
func PublicKeyID(pubBytes []byte) uint32 {
	h := fnv.New32a()
	h.Write(pubBytes)
	return h.Sum32()
}

// PublicKeyHex returns the 0X-prefixed, upper-case hex form of the
// uncompressed public key.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return fmt.Sprintf("0X%X", FromPublicKey(pub))
}

// DecodePublicKeyHex parses the output of PublicKeyHex. The 0X prefix is
// optional and case is ignored.
func DecodePublicKeyHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.ToUpper(s), "0X")
	return hex.DecodeString(s)
}
