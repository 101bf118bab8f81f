package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Sign signs the hash with the private key.
func Sign(priv *ecdsa.PrivateKey, hash []byte) (r, s *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, priv, hash)
}

// Verify reports whether r and s form a valid signature of hash by the owner
// of pub.
func Verify(pub *ecdsa.PublicKey, hash []byte, r, s *big.Int) bool {
	if pub == nil || r == nil || s == nil {
		return false
	}
	return ecdsa.Verify(pub, hash, r, s)
}

// EncodeSignature returns the "r|s" base-36 form of a signature.
func EncodeSignature(r, s *big.Int) string {
	return fmt.Sprintf("%s|%s", r.Text(36), s.Text(36))
}

// DecodeSignature parses the output of EncodeSignature.
func DecodeSignature(sig string) (r, s *big.Int, err error) {
	values := strings.Split(sig, "|")
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("wrong number of values in signature: got %d, want 2", len(values))
	}
	r, ok := new(big.Int).SetString(values[0], 36)
	if !ok {
		return nil, nil, fmt.Errorf("malformed signature r value")
	}
	s, ok = new(big.Int).SetString(values[1], 36)
	if !ok {
		return nil, nil, fmt.Errorf("malformed signature s value")
	}
	return r, s, nil
}

// SignBytes signs hash and returns the encoded signature as bytes, ready to
// be placed on an envelope.
func SignBytes(priv *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	r, s, err := Sign(priv, hash)
	if err != nil {
		return nil, err
	}
	return []byte(EncodeSignature(r, s)), nil
}

// VerifyBytes decodes sig with DecodeSignature and verifies it against hash.
// Malformed signatures are reported as invalid rather than as errors.
func VerifyBytes(pub *ecdsa.PublicKey, hash []byte, sig []byte) bool {
	r, s, err := DecodeSignature(string(sig))
	if err != nil {
		return false
	}
	return Verify(pub, hash, r, s)
}
