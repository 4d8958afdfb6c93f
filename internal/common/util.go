package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates size random bytes and returns them hex-encoded,
// so the resulting string is 2*size characters long. Used for signing and
// checkpoint keys.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WipeByteArray overwrites b with zeros. Secrets read from a terminal are
// wiped once they have been used.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
