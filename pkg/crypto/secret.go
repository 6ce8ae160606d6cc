package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// DigestSecret returns the hex SHA-256 digest of an API secret. The digest is
// the only form ever stored or used for lookup; the plaintext secret is
// discarded after hashing.
func DigestSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// HashToken hashes an admin token using bcrypt.
func HashToken(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// CompareToken compares a plaintext admin token to its bcrypt hash.
func CompareToken(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}
