package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for password derivation. Stored hashes encode the salt,
// so these can only be raised for newly created users.
const (
	saltLength = 16
	keyLength  = 64
	scryptN    = 16384
	scryptR    = 8
	scryptP    = 1
)

// HashPassword derives a salted scrypt hash of the password, encoded as
// "salt:hash" with both parts hex-encoded. The salt is freshly random on
// every call, so hashing the same password twice yields different strings.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hashWithSalt(password, salt)
}

func hashWithSalt(password string, salt []byte) (string, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return "", fmt.Errorf("scrypt derivation failed: %w", err)
	}
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// VerifyPassword recomputes the derivation with the stored salt and compares
// the result in constant time. A malformed stored hash verifies as false.
func VerifyPassword(password, stored string) bool {
	saltHex, hashHex, found := strings.Cut(stored, ":")
	if !found {
		return false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, len(want))
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(key, want) == 1
}
