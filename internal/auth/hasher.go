// Package auth holds the credential primitives: bcrypt password hashing and
// HMAC-signed session tokens.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the fixed work factor for every stored password hash.
const BcryptCost = 10

// MaxPasswordBytes is the bcrypt input limit. Longer passwords are cut to this
// length before hashing and before comparison.
const MaxPasswordBytes = 72

var ErrEmptyPassword = errors.New("password cannot be empty")

// PasswordHasher hashes and verifies plaintext secrets.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches hash. A malformed hash is a mismatch.
	Verify(password, hash string) bool
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: BcryptCost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	hashed, err := bcrypt.GenerateFromPassword(truncate(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to generate password hash: %w", err)
	}

	return string(hashed), nil
}

func (h *BcryptHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), truncate(password)) == nil
}

func truncate(password string) []byte {
	secret := []byte(password)
	if len(secret) > MaxPasswordBytes {
		return secret[:MaxPasswordBytes]
	}
	return secret
}
