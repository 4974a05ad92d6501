package estateauth

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(plaintext string) (string, error)

	// Verify never errors; a malformed hash simply does not match
	Verify(plaintext, hash string) bool
}

// BcryptHasher is the default PasswordHasher. Each hash carries its own salt.
type BcryptHasher struct {
	// Cost defaults to bcrypt.DefaultCost
	Cost int
}

func (h BcryptHasher) Hash(plaintext string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h BcryptHasher) Verify(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// NewID generates an identifier for principals, profiles and images
func NewID() string {
	return uuid.NewString()
}
