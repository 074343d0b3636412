package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidRecoveryKey = errors.New("invalid recovery key")
	ErrRecoveryKeyFormat  = errors.New("recovery key must be 32 hex characters")
)

// ValidateRecoveryKey checks the shape clients generate: 16 random bytes, hex-encoded.
func ValidateRecoveryKey(key string) error {
	if len(key) != 32 {
		return ErrRecoveryKeyFormat
	}
	for _, c := range key {
		if !(c >= '0' && c <= '9') && !(c >= 'a' && c <= 'f') && !(c >= 'A' && c <= 'F') {
			return ErrRecoveryKeyFormat
		}
	}
	return nil
}

// HashRecoveryKey hashes a recovery key for storage.
func HashRecoveryKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash recovery key: %w", err)
	}
	return string(hash), nil
}

// VerifyRecoveryKey compares a presented recovery key with its stored hash.
func VerifyRecoveryKey(hash, key string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		return ErrInvalidRecoveryKey
	}
	return nil
}
