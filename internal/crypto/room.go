package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	mrand "math/rand/v2"
)

const (
	// RoomCodeAlphabet is the set of characters a room code is drawn from.
	RoomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// RoomCodeLength is the number of characters in a room code.
	RoomCodeLength = 6

	// SaltSize is the number of random bytes in a room salt.
	SaltSize = 16
)

// GenerateRoomCode returns a random room code. Codes are public identifiers,
// so a non-cryptographic source is sufficient.
func GenerateRoomCode() string {
	b := make([]byte, RoomCodeLength)
	for i := range b {
		b[i] = RoomCodeAlphabet[mrand.IntN(len(RoomCodeAlphabet))]
	}
	return string(b)
}

// IsRoomCode reports whether s has the shape of a room code.
func IsRoomCode(s string) bool {
	if len(s) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// GenerateSalt returns 16 random bytes encoded as standard base64.
func GenerateSalt() (string, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt generation failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}
