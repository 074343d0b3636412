package neon

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations matches the browser client so both derive the same key.
	PBKDF2Iterations = 200000
	keySize          = 32
	nonceSize        = 12
	tagSize          = 16
)

// ErrKeyDestroyed is returned when a destroyed RoomKey is used.
var ErrKeyDestroyed = errors.New("room key destroyed")

// CryptoError represents an encryption/decryption error.
type CryptoError struct {
	Message string
}

func (e *CryptoError) Error() string {
	return e.Message
}

// ErrCrypto checks if an error is a CryptoError.
func ErrCrypto(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// RoomKey is the AES-256-GCM key shared by everyone who knows a room's
// password. The raw key lives in a memguard enclave and is only unsealed for
// the duration of a single operation. A RoomKey is safe for concurrent use;
// Destroy waits for in-flight operations to finish.
type RoomKey struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// DeriveRoomKey stretches a room password with PBKDF2-SHA256 over the
// room's base64 salt.
func DeriveRoomKey(password, saltB64 string) (*RoomKey, error) {
	return deriveRoomKey([]byte(password), saltB64)
}

func deriveRoomKey(password []byte, saltB64 string) (*RoomKey, error) {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return nil, &CryptoError{Message: fmt.Sprintf("invalid salt: %v", err)}
	}
	if len(salt) == 0 {
		return nil, &CryptoError{Message: "empty salt"}
	}

	raw := pbkdf2.Key(password, salt, PBKDF2Iterations, keySize, sha256.New)
	// NewBufferFromBytes wipes raw
	buf := memguard.NewBufferFromBytes(raw)
	return &RoomKey{enclave: buf.Seal()}, nil
}

// withAEAD unseals the key, hands an AES-GCM instance to fn and wipes the key.
func (k *RoomKey) withAEAD(fn func(cipher.AEAD) error) error {
	if k == nil {
		return ErrKeyDestroyed
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.enclave == nil {
		return ErrKeyDestroyed
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return fmt.Errorf("unseal room key: %w", err)
	}
	defer buf.Destroy()

	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		return err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	return fn(aead)
}

// Encrypt seals plaintext under a fresh random 12-byte IV.
func (k *RoomKey) Encrypt(plaintext string) (Ciphertext, error) {
	var out Ciphertext
	err := k.withAEAD(func(aead cipher.AEAD) error {
		iv := make([]byte, nonceSize)
		if _, err := rand.Read(iv); err != nil {
			return err
		}
		sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
		out = Ciphertext{
			IV:     base64.StdEncoding.EncodeToString(iv),
			Cipher: base64.StdEncoding.EncodeToString(sealed),
		}
		return nil
	})
	return out, err
}

// Open authenticates and decrypts a ciphertext. Every failure other than a
// destroyed key is a *CryptoError.
func (k *RoomKey) Open(ct Ciphertext) (string, error) {
	iv, err := base64.StdEncoding.DecodeString(ct.IV)
	if err != nil {
		return "", &CryptoError{Message: fmt.Sprintf("invalid base64 iv: %v", err)}
	}
	if len(iv) != nonceSize {
		return "", &CryptoError{Message: fmt.Sprintf("invalid iv length: %d, expected %d", len(iv), nonceSize)}
	}
	sealed, err := base64.StdEncoding.DecodeString(ct.Cipher)
	if err != nil {
		return "", &CryptoError{Message: fmt.Sprintf("invalid base64 ciphertext: %v", err)}
	}
	if len(sealed) < tagSize {
		return "", &CryptoError{Message: fmt.Sprintf("ciphertext too short: %d bytes, minimum %d", len(sealed), tagSize)}
	}

	var plaintext []byte
	err = k.withAEAD(func(aead cipher.AEAD) error {
		pt, err := aead.Open(nil, iv, sealed, nil)
		if err != nil {
			return &CryptoError{Message: "decryption failed: wrong key or tampered ciphertext"}
		}
		plaintext = pt
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Decrypt is Open without the error detail. Undecryptable input is a normal
// outcome for members holding a different password.
func (k *RoomKey) Decrypt(ct Ciphertext) (string, bool) {
	pt, err := k.Open(ct)
	if err != nil {
		return "", false
	}
	return pt, true
}

// Fingerprint is a short non-secret identifier of the key, for comparing
// keys out of band.
func (k *RoomKey) Fingerprint() (string, error) {
	if k == nil {
		return "", ErrKeyDestroyed
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.enclave == nil {
		return "", ErrKeyDestroyed
	}
	buf, err := k.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("unseal room key: %w", err)
	}
	defer buf.Destroy()

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:8]), nil
}

// Destroy drops the sealed key. The RoomKey is unusable afterwards.
func (k *RoomKey) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	k.enclave = nil
	k.mu.Unlock()
}
