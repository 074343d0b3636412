package neon

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
)

var testSalt = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))

func deriveTestKey(t *testing.T, password string) *RoomKey {
	t.Helper()
	key, err := DeriveRoomKey(password, testSalt)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestRoundTrip(t *testing.T) {
	key := deriveTestKey(t, "hunter2")

	ct, err := key.Encrypt("Hello room!")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := key.Open(ct)
	if err != nil {
		t.Fatal(err)
	}
	if pt != "Hello room!" {
		t.Fatalf("expected 'Hello room!', got %q", pt)
	}
}

func TestWireFormatStructure(t *testing.T) {
	key := deriveTestKey(t, "hunter2")

	ct, err := key.Encrypt("test")
	if err != nil {
		t.Fatal(err)
	}
	iv, _ := base64.StdEncoding.DecodeString(ct.IV)
	if len(iv) != 12 {
		t.Fatalf("expected 12-byte iv, got %d", len(iv))
	}
	sealed, _ := base64.StdEncoding.DecodeString(ct.Cipher)
	// 4 (plaintext) + 16 (tag)
	if len(sealed) != 20 {
		t.Fatalf("expected cipher length 20, got %d", len(sealed))
	}
}

func TestDifferentCiphertexts(t *testing.T) {
	key := deriveTestKey(t, "hunter2")

	ct1, _ := key.Encrypt("same")
	ct2, _ := key.Encrypt("same")
	if ct1.IV == ct2.IV || ct1.Cipher == ct2.Cipher {
		t.Fatal("ciphertexts should differ for same plaintext")
	}

	pt1, _ := key.Decrypt(ct1)
	pt2, _ := key.Decrypt(ct2)
	if pt1 != "same" || pt2 != "same" {
		t.Fatal("both should decrypt to 'same'")
	}
}

func TestDerivationDeterministic(t *testing.T) {
	a, _ := deriveTestKey(t, "hunter2").Fingerprint()
	b, _ := deriveTestKey(t, "hunter2").Fingerprint()
	if a == "" || a != b {
		t.Fatalf("same password and salt should derive the same key: %q vs %q", a, b)
	}

	other, err := DeriveRoomKey("hunter2", base64.StdEncoding.EncodeToString([]byte("fedcba9876543210")))
	if err != nil {
		t.Fatal(err)
	}
	c, _ := other.Fingerprint()
	if c == a {
		t.Fatal("different salts should derive different keys")
	}
}

func TestWrongKeyFails(t *testing.T) {
	ct, _ := deriveTestKey(t, "hunter2").Encrypt("secret")

	_, err := deriveTestKey(t, "hunter3").Open(ct)
	if err == nil {
		t.Fatal("expected error with wrong key")
	}
	if !ErrCrypto(err) {
		t.Fatalf("expected CryptoError, got %T", err)
	}
}

func TestTamperedCiphertext(t *testing.T) {
	key := deriveTestKey(t, "hunter2")

	ct, _ := key.Encrypt("secret")
	sealed, _ := base64.StdEncoding.DecodeString(ct.Cipher)
	sealed[len(sealed)-1] ^= 0xFF
	ct.Cipher = base64.StdEncoding.EncodeToString(sealed)

	if _, ok := key.Decrypt(ct); ok {
		t.Fatal("expected failure with tampered ciphertext")
	}
}

func TestTruncatedCiphertext(t *testing.T) {
	key := deriveTestKey(t, "hunter2")
	ct, _ := key.Encrypt("secret")
	ct.Cipher = base64.StdEncoding.EncodeToString(make([]byte, 10))

	_, err := key.Open(ct)
	if !ErrCrypto(err) {
		t.Fatalf("expected CryptoError, got %v", err)
	}
}

func TestMalformedFields(t *testing.T) {
	key := deriveTestKey(t, "hunter2")
	good, _ := key.Encrypt("secret")

	cases := []Ciphertext{
		{IV: "not base64!", Cipher: good.Cipher},
		{IV: base64.StdEncoding.EncodeToString(make([]byte, 8)), Cipher: good.Cipher},
		{IV: good.IV, Cipher: "%%%"},
		{},
	}
	for _, ct := range cases {
		if _, err := key.Open(ct); !ErrCrypto(err) {
			t.Fatalf("expected CryptoError for %+v, got %v", ct, err)
		}
	}
}

func TestInvalidSalt(t *testing.T) {
	if _, err := DeriveRoomKey("pw", "not base64!"); !ErrCrypto(err) {
		t.Fatalf("expected CryptoError, got %v", err)
	}
	if _, err := DeriveRoomKey("pw", ""); !ErrCrypto(err) {
		t.Fatalf("expected CryptoError for empty salt, got %v", err)
	}
}

func TestEmptyPlaintext(t *testing.T) {
	key := deriveTestKey(t, "hunter2")

	ct, err := key.Encrypt("")
	if err != nil {
		t.Fatal(err)
	}
	pt, err := key.Open(ct)
	if err != nil {
		t.Fatal(err)
	}
	if pt != "" {
		t.Fatalf("expected empty string, got %q", pt)
	}
}

func TestUnicodePlaintext(t *testing.T) {
	key := deriveTestKey(t, "hunter2")

	msg := "Hello \U0001F30D❤️ 日本語"
	ct, err := key.Encrypt(msg)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := key.Open(ct)
	if err != nil {
		t.Fatal(err)
	}
	if pt != msg {
		t.Fatalf("expected %q, got %q", msg, pt)
	}
}

func TestLargeMessage(t *testing.T) {
	key := deriveTestKey(t, "hunter2")

	msg := strings.Repeat("A", 8000)
	ct, err := key.Encrypt(msg)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := key.Open(ct)
	if err != nil {
		t.Fatal(err)
	}
	if pt != msg {
		t.Fatal("large message round-trip failed")
	}
}

func TestDestroyedKey(t *testing.T) {
	key := deriveTestKey(t, "hunter2")
	ct, _ := key.Encrypt("secret")

	key.Destroy()
	if _, err := key.Encrypt("x"); err != ErrKeyDestroyed {
		t.Fatalf("expected ErrKeyDestroyed, got %v", err)
	}
	if _, err := key.Open(ct); err != ErrKeyDestroyed {
		t.Fatalf("expected ErrKeyDestroyed, got %v", err)
	}
	if _, err := key.Fingerprint(); err != ErrKeyDestroyed {
		t.Fatalf("expected ErrKeyDestroyed, got %v", err)
	}

	var nilKey *RoomKey
	if _, ok := nilKey.Decrypt(ct); ok {
		t.Fatal("nil key should not decrypt")
	}
}

func TestDestroyDuringUse(t *testing.T) {
	key := deriveTestKey(t, "hunter2")
	ct, err := key.Encrypt("steady")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if pt, ok := key.Decrypt(ct); ok && pt != "steady" {
					errs <- "decrypted to " + pt
					return
				}
				if _, err := key.Encrypt("x"); err != nil && err != ErrKeyDestroyed {
					errs <- err.Error()
					return
				}
			}
		}()
	}
	key.Destroy()
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
	if _, ok := key.Decrypt(ct); ok {
		t.Fatal("destroyed key should not decrypt")
	}
}
