package crypto

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateRoomCode(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code := GenerateRoomCode()
		if len(code) != RoomCodeLength {
			t.Fatalf("code %q has length %d", code, len(code))
		}
		for _, c := range code {
			if !strings.ContainsRune(RoomCodeAlphabet, c) {
				t.Fatalf("code %q contains %q outside alphabet", code, c)
			}
		}
		if !IsRoomCode(code) {
			t.Fatalf("IsRoomCode(%q) = false", code)
		}
	}
}

func TestIsRoomCode(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"ROOM01", true},
		{"GHOST9", true},
		{"room01", false},
		{"ROOM0", false},
		{"ROOM012", false},
		{"ROOM-1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsRoomCode(tt.in); got != tt.want {
			t.Errorf("IsRoomCode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGenerateSalt(t *testing.T) {
	s1, err := GenerateSalt()
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(s1)
	if err != nil {
		t.Fatalf("salt is not base64: %v", err)
	}
	if len(raw) != SaltSize {
		t.Fatalf("expected %d salt bytes, got %d", SaltSize, len(raw))
	}

	s2, _ := GenerateSalt()
	if s1 == s2 {
		t.Fatal("two salts should differ")
	}
}

func TestRecoveryKeyRoundTrip(t *testing.T) {
	key := "00112233445566778899aabbccddeeff"
	if err := ValidateRecoveryKey(key); err != nil {
		t.Fatal(err)
	}

	hash, err := HashRecoveryKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyRecoveryKey(hash, key); err != nil {
		t.Fatalf("expected key to verify: %v", err)
	}
	if err := VerifyRecoveryKey(hash, "ffeeddccbbaa99887766554433221100"); err != ErrInvalidRecoveryKey {
		t.Fatalf("expected ErrInvalidRecoveryKey, got %v", err)
	}
}

func TestValidateRecoveryKeyRejects(t *testing.T) {
	for _, key := range []string{"", "abc", "zz112233445566778899aabbccddeeff", strings.Repeat("a", 64)} {
		if err := ValidateRecoveryKey(key); err == nil {
			t.Errorf("ValidateRecoveryKey(%q) should fail", key)
		}
	}
}
