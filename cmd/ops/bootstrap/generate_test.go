package main

import (
	"encoding/hex"
	"testing"
)

func TestGenerateSecureToken_Length(t *testing.T) {
	token, err := GenerateSecureToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 32 bytes hex-encoded = 64 characters.
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}
}

func TestGenerateSecureToken_IsHex(t *testing.T) {
	token, err := GenerateSecureToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := hex.DecodeString(token); err != nil {
		t.Errorf("token is not valid hex: %v", err)
	}
}

func TestGenerateSecureToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateSecureToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %s", token)
		}
		seen[token] = true
	}
}
