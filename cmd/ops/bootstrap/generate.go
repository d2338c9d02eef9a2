package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenByteLength is the number of random bytes generated for internal secrets.
// 32 bytes = 256 bits of entropy, hex-encoded to a 64-character string.
const tokenByteLength = 32

// GenerateSecureToken produces a cryptographically secure random token
// suitable for use as the webhook shared secret. The token is generated
// using crypto/rand and encoded as a lowercase hex string (64 characters).
//
// The value is written to SSM without ever being displayed; the operator
// retrieves it with --export-env when registering the webhook URL with the
// payment gateway.
//
// Returns an error only if the system's cryptographic random number generator
// fails, which indicates a severe system-level problem.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	n, err := rand.Read(buf)
	if err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	if n != tokenByteLength {
		return "", fmt.Errorf("generating secure token: expected %d random bytes, got %d", tokenByteLength, n)
	}

	return hex.EncodeToString(buf), nil
}
