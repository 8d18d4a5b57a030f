// Package security issues and verifies the API keys the request layer uses
// to resolve an acting user. Only the SHA-256 hash of a key is ever stored.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const keyPrefix = "bl_live_"

// GenerateAPIKey returns the raw key to hand to the caller exactly once, and
// the hash to persist.
func GenerateAPIKey() (rawKey, keyHash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawKey = keyPrefix + hex.EncodeToString(buf)
	return rawKey, HashKey(rawKey), nil
}

// HashKey derives the stored form of a raw API key.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}
