// Package utils provides common utility functions for the Ember hosting platform.
//
// This file implements unified ID generation used across the control plane for
// creating unique identifiers. Provides consistent ID formats for servers,
// nodes, and audit records while eliminating code duplication.
//
// ID GENERATION STRATEGY:
// Uses crypto/rand for high-quality random data generation to ensure uniqueness
// across the fleet and prevent collisions. All IDs follow the same 12-character
// hexadecimal format for consistency and readability.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TruncateIDLength is the display length used when shortening IDs in logs
// and CLI output. Matches the generated ID length so generated IDs pass
// through unchanged while longer external identifiers get trimmed.
const TruncateIDLength = 12

// GenerateID creates a unique 12-character hex identifier for platform resources.
// Uses crypto/rand to ensure uniqueness across the fleet and prevent collisions.
//
// Essential for resource identification, logging correlation, and API operations
// where resources need to be uniquely referenced. The 12-character format
// balances uniqueness with human readability in logs and interfaces.
//
// Returns format: "a1b2c3d4e5f6" (12 hex characters, similar to Docker short IDs)
func GenerateID() (string, error) {
	// Generate 6 bytes of random data (12 hex characters)
	bytes := make([]byte, 6)
	_, err := rand.Read(bytes)
	if err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// TruncateIDSafe shortens an ID to TruncateIDLength characters for display.
// IDs at or below the display length are returned unchanged, so the function
// is safe to call on already-short or empty identifiers.
func TruncateIDSafe(id string) string {
	if len(id) <= TruncateIDLength {
		return id
	}
	return id[:TruncateIDLength]
}
