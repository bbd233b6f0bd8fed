// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package pii normalizes, hashes and encrypts personally identifiable fields.
package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeEmail trims surrounding whitespace and lowercases the address.
// Every hash and ciphertext of an email is computed over this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims surrounding whitespace.
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

// HashEmail returns the hex SHA-256 digest of an already normalized email.
// The digest is a lookup key only and is never reversed.
func HashEmail(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// LookupKey normalizes and hashes a raw email address.
func LookupKey(email string) string {
	return HashEmail(NormalizeEmail(email))
}

// LogKey is a short prefix of the lookup key, safe to put in logs.
func LogKey(email string) string {
	return LookupKey(email)[:12]
}
