// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

// Blob layout before base64: [version:1][nonce:12][ciphertext+tag].
const (
	blobVersion byte = 1
	nonceSize        = 12
	keySize          = 32
)

var (
	ErrInvalidKey          = errors.New("pii: key must be 32 bytes")
	ErrCiphertextTooShort  = errors.New("pii: ciphertext too short")
	ErrUnsupportedVersion  = errors.New("pii: unsupported ciphertext version")
	ErrMalformedCiphertext = errors.New("pii: ciphertext is not valid base64")
	ErrDecrypt             = errors.New("pii: decrypt failed")
)

// Cipher encrypts short string fields with AES-256-GCM under one process-wide key.
// It holds no mutable state and is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a raw 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("pii: aes init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("pii: gcm init: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// NewCipherFromHex creates a Cipher from a 64 character hex key.
func NewCipherFromHex(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewCipher(key)
}

// Encrypt seals plaintext with a fresh random nonce and returns a base64 blob
// that carries everything Decrypt needs besides the key.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("pii: nonce generation: %w", err)
	}

	out := make([]byte, 0, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	out = append(out, blobVersion)
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, []byte(plaintext), []byte{blobVersion})

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt is the inverse of Encrypt. A tampered blob or a wrong key yields ErrDecrypt.
func (c *Cipher) Decrypt(blob string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(data) < 1+nonceSize+c.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}
	if data[0] != blobVersion {
		return "", fmt.Errorf("%w: %d", ErrUnsupportedVersion, data[0])
	}

	nonce := data[1 : 1+nonceSize]
	plain, err := c.aead.Open(nil, nonce, data[1+nonceSize:], data[:1])
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}
