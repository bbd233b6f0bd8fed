// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrMissingEmailHash = errors.New("user: email hash is required")
	ErrMissingEmbedding = errors.New("user: voice method requires an embedding")
	ErrUnexpectedVoice  = errors.New("user: otp method must not carry an embedding")
)

// User is one row of the users table. Email and phone are stored encrypted;
// lookups go through EmailHash.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID             uuid.UUID  `db:"id" json:"id"`
	EmailHash      string     `db:"email_hash" json:"-"`
	EncryptedEmail string     `db:"encrypted_email" json:"-"`
	EncryptedPhone string     `db:"encrypted_phone" json:"-"`
	AuthMethod     AuthMethod `db:"auth_method" json:"auth_method"`
	SpokenPhrase   *string    `db:"spoken_phrase" json:"-"`
	VoiceEmbedding *string    `db:"voice_embedding" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// HasVoice reports whether an embedding is stored.
func (u *User) HasVoice() bool {
	return u.VoiceEmbedding != nil && *u.VoiceEmbedding != ""
}

// Validate checks the row invariants: a known method, and an embedding
// present exactly when the method is voice.
func (u *User) Validate() error {
	if u.EmailHash == "" {
		return ErrMissingEmailHash
	}
	if !u.AuthMethod.Valid() {
		return ErrUnknownAuthMethod
	}
	switch {
	case u.AuthMethod == AuthMethodVoice && !u.HasVoice():
		return ErrMissingEmbedding
	case u.AuthMethod == AuthMethodOTP && u.HasVoice():
		return ErrUnexpectedVoice
	}
	return nil
}
