// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidOTP    = errors.New("invalid or expired OTP")
	ErrVoiceRequired = errors.New("voice sample required")
	ErrNoEmbedding   = errors.New("no voice data stored for user")
	ErrNotEnrolled   = errors.New("user not enrolled for voice")
	ErrVoiceMismatch = errors.New("voice does not match")
	ErrUserNotFound  = errors.New("user not found")
	ErrUserExists    = errors.New("user already exists")
)

// Stage names the collaborator an UpstreamError came from.
type Stage string

const (
	StageEmail   Stage = "email"
	StageStorage Stage = "storage"
	StageVoice   Stage = "voice"
	StageCrypto  Stage = "crypto"
	StageOTP     Stage = "otp"
)

// UpstreamError reports a failure of a collaborator rather than of the
// caller's input.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(stage Stage, err error) error {
	return &UpstreamError{Stage: stage, Err: err}
}
