// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package models holds the row types persisted by the repository.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// AuthMethod selects the second factor a user signs in with.
type AuthMethod string

const (
	AuthMethodOTP   AuthMethod = "otp"
	AuthMethodVoice AuthMethod = "voice"
)

var ErrUnknownAuthMethod = errors.New("unknown auth method")

// ParseAuthMethod accepts "otp" or "voice", case-insensitive.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch m := AuthMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case AuthMethodOTP, AuthMethodVoice:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAuthMethod, s)
	}
}

func (m AuthMethod) String() string {
	return string(m)
}

// Valid reports whether m is a known method.
func (m AuthMethod) Valid() bool {
	return m == AuthMethodOTP || m == AuthMethodVoice
}
