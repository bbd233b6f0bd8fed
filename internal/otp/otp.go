// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp issues and verifies stateless one-time passcode tokens.
//
// A token is base64url("code:expiry:signature") where signature is the hex
// HMAC-SHA256 of "email:code:expiry" under the process secret. The server keeps
// no record of issued tokens, so validity is derived from the token bytes plus
// the email and code the caller submits.
//
// Tokens are not marked as used after a successful verification. A captured
// token stays replayable until it expires; closing that gap needs a single-use
// nonce store, which this package does not keep.
package otp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"codeberg.org/oliverandrich/voiceauth/internal/pii"
)

const (
	// DefaultValidity matches the window stated in the OTP email.
	DefaultValidity = 2 * time.Minute
	// DefaultLength is the number of characters in a generated code.
	DefaultLength = 10
)

// alphabet for codes: ASCII letters and digits.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	ErrEmptySecret    = errors.New("otp: secret is empty")
	ErrEmptyCode      = errors.New("otp: code is empty")
	ErrInvalidCode    = errors.New("otp: code contains ':'")
	ErrMalformedToken = errors.New("otp: malformed token")
	ErrCodeMismatch   = errors.New("otp: code does not match token")
	ErrExpired        = errors.New("otp: token expired")
	ErrBadSignature   = errors.New("otp: signature mismatch")
)

// Issuer signs and verifies OTP tokens. It is immutable after construction and
// safe for concurrent use.
type Issuer struct {
	clock    Clock
	secret   []byte
	validity time.Duration
	length   int
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithValidity sets how long issued tokens stay valid.
func WithValidity(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.validity = d
		}
	}
}

// WithLength sets the number of characters in generated codes.
func WithLength(n int) Option {
	return func(i *Issuer) {
		if n > 0 {
			i.length = n
		}
	}
}

// WithClock replaces the system clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(i *Issuer) {
		if c != nil {
			i.clock = c
		}
	}
}

// NewIssuer creates an Issuer signing with secret.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	i := &Issuer{
		clock:    SystemClock{},
		secret:   []byte(secret),
		validity: DefaultValidity,
		length:   DefaultLength,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Validity returns the configured token lifetime.
func (i *Issuer) Validity() time.Duration {
	return i.validity
}

// Issue generates a fresh code for email and returns it with its token.
// The code goes to the user out of band; the token goes back to the client.
func (i *Issuer) Issue(email string) (code, token string, expiresAt time.Time, err error) {
	code, err = GenerateCode(i.length)
	if err != nil {
		return "", "", time.Time{}, err
	}
	token, expiresAt, err = i.IssueFor(email, code)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return code, token, expiresAt, nil
}

// IssueFor signs a token binding email to a caller-chosen code.
func (i *Issuer) IssueFor(email, code string) (string, time.Time, error) {
	if code == "" {
		return "", time.Time{}, ErrEmptyCode
	}
	if strings.Contains(code, ":") {
		return "", time.Time{}, ErrInvalidCode
	}

	expiresAt := i.clock.Now().Add(i.validity).Truncate(time.Second)
	expiry := strconv.FormatInt(expiresAt.Unix(), 10)
	sig := i.sign(pii.NormalizeEmail(email), code, expiry)

	raw := code + ":" + expiry + ":" + sig
	return base64.URLEncoding.EncodeToString([]byte(raw)), expiresAt, nil
}

// Verify reports whether code and token are valid for email. Any decoding
// problem counts as invalid.
func (i *Issuer) Verify(email, code, token string) bool {
	return i.VerifyDetailed(email, code, token) == nil
}

// VerifyDetailed is Verify with the reason for rejection.
func (i *Issuer) VerifyDetailed(email, code, token string) error {
	storedCode, expiry, sig, err := decodeToken(token)
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(storedCode), []byte(code)) != 1 {
		return ErrCodeMismatch
	}

	exp, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: expiry: %v", ErrMalformedToken, err)
	}
	if i.clock.Now().Unix() > exp {
		return ErrExpired
	}

	expected := i.sign(pii.NormalizeEmail(email), code, expiry)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrBadSignature
	}
	return nil
}

func (i *Issuer) sign(email, code, expiry string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(email + ":" + code + ":" + expiry))
	return hex.EncodeToString(mac.Sum(nil))
}

// decodeToken accepts only the exact padded base64url form Issue produces.
// The decoder tolerates CR and LF, so the input is re-encoded and compared.
func decodeToken(token string) (code, expiry, sig string, err error) {
	if token == "" {
		return "", "", "", ErrMalformedToken
	}

	raw, err := base64.URLEncoding.Strict().DecodeString(token)
	if err != nil {
		return "", "", "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if base64.URLEncoding.EncodeToString(raw) != token {
		return "", "", "", fmt.Errorf("%w: non-canonical encoding", ErrMalformedToken)
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", ErrMalformedToken
	}
	return parts[0], parts[1], parts[2], nil
}

// GenerateCode returns a uniformly random code of length characters from
// the letters and digits alphabet.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	limit := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("otp: generate code: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
