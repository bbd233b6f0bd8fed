// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth sequences OTP issuance, OTP verification, voice capture and
// persistence for registration and login.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"codeberg.org/oliverandrich/voiceauth/internal/models"
	"codeberg.org/oliverandrich/voiceauth/internal/otp"
	"codeberg.org/oliverandrich/voiceauth/internal/pii"
	"codeberg.org/oliverandrich/voiceauth/internal/repository"
	"codeberg.org/oliverandrich/voiceauth/internal/voice"
)

// UserStore persists users keyed by email hash.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmailHash(ctx context.Context, emailHash string) (*models.User, error)
	EmailHashExists(ctx context.Context, emailHash string) (bool, error)
	UpdateVoiceEmbedding(ctx context.Context, emailHash, embedding string, phrase *string) error
}

// Mailer delivers OTP codes.
type Mailer interface {
	SendOTP(ctx context.Context, to, code string, validity time.Duration) error
}

// VoiceMatcher embeds voice samples and compares them to stored embeddings.
type VoiceMatcher interface {
	Embed(ctx context.Context, audio []byte) (voice.Embedding, error)
	Match(ctx context.Context, audio []byte, stored string) (voice.Result, error)
	Compare(candidate, stored voice.Embedding) (voice.Result, error)
}

type Service struct {
	users   UserStore
	mailer  Mailer
	matcher VoiceMatcher
	issuer  *otp.Issuer
	cipher  *pii.Cipher
}

func NewService(users UserStore, mailer Mailer, matcher VoiceMatcher, issuer *otp.Issuer, cipher *pii.Cipher) *Service {
	return &Service{
		users:   users,
		mailer:  mailer,
		matcher: matcher,
		issuer:  issuer,
		cipher:  cipher,
	}
}

// Profile is the decrypted view of a user returned to clients.
// The stored embedding never leaves the service.
type Profile struct { //nolint:govet // fieldalignment: readability over optimization
	ID           uuid.UUID         `json:"id"`
	Email        string            `json:"email"`
	Phone        string            `json:"phone"`
	AuthMethod   models.AuthMethod `json:"auth_method"`
	SpokenPhrase *string           `json:"spoken_phrase,omitempty"`
	VoiceEnabled bool              `json:"voice_enrolled"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RegisterParams holds the parameters for user registration.
type RegisterParams struct {
	Email        string
	Phone        string
	AuthMethod   string
	OTP          string
	Token        string
	SpokenPhrase string
	Voice        []byte
}

// normalizedEmail validates and normalizes a raw address.
func normalizedEmail(raw string) (string, error) {
	email := pii.NormalizeEmail(raw)
	if email == "" {
		return "", ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidInput
	}
	return email, nil
}

// SendOTP issues a code for email, mails it, and returns the token the client
// must present with the code.
func (s *Service) SendOTP(ctx context.Context, rawEmail string) (string, error) {
	email, err := normalizedEmail(rawEmail)
	if err != nil {
		return "", err
	}
	return s.issueAndSend(ctx, email)
}

func (s *Service) issueAndSend(ctx context.Context, email string) (string, error) {
	code, token, expiresAt, err := s.issuer.Issue(email)
	if err != nil {
		return "", upstream(StageOTP, err)
	}

	if err := s.mailer.SendOTP(ctx, email, code, s.issuer.Validity()); err != nil {
		slog.ErrorContext(ctx, "otp_send_failed", "email", pii.LogKey(email), "error", err)
		return "", upstream(StageEmail, err)
	}

	slog.InfoContext(ctx, "otp_issued", "email", pii.LogKey(email), "expires_at", expiresAt)
	return token, nil
}

// VerifyOTP checks a code and token against email.
func (s *Service) VerifyOTP(ctx context.Context, rawEmail, code, token string) error {
	email := pii.NormalizeEmail(rawEmail)
	if err := s.issuer.VerifyDetailed(email, code, token); err != nil {
		slog.InfoContext(ctx, "otp_rejected", "email", pii.LogKey(email), "reason", err.Error())
		return ErrInvalidOTP
	}
	return nil
}

// Register creates a user after verifying the OTP. A voice registration
// stores the embedding of the supplied sample.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*models.User, error) {
	method, err := models.ParseAuthMethod(p.AuthMethod)
	if err != nil {
		return nil, ErrInvalidInput
	}

	email, err := normalizedEmail(p.Email)
	if err != nil {
		return nil, err
	}
	if err := s.VerifyOTP(ctx, email, p.OTP, p.Token); err != nil {
		return nil, err
	}

	hash := pii.HashEmail(email)
	exists, err := s.users.EmailHashExists(ctx, hash)
	if err != nil {
		return nil, upstream(StageStorage, err)
	}
	if exists {
		return nil, ErrUserExists
	}

	user := &models.User{
		EmailHash:  hash,
		AuthMethod: method,
	}
	if phrase := strings.TrimSpace(p.SpokenPhrase); phrase != "" {
		user.SpokenPhrase = &phrase
	}

	if method == models.AuthMethodVoice {
		if len(p.Voice) == 0 {
			return nil, ErrVoiceRequired
		}
		embedding, err := s.matcher.Embed(ctx, p.Voice)
		if err != nil {
			return nil, upstream(StageVoice, err)
		}
		stored := voice.FormatEmbedding(embedding)
		user.VoiceEmbedding = &stored
	}

	if user.EncryptedEmail, err = s.cipher.Encrypt(email); err != nil {
		return nil, upstream(StageCrypto, err)
	}
	if user.EncryptedPhone, err = s.cipher.Encrypt(pii.NormalizePhone(p.Phone)); err != nil {
		return nil, upstream(StageCrypto, err)
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, upstream(StageStorage, err)
	}

	slog.InfoContext(ctx, "register_success", "user_id", user.ID, "email", pii.LogKey(email), "auth_method", method)
	return user, nil
}

// Login looks up the user and mails a fresh OTP. Requesting voice login for
// a user without a voice enrollment fails with ErrNotEnrolled.
func (s *Service) Login(ctx context.Context, rawEmail, authMethod string) (*Profile, string, error) {
	method, err := models.ParseAuthMethod(authMethod)
	if err != nil {
		return nil, "", ErrInvalidInput
	}
	email, err := normalizedEmail(rawEmail)
	if err != nil {
		return nil, "", err
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if method == models.AuthMethodVoice && !user.HasVoice() {
		return nil, "", ErrNotEnrolled
	}

	profile, err := s.profile(user)
	if err != nil {
		return nil, "", err
	}

	token, err := s.issueAndSend(ctx, email)
	if err != nil {
		return nil, "", err
	}

	slog.InfoContext(ctx, "login_otp_sent", "user_id", user.ID)
	return profile, token, nil
}

// VerifyOTPVoice completes a login. Voice users must present a matching
// sample; OTP users pass on the code alone and are rejected with
// ErrNotEnrolled when they send a sample.
func (s *Service) VerifyOTPVoice(ctx context.Context, rawEmail, code, token string, sample []byte) (*Profile, error) {
	email := pii.NormalizeEmail(rawEmail)
	if err := s.VerifyOTP(ctx, email, code, token); err != nil {
		return nil, err
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}

	switch user.AuthMethod {
	case models.AuthMethodVoice:
		if len(sample) == 0 {
			return nil, ErrVoiceRequired
		}
		if !user.HasVoice() {
			return nil, ErrNoEmbedding
		}
		if err := s.matchVoice(ctx, user, sample); err != nil {
			return nil, err
		}
	default:
		if len(sample) > 0 {
			slog.InfoContext(ctx, "voice_not_enrolled", "user_id", user.ID)
			return nil, ErrNotEnrolled
		}
	}

	slog.InfoContext(ctx, "login_success", "user_id", user.ID, "auth_method", user.AuthMethod)
	return s.profile(user)
}

func (s *Service) matchVoice(ctx context.Context, user *models.User, sample []byte) error {
	res, err := s.matcher.Match(ctx, sample, *user.VoiceEmbedding)
	if err != nil {
		slog.ErrorContext(ctx, "voice_match_failed", "user_id", user.ID, "error", err)
		return upstream(StageVoice, err)
	}
	if !res.Matched {
		slog.InfoContext(ctx, "voice_mismatch", "user_id", user.ID, "similarity", res.Similarity)
		return ErrVoiceMismatch
	}
	slog.DebugContext(ctx, "voice_match", "user_id", user.ID, "similarity", res.Similarity)
	return nil
}

// EnrollVoice replaces the stored embedding with one computed from sample and
// switches the user to voice authentication. A user who already has a voice
// embedding must present a sample that matches it.
func (s *Service) EnrollVoice(ctx context.Context, rawEmail, code, token string, sample []byte, phrase string) error {
	email := pii.NormalizeEmail(rawEmail)
	if err := s.VerifyOTP(ctx, email, code, token); err != nil {
		return err
	}
	if len(sample) == 0 {
		return ErrVoiceRequired
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}

	embedding, err := s.matcher.Embed(ctx, sample)
	if err != nil {
		return upstream(StageVoice, err)
	}
	if user.HasVoice() {
		if err := s.compareEnrolled(ctx, user, embedding); err != nil {
			return err
		}
	}

	var phrasePtr *string
	if p := strings.TrimSpace(phrase); p != "" {
		phrasePtr = &p
	}

	if err := s.users.UpdateVoiceEmbedding(ctx, user.EmailHash, voice.FormatEmbedding(embedding), phrasePtr); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return upstream(StageStorage, err)
	}

	slog.InfoContext(ctx, "voice_enrolled", "user_id", user.ID)
	return nil
}

func (s *Service) compareEnrolled(ctx context.Context, user *models.User, candidate voice.Embedding) error {
	stored, err := voice.ParseEmbedding(*user.VoiceEmbedding)
	if err != nil {
		slog.ErrorContext(ctx, "voice_match_failed", "user_id", user.ID, "error", err)
		return upstream(StageVoice, err)
	}
	res, err := s.matcher.Compare(candidate, stored)
	if err != nil {
		slog.ErrorContext(ctx, "voice_match_failed", "user_id", user.ID, "error", err)
		return upstream(StageVoice, err)
	}
	if !res.Matched {
		slog.InfoContext(ctx, "voice_reenroll_rejected", "user_id", user.ID, "similarity", res.Similarity)
		return ErrVoiceMismatch
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetUserByEmailHash(ctx, pii.HashEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, upstream(StageStorage, err)
	}
	return user, nil
}

func (s *Service) profile(user *models.User) (*Profile, error) {
	email, err := s.cipher.Decrypt(user.EncryptedEmail)
	if err != nil {
		return nil, upstream(StageCrypto, err)
	}
	phone := ""
	if user.EncryptedPhone != "" {
		if phone, err = s.cipher.Decrypt(user.EncryptedPhone); err != nil {
			return nil, upstream(StageCrypto, err)
		}
	}

	return &Profile{
		ID:           user.ID,
		Email:        email,
		Phone:        phone,
		AuthMethod:   user.AuthMethod,
		SpokenPhrase: user.SpokenPhrase,
		VoiceEnabled: user.HasVoice(),
		CreatedAt:    user.CreatedAt,
	}, nil
}
