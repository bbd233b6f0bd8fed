// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package email delivers one-time passcodes over SMTP.
package email

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"codeberg.org/oliverandrich/voiceauth/internal/config"
	"codeberg.org/oliverandrich/voiceauth/internal/i18n"
	"codeberg.org/oliverandrich/voiceauth/internal/pii"
)

var (
	ErrMissingHost = errors.New("SMTP host is required")
	ErrMissingFrom = errors.New("SMTP from address is required")
	ErrEmptyCode   = errors.New("OTP code is empty")
)

// Sender delivers a plain-text message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service renders OTP mails and hands them to a Sender.
type Service struct {
	sender Sender
}

// NewService creates a service sending through SMTP.
func NewService(cfg *config.SMTPConfig) (*Service, error) {
	sender, err := NewSMTPSender(cfg)
	if err != nil {
		return nil, err
	}
	return NewServiceWithSender(sender), nil
}

// NewServiceWithSender creates a service on top of any Sender.
func NewServiceWithSender(sender Sender) *Service {
	return &Service{sender: sender}
}

// SendOTP mails code to the recipient. The body states validity, which must
// be the window the matching token was issued with.
func (s *Service) SendOTP(ctx context.Context, to, code string, validity time.Duration) error {
	if code == "" {
		return ErrEmptyCode
	}

	minutes := Minutes(validity)
	subject := i18n.T(ctx, "otp_email_subject")
	body := i18n.TPlural(ctx, "otp_email_body", minutes, map[string]any{
		"Code":    code,
		"Minutes": minutes,
	})

	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		return err
	}

	slog.InfoContext(ctx, "otp_email_sent", "email", pii.LogKey(to))
	return nil
}

// Minutes rounds validity up to whole minutes, never below one.
func Minutes(validity time.Duration) int {
	m := int(math.Ceil(validity.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
