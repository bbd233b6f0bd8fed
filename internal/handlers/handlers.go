// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers exposes the authentication service over HTTP.
package handlers

import (
	"context"
	"net/http"

	"codeberg.org/oliverandrich/voiceauth/internal/models"
	"codeberg.org/oliverandrich/voiceauth/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// AuthService is the part of auth.Service the handlers call.
type AuthService interface {
	SendOTP(ctx context.Context, email string) (string, error)
	VerifyOTP(ctx context.Context, email, code, token string) error
	Register(ctx context.Context, p auth.RegisterParams) (*models.User, error)
	Login(ctx context.Context, email, authMethod string) (*auth.Profile, string, error)
	VerifyOTPVoice(ctx context.Context, email, code, token string, sample []byte) (*auth.Profile, error)
	EnrollVoice(ctx context.Context, email, code, token string, sample []byte, phrase string) error
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	auth     AuthService
	maxVoice int64
}

// DefaultMaxVoiceSize caps a single uploaded voice sample.
const DefaultMaxVoiceSize = 10 << 20

// New creates a new Handlers instance. maxVoice <= 0 selects DefaultMaxVoiceSize.
func New(svc AuthService, maxVoice int64) *Handlers {
	if maxVoice <= 0 {
		maxVoice = DefaultMaxVoiceSize
	}
	return &Handlers{auth: svc, maxVoice: maxVoice}
}

// Register mounts every route on e.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.POST("/send-otp", h.SendOTP)
	e.POST("/verify-otp", h.VerifyOTP)
	e.POST("/register", h.RegisterUser)
	e.POST("/login", h.Login)
	e.POST("/verify-otp-voice", h.VerifyOTPVoice)
	e.POST("/enroll-voice", h.EnrollVoice)
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
