// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"codeberg.org/oliverandrich/voiceauth/internal/i18n"
	"codeberg.org/oliverandrich/voiceauth/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// ErrVoiceTooLarge is returned when an uploaded sample exceeds the limit.
var ErrVoiceTooLarge = errors.New("voice sample too large")

type SendOTPRequest struct {
	Email string `json:"email" form:"email" validate:"required"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" form:"email" validate:"required"`
	OTP   string `json:"otp" form:"otp" validate:"required"`
	Token string `json:"token" form:"token" validate:"required"`
}

type RegisterRequest struct {
	Email        string `form:"email" validate:"required"`
	Phone        string `form:"phone" validate:"required"`
	AuthMethod   string `form:"auth_method" validate:"required,authmethod"`
	OTP          string `form:"otp" validate:"required"`
	Token        string `form:"token" validate:"required"`
	SpokenPhrase string `form:"spoken_phrase"`
}

type LoginRequest struct {
	Email      string `json:"email" form:"email" validate:"required"`
	AuthMethod string `json:"auth_method" form:"auth_method" validate:"required,authmethod"`
}

type EnrollVoiceRequest struct {
	Email        string `form:"email" validate:"required"`
	OTP          string `form:"otp" validate:"required"`
	Token        string `form:"token" validate:"required"`
	SpokenPhrase string `form:"spoken_phrase"`
}

// bind decodes the request into req and runs the registered validator.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: %w", auth.ErrInvalidInput, err)
	}
	return c.Validate(req)
}

// readVoice returns the uploaded sample from voice_file or voice, or nil if
// neither is present.
func (h *Handlers) readVoice(c echo.Context) ([]byte, error) {
	for _, field := range []string{"voice_file", "voice"} {
		fh, err := c.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", auth.ErrInvalidInput, err)
		}
		if fh.Size > h.maxVoice {
			return nil, ErrVoiceTooLarge
		}

		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", auth.ErrInvalidInput, err)
		}
		data, err := io.ReadAll(io.LimitReader(f, h.maxVoice+1))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", auth.ErrInvalidInput, err)
		}
		if int64(len(data)) > h.maxVoice {
			return nil, ErrVoiceTooLarge
		}
		return data, nil
	}
	return nil, nil
}

// SendOTP issues a code by email and returns the token to present with it.
func (h *Handlers) SendOTP(c echo.Context) error {
	var req SendOTPRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	token, err := h.auth.SendOTP(ctx, req.Email)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"token":   token,
		"message": i18n.T(ctx, "otp_sent"),
	})
}

// VerifyOTP checks a code without touching the user store.
func (h *Handlers) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	if err := h.auth.VerifyOTP(ctx, req.Email, req.OTP, req.Token); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "otp_verified"),
	})
}

// RegisterUser creates an account from a multipart form.
func (h *Handlers) RegisterUser(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	sample, err := h.readVoice(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	_, err = h.auth.Register(ctx, auth.RegisterParams{
		Email:        req.Email,
		Phone:        req.Phone,
		AuthMethod:   req.AuthMethod,
		OTP:          req.OTP,
		Token:        req.Token,
		SpokenPhrase: req.SpokenPhrase,
		Voice:        sample,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "user_registered"),
	})
}

// Login mails a fresh OTP to a registered user.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	profile, token, err := h.auth.Login(ctx, req.Email, req.AuthMethod)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": i18n.T(ctx, "login_otp_sent"),
		"user":    profile,
		"token":   token,
	})
}

// VerifyOTPVoice completes a login with the code and, for voice users, a sample.
func (h *Handlers) VerifyOTPVoice(c echo.Context) error {
	var req VerifyOTPRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	sample, err := h.readVoice(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	profile, err := h.auth.VerifyOTPVoice(ctx, req.Email, req.OTP, req.Token, sample)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message": i18n.T(ctx, "otp_voice_verified"),
		"user":    profile,
	})
}

// EnrollVoice stores a new voice embedding for an existing user.
func (h *Handlers) EnrollVoice(c echo.Context) error {
	var req EnrollVoiceRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	sample, err := h.readVoice(c)
	if err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	if err := h.auth.EnrollVoice(ctx, req.Email, req.OTP, req.Token, sample, req.SpokenPhrase); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message": i18n.T(ctx, "voice_enrolled"),
	})
}
