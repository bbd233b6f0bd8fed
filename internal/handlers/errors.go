// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/voiceauth/internal/i18n"
	"codeberg.org/oliverandrich/voiceauth/internal/services/auth"
	"codeberg.org/oliverandrich/voiceauth/internal/validate"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type errorMapping struct {
	err     error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{auth.ErrInvalidOTP, http.StatusBadRequest, "error_invalid_otp"},
	{auth.ErrVoiceRequired, http.StatusBadRequest, "error_voice_required"},
	{auth.ErrNoEmbedding, http.StatusBadRequest, "error_no_embedding"},
	{auth.ErrNotEnrolled, http.StatusBadRequest, "error_not_enrolled"},
	{auth.ErrInvalidInput, http.StatusBadRequest, "error_invalid_input"},
	{auth.ErrVoiceMismatch, http.StatusUnauthorized, "error_voice_mismatch"},
	{auth.ErrUserNotFound, http.StatusNotFound, "error_user_not_found"},
	{auth.ErrUserExists, http.StatusConflict, "error_user_exists"},
	{ErrVoiceTooLarge, http.StatusRequestEntityTooLarge, "error_body_too_large"},
}

var stageMessages = map[auth.Stage]string{
	auth.StageEmail: "error_email_failed",
	auth.StageVoice: "error_voice_failed",
}

// writeError maps err to a status code and a {"detail": ...} body.
func writeError(c echo.Context, err error) error {
	ctx := c.Request().Context()

	var ve validate.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Detail: ve.Summary()})
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, ErrorResponse{Detail: i18n.T(ctx, m.message)})
		}
	}

	var up *auth.UpstreamError
	if errors.As(err, &up) {
		slog.ErrorContext(ctx, "upstream_failure", "stage", up.Stage, "error", up.Err)
		key, ok := stageMessages[up.Stage]
		if !ok {
			key = "error_internal"
		}
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Detail: i18n.T(ctx, key) + ": " + up.Err.Error(),
		})
	}

	slog.ErrorContext(ctx, "unhandled_error", "error", err)
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Detail: i18n.T(ctx, "error_internal")})
}

// ErrorHandler renders errors that escape handlers, such as unknown routes
// or an exceeded body limit, in the same shape as writeError.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if !errors.As(err, &he) {
		_ = writeError(c, err)
		return
	}

	detail := http.StatusText(he.Code)
	if he.Code == http.StatusRequestEntityTooLarge {
		detail = i18n.T(c.Request().Context(), "error_body_too_large")
	} else if msg, ok := he.Message.(string); ok && msg != "" {
		detail = msg
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, ErrorResponse{Detail: detail})
}
