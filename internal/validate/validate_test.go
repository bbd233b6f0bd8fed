// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package validate_test

import (
	"testing"

	"codeberg.org/oliverandrich/voiceauth/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	AuthMethod string `json:"auth_method" validate:"required,authmethod"`
}

type formRequest struct {
	OTP string `form:"otp" validate:"required"`
}

func TestValidate_OK(t *testing.T) {
	v, err := validate.New()
	require.NoError(t, err)

	assert.NoError(t, v.Validate(&loginRequest{Email: "a@example.com", AuthMethod: "voice"}))
	assert.NoError(t, v.Validate(&loginRequest{Email: "a@example.com", AuthMethod: "OTP"}))
}

func TestValidate_FieldErrors(t *testing.T) {
	v, err := validate.New()
	require.NoError(t, err)

	err = v.Validate(&loginRequest{Email: "nope", AuthMethod: "password"})

	var ve validate.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve, "email")
	assert.Equal(t, "auth_method must be one of otp, voice", ve["auth_method"])
	assert.Contains(t, ve.Summary(), "auth_method must be one of otp, voice")
}

func TestValidate_RequiredUsesFormName(t *testing.T) {
	v, err := validate.New()
	require.NoError(t, err)

	err = v.Validate(&formRequest{})

	var ve validate.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "otp is a required field", ve["otp"])
}

func TestValidationError_Error(t *testing.T) {
	assert.Equal(t, "validation error", validate.ValidationError{}.Error())
	assert.JSONEq(t, `{"otp":"bad"}`, validate.ValidationError{"otp": "bad"}.Error())
}
