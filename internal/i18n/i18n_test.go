// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/voiceauth/internal/i18n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestInit(t *testing.T) {
	require.NoError(t, i18n.Init())
	require.NoError(t, i18n.Init())
}

func TestT(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "Invalid or expired OTP", i18n.T(ctx, "error_invalid_otp"))
	assert.Equal(t, "user not enrolled for voice", i18n.T(ctx, "error_not_enrolled"))
}

func TestT_German(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.German)

	assert.Equal(t, "Benutzer nicht gefunden", i18n.T(ctx, "error_user_not_found"))
}

func TestT_UnknownKey(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	assert.Equal(t, "unknown_key_that_does_not_exist", i18n.T(ctx, "unknown_key_that_does_not_exist"))
}

func TestT_NoLocaleContext(t *testing.T) {
	assert.Equal(t, "User not found", i18n.T(context.Background(), "error_user_not_found"))
}

func TestTPlural_OTPBody(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.English)

	body := i18n.TPlural(ctx, "otp_email_body", 2, map[string]any{"Code": "Ab3dE6gH9k", "Minutes": 2})
	assert.Equal(t, "Your OTP code is: Ab3dE6gH9k. OTP is valid for 2 minutes.", body)

	body = i18n.TPlural(ctx, "otp_email_body", 1, map[string]any{"Code": "x", "Minutes": 1})
	assert.Equal(t, "Your OTP code is: x. OTP is valid for 1 minute.", body)
}

func TestTPlural_German(t *testing.T) {
	ctx := i18n.WithLocale(context.Background(), language.German)

	body := i18n.TPlural(ctx, "otp_email_body", 5, map[string]any{"Code": "abc", "Minutes": 5})

	assert.Contains(t, body, "abc")
	assert.Contains(t, body, "5 Minuten")
}

func TestGetLocale(t *testing.T) {
	assert.Equal(t, "en", i18n.GetLocale(context.Background()))

	ctx := i18n.WithLocale(context.Background(), language.German)
	assert.Equal(t, "de", i18n.GetLocale(ctx))
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   language.Tag
	}{
		{"de-DE,de;q=0.9,en;q=0.8", language.German},
		{"en-US,en;q=0.9", language.English},
		{"fr-FR", language.English},
		{"", language.English},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, i18n.MatchLanguage(tt.header))
		})
	}
}
