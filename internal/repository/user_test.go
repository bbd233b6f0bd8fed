// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"

	"codeberg.org/oliverandrich/voiceauth/internal/models"
	"codeberg.org/oliverandrich/voiceauth/internal/repository"
	"codeberg.org/oliverandrich/voiceauth/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func otpUser(hash string) *models.User {
	return &models.User{
		EmailHash:      hash,
		EncryptedEmail: "enc-email",
		EncryptedPhone: "enc-phone",
		AuthMethod:     models.AuthMethodOTP,
	}
}

func TestCreateUser(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := otpUser("hash-1")

	err := repo.CreateUser(ctx, user)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.False(t, user.CreatedAt.IsZero())
	assert.False(t, user.UpdatedAt.IsZero())
}

func TestCreateUser_Duplicate(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateUser(ctx, otpUser("hash-1")))

	err := repo.CreateUser(ctx, otpUser("hash-1"))

	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestCreateUser_InvalidRow(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	user := otpUser("hash-1")
	user.AuthMethod = models.AuthMethodVoice

	err := repo.CreateUser(context.Background(), user)

	assert.ErrorIs(t, err, models.ErrMissingEmbedding)
}

func TestGetUserByEmailHash(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	created := &models.User{
		EmailHash:      "hash-v",
		EncryptedEmail: "enc-email",
		EncryptedPhone: "enc-phone",
		AuthMethod:     models.AuthMethodVoice,
		SpokenPhrase:   strPtr("my voice is my password"),
		VoiceEmbedding: strPtr("[0.1, 0.2]"),
	}
	require.NoError(t, repo.CreateUser(ctx, created))

	got, err := repo.GetUserByEmailHash(ctx, "hash-v")

	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "enc-email", got.EncryptedEmail)
	assert.Equal(t, "enc-phone", got.EncryptedPhone)
	assert.Equal(t, models.AuthMethodVoice, got.AuthMethod)
	require.NotNil(t, got.SpokenPhrase)
	assert.Equal(t, "my voice is my password", *got.SpokenPhrase)
	require.NotNil(t, got.VoiceEmbedding)
	assert.Equal(t, "[0.1, 0.2]", *got.VoiceEmbedding)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, 1e9)
}

func TestGetUserByEmailHash_NullableColumns(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, otpUser("hash-1")))

	got, err := repo.GetUserByEmailHash(ctx, "hash-1")

	require.NoError(t, err)
	assert.Nil(t, got.SpokenPhrase)
	assert.Nil(t, got.VoiceEmbedding)
}

func TestGetUserByEmailHash_NotFound(t *testing.T) {
	_, repo := testutil.NewTestDB(t)

	_, err := repo.GetUserByEmailHash(context.Background(), "missing")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEmailHashExists(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, otpUser("hash-1")))

	exists, err := repo.EmailHashExists(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.EmailHashExists(ctx, "hash-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdateVoiceEmbedding(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, otpUser("hash-1")))

	err := repo.UpdateVoiceEmbedding(ctx, "hash-1", "[1, 2, 3]", strPtr("open sesame"))
	require.NoError(t, err)

	got, err := repo.GetUserByEmailHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, models.AuthMethodVoice, got.AuthMethod)
	require.NotNil(t, got.VoiceEmbedding)
	assert.Equal(t, "[1, 2, 3]", *got.VoiceEmbedding)
	require.NotNil(t, got.SpokenPhrase)
	assert.Equal(t, "open sesame", *got.SpokenPhrase)
	assert.NoError(t, got.Validate())
}

func TestUpdateVoiceEmbedding_KeepsPhrase(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateUser(ctx, otpUser("hash-1")))
	require.NoError(t, repo.UpdateVoiceEmbedding(ctx, "hash-1", "[1]", strPtr("first")))

	require.NoError(t, repo.UpdateVoiceEmbedding(ctx, "hash-1", "[2]", nil))

	got, err := repo.GetUserByEmailHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "[2]", *got.VoiceEmbedding)
	assert.Equal(t, "first", *got.SpokenPhrase)
}

func TestUpdateVoiceEmbedding_Errors(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	err := repo.UpdateVoiceEmbedding(ctx, "missing", "[1]", nil)
	require.ErrorIs(t, err, repository.ErrNotFound)

	err = repo.UpdateVoiceEmbedding(ctx, "missing", "", nil)
	assert.ErrorIs(t, err, models.ErrMissingEmbedding)
}

func TestCountUsers(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	count, err := repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	testutil.NewTestUser(t, repo, "a@example.com")
	testutil.NewTestUser(t, repo, "b@example.com")

	count, err = repo.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
