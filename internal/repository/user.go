// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"codeberg.org/oliverandrich/voiceauth/internal/models"
)

const userColumns = `id, email_hash, encrypted_email, encrypted_phone, auth_method,
	spoken_phrase, voice_embedding, created_at, updated_at`

// CreateUser inserts user, assigning ID and timestamps when unset.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (
			:id, :email_hash, :encrypted_email, :encrypted_phone, :auth_method,
			:spoken_phrase, :voice_embedding, :created_at, :updated_at)`,
		user)
	return wrapError(err)
}

// GetUserByEmailHash retrieves a user by the hash of their normalized email.
func (r *Repository) GetUserByEmailHash(ctx context.Context, emailHash string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email_hash = ?`, emailHash)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// EmailHashExists reports whether a user with emailHash is registered.
func (r *Repository) EmailHashExists(ctx context.Context, emailHash string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email_hash = ?)`, emailHash)
	if err != nil {
		return false, wrapError(err)
	}
	return exists, nil
}

// UpdateVoiceEmbedding stores a new embedding and phrase and switches the
// user to voice authentication.
func (r *Repository) UpdateVoiceEmbedding(ctx context.Context, emailHash, embedding string, phrase *string) error {
	if embedding == "" {
		return models.ErrMissingEmbedding
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE users
		    SET voice_embedding = ?, spoken_phrase = COALESCE(?, spoken_phrase),
		        auth_method = ?, updated_at = ?
		  WHERE email_hash = ?`,
		embedding, phrase, models.AuthMethodVoice, time.Now().UTC(), emailHash)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUsers returns the total number of users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM users`); err != nil {
		return 0, err
	}
	return count, nil
}
