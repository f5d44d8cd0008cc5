// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/opentrusty/auth-service/internal/session"
)

// TokenRepository implements session.RefreshTokenStore
type TokenRepository struct {
	db *DB
}

// NewTokenRepository creates a new refresh token repository
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a refresh token record
func (r *TokenRepository) Create(ctx context.Context, userID int64, expiresAt time.Time) (*session.RefreshToken, error) {
	rt := &session.RefreshToken{UserID: userID}
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO tokens (user_id, expires_at)
		VALUES ($1, $2)
		RETURNING id, expires_at, created_at, updated_at
	`, userID, expiresAt).Scan(&rt.ID, &rt.ExpiresAt, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return rt, nil
}

// DeleteByID deletes one record
func (r *TokenRepository) DeleteByID(ctx context.Context, id int64) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM tokens WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete refresh token: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteAllForUser deletes every record of a user
func (r *TokenRepository) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete refresh tokens for user: %w", err)
	}
	return result.RowsAffected(), nil
}

// Exists reports whether record id exists for userID
func (r *TokenRepository) Exists(ctx context.Context, id, userID int64) (bool, error) {
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM tokens WHERE id = $1 AND user_id = $2)
	`, id, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check refresh token: %w", err)
	}
	return exists, nil
}

// DeleteExpired deletes records past their expiry
func (r *TokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountForUser returns the number of live records of a user
func (r *TokenRepository) CountForUser(ctx context.Context, userID int64) (int, error) {
	var n int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count refresh tokens: %w", err)
	}
	return n, nil
}
