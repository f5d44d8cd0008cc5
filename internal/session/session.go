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

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/identity"
	"github.com/opentrusty/auth-service/internal/observability/logger"
	"github.com/opentrusty/auth-service/internal/observability/metrics"
	"github.com/opentrusty/auth-service/internal/observability/tracing"
	"github.com/opentrusty/auth-service/internal/token"
)

// ErrPersistence wraps refresh token store failures
var ErrPersistence = errors.New("session persistence failure")

// RefreshToken is the server-side record backing one refresh token. Rows
// are created and deleted, never updated.
type RefreshToken struct {
	ID        int64
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefreshTokenStore persists refresh token records
type RefreshTokenStore interface {
	// Create inserts a record and returns it with its ID
	Create(ctx context.Context, userID int64, expiresAt time.Time) (*RefreshToken, error)

	// DeleteByID removes one record. Zero rows affected is not an error.
	DeleteByID(ctx context.Context, id int64) (int64, error)

	// DeleteAllForUser removes every record of a user
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)

	// Exists reports whether the record id belongs to userID
	Exists(ctx context.Context, id, userID int64) (bool, error)

	// DeleteExpired removes records past their expiry
	DeleteExpired(ctx context.Context) (int64, error)
}

// Pair is a freshly issued credential set
type Pair struct {
	AccessToken    string
	RefreshToken   string
	RefreshTokenID int64
}

// Service issues, rotates and revokes refresh sessions
type Service struct {
	store   RefreshTokenStore
	codec   *token.Codec
	metrics *metrics.SessionMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates a session service. A nil metrics uses no-op
// instruments.
func NewService(store RefreshTokenStore, codec *token.Codec, m *metrics.SessionMetrics) *Service {
	if m == nil {
		m, _ = metrics.NewSessionMetrics(nil)
	}
	return &Service{
		store:   store,
		codec:   codec,
		metrics: m,
		tracer:  otel.Tracer("auth-service/session"),
		now:     time.Now,
	}
}

// Issue signs an access token, stores a refresh record and signs a refresh
// token that references it.
func (s *Service) Issue(ctx context.Context, userID int64, role identity.RoleKind) (*Pair, error) {
	ctx, span := s.tracer.Start(ctx, "session.Issue", trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	pair, err := s.issue(ctx, userID, role)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	s.metrics.Issued(ctx)
	return pair, nil
}

func (s *Service) issue(ctx context.Context, userID int64, role identity.RoleKind) (*Pair, error) {
	access, err := s.codec.GenerateAccess(token.AccessClaims{UserID: userID, Role: string(role)})
	if err != nil {
		return nil, err
	}

	record, err := s.store.Create(ctx, userID, s.now().Add(s.codec.RefreshTTL()))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create refresh token: %v", ErrPersistence, err)
	}

	refresh, err := s.codec.GenerateRefresh(token.RefreshClaims{
		UserID:         userID,
		Role:           string(role),
		RefreshTokenID: record.ID,
	})
	if err != nil {
		return nil, err
	}

	return &Pair{AccessToken: access, RefreshToken: refresh, RefreshTokenID: record.ID}, nil
}

// Rotate replaces the principal's refresh session with a new pair.
//
// Two concurrent rotations of the same token both pass the revocation check
// before either delete lands, so both succeed and leave two live rows.
func (s *Service) Rotate(ctx context.Context, p authn.Principal) (*Pair, error) {
	ctx, span := s.tracer.Start(ctx, "session.Rotate", trace.WithAttributes(attribute.Int64("user.id", p.UserID())))
	defer span.End()

	if !p.Valid() || p.RefreshTokenID() == 0 {
		err := fmt.Errorf("%w: principal has no refresh session", authn.ErrUnauthenticated)
		tracing.RecordError(span, err)
		return nil, err
	}

	if _, err := s.store.DeleteByID(ctx, p.RefreshTokenID()); err != nil {
		err = fmt.Errorf("%w: failed to delete refresh token: %v", ErrPersistence, err)
		tracing.RecordError(span, err)
		return nil, err
	}

	pair, err := s.issue(ctx, p.UserID(), p.Role())
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	s.metrics.Rotated(ctx)
	return pair, nil
}

// Revoke deletes one refresh session
func (s *Service) Revoke(ctx context.Context, refreshTokenID int64) error {
	n, err := s.store.DeleteByID(ctx, refreshTokenID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete refresh token: %v", ErrPersistence, err)
	}
	s.metrics.Revoked(ctx, n)
	return nil
}

// RevokeAll deletes every refresh session of a user
func (s *Service) RevokeAll(ctx context.Context, userID int64) error {
	n, err := s.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: failed to delete refresh tokens: %v", ErrPersistence, err)
	}

	s.metrics.Revoked(ctx, n)
	slog.InfoContext(ctx, "refresh sessions revoked",
		logger.Component("session"),
		logger.UserID(userID),
		logger.RowsAffected(n),
	)
	return nil
}

// IsRevoked reports whether the refresh record is gone
func (s *Service) IsRevoked(ctx context.Context, refreshTokenID, userID int64) (bool, error) {
	exists, err := s.store.Exists(ctx, refreshTokenID, userID)
	if err != nil {
		return false, fmt.Errorf("%w: failed to look up refresh token: %v", ErrPersistence, err)
	}
	return !exists, nil
}

// CleanupExpired purges expired refresh records
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete expired refresh tokens: %v", ErrPersistence, err)
	}
	s.metrics.Purged(ctx, n)
	return n, nil
}
