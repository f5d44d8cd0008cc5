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

// Package authn turns raw tokens into authenticated principals.
package authn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentrusty/auth-service/internal/identity"
	"github.com/opentrusty/auth-service/internal/observability/logger"
	"github.com/opentrusty/auth-service/internal/observability/metrics"
	"github.com/opentrusty/auth-service/internal/token"
)

// Errors
var (
	ErrMissingToken    = errors.New("token missing")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// Principal is the verified identity behind a request. Only an
// Authenticator produces a valid Principal; the zero value is never valid.
type Principal struct {
	userID         int64
	role           identity.RoleKind
	refreshTokenID int64
	valid          bool
}

// UserID returns the authenticated user id
func (p Principal) UserID() int64 { return p.userID }

// Role returns the role carried by the token
func (p Principal) Role() identity.RoleKind { return p.role }

// RefreshTokenID is set only for principals built from a refresh token
func (p Principal) RefreshTokenID() int64 { return p.refreshTokenID }

// Valid reports whether the principal came from a successful authentication
func (p Principal) Valid() bool { return p.valid }

// RevocationChecker reports whether a refresh session is gone
type RevocationChecker interface {
	IsRevoked(ctx context.Context, refreshTokenID, userID int64) (bool, error)
}

// Authenticator verifies access and refresh tokens
type Authenticator struct {
	codec       *token.Codec
	revocations RevocationChecker
	metrics     *metrics.SessionMetrics
}

// NewAuthenticator creates an authenticator. A nil metrics uses no-op
// instruments.
func NewAuthenticator(codec *token.Codec, revocations RevocationChecker, m *metrics.SessionMetrics) *Authenticator {
	if m == nil {
		m, _ = metrics.NewSessionMetrics(nil)
	}
	return &Authenticator{codec: codec, revocations: revocations, metrics: m}
}

// AuthenticateAccess verifies an access token with the public key
func (a *Authenticator) AuthenticateAccess(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	claims, err := a.codec.VerifyAccess(raw)
	if err != nil {
		a.metrics.Rejected(ctx, "access", "invalid")
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	role := identity.RoleKind(claims.Role)
	if !role.Valid() {
		a.metrics.Rejected(ctx, "access", "role")
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}

	return Principal{userID: claims.UserID, role: role, valid: true}, nil
}

// AuthenticateRefresh verifies a refresh token and checks that its session
// still exists. A failing revocation lookup denies the request.
func (a *Authenticator) AuthenticateRefresh(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	claims, err := a.codec.VerifyRefresh(raw)
	if err != nil {
		a.metrics.Rejected(ctx, "refresh", "invalid")
		return Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	role := identity.RoleKind(claims.Role)
	if !role.Valid() {
		a.metrics.Rejected(ctx, "refresh", "role")
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrUnauthenticated, claims.Role)
	}

	revoked, err := a.revocations.IsRevoked(ctx, claims.RefreshTokenID, claims.UserID)
	if err != nil {
		slog.WarnContext(ctx, "revocation check failed, denying refresh",
			logger.Component("authn"),
			logger.UserID(claims.UserID),
			logger.RefreshTokenID(claims.RefreshTokenID),
			logger.Error(err),
		)
		a.metrics.Rejected(ctx, "refresh", "lookup_failed")
		return Principal{}, fmt.Errorf("%w: revocation check failed", ErrUnauthenticated)
	}
	if revoked {
		a.metrics.Rejected(ctx, "refresh", "revoked")
		return Principal{}, fmt.Errorf("%w: refresh token revoked", ErrUnauthenticated)
	}

	return Principal{
		userID:         claims.UserID,
		role:           role,
		refreshTokenID: claims.RefreshTokenID,
		valid:          true,
	}, nil
}
