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

package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Event types
const (
	TypeUserRegistered     = "user_registered"
	TypeLoginSuccess       = "login_success"
	TypeLoginFailed        = "login_failed"
	TypeTokenRefreshed     = "token_refreshed"
	TypeTokenRejected      = "token_rejected"
	TypeLogout             = "logout"
	TypeUserCreated        = "user_created"
	TypeUserUpdated        = "user_updated"
	TypeUserDeleted        = "user_deleted"
	TypeTenantCreated      = "tenant_created"
	TypeTenantUpdated      = "tenant_updated"
	TypeTenantDeleted      = "tenant_deleted"
	TypeAdminBootstrapped  = "admin_bootstrapped"
	TypeAccessDenied       = "access_denied"
	TypeSessionsRevokedAll = "sessions_revoked_all"
)

// Resources
const (
	ResourceUser    = "user"
	ResourceTenant  = "tenant"
	ResourceSession = "session"
)

// Actors that are not users
const (
	ActorSystemBootstrap = "system:bootstrap"
	ActorAnonymous       = "anonymous"
)

// Metadata keys
const (
	AttrUserID         = "user_id"
	AttrTenantID       = "tenant_id"
	AttrEmail          = "email"
	AttrRole           = "role"
	AttrReason         = "reason"
	AttrRefreshTokenID = "refresh_token_id"
)

// Event represents an auditable action
type Event struct {
	Type      string
	TenantID  string
	ActorID   string
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
	IPAddress string
	UserAgent string
}

type actorKey struct{}

// WithActor attaches the acting user id to ctx
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor set by WithActor, or ActorAnonymous
func ActorFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(actorKey{}).(string); ok && id != "" {
		return id
	}
	return ActorAnonymous
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger implements Logger using slog
type SlogLogger struct{}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ActorID == "" {
		event.ActorID = ActorFromContext(ctx)
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp),
	}

	if event.TenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", event.TenantID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)
}

var secretMarkers = []string{"password", "secret", "token", "key", "hash", "credential", "authorization", "cookie"}

// isSecret checks if a key likely contains a secret. Identifier keys such
// as refresh_token_id are not secrets.
func isSecret(key string) bool {
	k := strings.ToLower(key)
	if strings.HasSuffix(k, "_id") {
		return false
	}
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
