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

package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/auth-service/internal/audit"
	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/authz"
	"github.com/opentrusty/auth-service/internal/identity"
	"github.com/opentrusty/auth-service/internal/observability/logger"
)

// Gate ordering:
// 1. requireAccess / requireRefresh are the only constructors of an
//    authenticated principal on the HTTP side
// 2. requireRole takes and returns AuthenticatedHandlerFunc, so it can only
//    run inside one of them
// 3. Handlers never read tokens from cookies themselves

// AuthenticatedHandlerFunc is a handler that runs after a successful
// authentication gate.
type AuthenticatedHandlerFunc func(w http.ResponseWriter, r *http.Request, p authn.Principal)

// SessionHandlerFunc runs after both the access and refresh gates passed.
type SessionHandlerFunc func(w http.ResponseWriter, r *http.Request, access, refresh authn.Principal)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.DebugContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// requireAccess authenticates the accessToken cookie
func (h *Handler) requireAccess(next AuthenticatedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.authenticator.AuthenticateAccess(r.Context(), readCookie(r, AccessTokenCookie))
		if err != nil {
			h.reject(w, r, "access", err)
			return
		}
		next(w, r.WithContext(audit.WithActor(r.Context(), actorID(p))), p)
	}
}

// requireRefresh authenticates the refreshToken cookie, including the
// revocation lookup
func (h *Handler) requireRefresh(next AuthenticatedHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := h.authenticator.AuthenticateRefresh(r.Context(), readCookie(r, RefreshTokenCookie))
		if err != nil {
			h.reject(w, r, "refresh", err)
			return
		}
		next(w, r.WithContext(audit.WithActor(r.Context(), actorID(p))), p)
	}
}

// requireSession needs both cookies and both must belong to the same user
func (h *Handler) requireSession(next SessionHandlerFunc) http.HandlerFunc {
	return h.requireAccess(func(w http.ResponseWriter, r *http.Request, access authn.Principal) {
		refresh, err := h.authenticator.AuthenticateRefresh(r.Context(), readCookie(r, RefreshTokenCookie))
		if err != nil {
			h.reject(w, r, "refresh", err)
			return
		}
		if refresh.UserID() != access.UserID() {
			slog.WarnContext(r.Context(), "access and refresh tokens belong to different users",
				logger.UserID(access.UserID()),
				logger.RefreshTokenID(refresh.RefreshTokenID()),
			)
			respondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r, access, refresh)
	})
}

// requireRole admits the principal only with one of roles
func (h *Handler) requireRole(next AuthenticatedHandlerFunc, roles ...identity.RoleKind) AuthenticatedHandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, p authn.Principal) {
		if err := authz.RequireRole(p, roles...); err != nil {
			h.auditLogger.Log(r.Context(), audit.Event{
				Type:      audit.TypeAccessDenied,
				Resource:  r.URL.Path,
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
				Metadata:  map[string]any{audit.AttrRole: string(p.Role())},
			})
			respondError(w, http.StatusForbidden, "Unauthorized Access")
			return
		}
		next(w, r, p)
	}
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, kind string, err error) {
	slog.DebugContext(r.Context(), "authentication failed",
		logger.RequestID(middleware.GetReqID(r.Context())),
		logger.String("token", kind),
		logger.Error(err),
	)
	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeTokenRejected,
		Resource:  audit.ResourceSession,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{audit.AttrReason: kind},
	})
	respondError(w, http.StatusUnauthorized, "Unauthorized")
}

func actorID(p authn.Principal) string {
	return strconv.FormatInt(p.UserID(), 10)
}
