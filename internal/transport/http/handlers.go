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

// @title Auth Service API
// @version 1.0.0
// @description Multi-tenant authentication service with cookie-carried JWT sessions
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0

// @host localhost:5501
// @BasePath /

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name accessToken

// @securityDefinitions.apikey RefreshCookie
// @in cookie
// @name refreshToken

package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/auth-service/internal/audit"
	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/identity"
	"github.com/opentrusty/auth-service/internal/ratelimit"
	"github.com/opentrusty/auth-service/internal/session"
	"github.com/opentrusty/auth-service/internal/tenant"
	"github.com/opentrusty/auth-service/internal/token"
	"github.com/swaggo/swag"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultServiceName is reported by /health when none is configured
const DefaultServiceName = "auth-service"

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identityService *identity.Service
	sessionService  *session.Service
	tenantService   *tenant.Service
	authenticator   *authn.Authenticator
	verifier        *token.Verifier
	auditLogger     audit.Logger
	cookies         CookieConfig
	serviceName     string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	sessionService *session.Service,
	tenantService *tenant.Service,
	authenticator *authn.Authenticator,
	verifier *token.Verifier,
	auditLogger audit.Logger,
	cookies CookieConfig,
	serviceName string,
) *Handler {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	return &Handler{
		identityService: identityService,
		sessionService:  sessionService,
		tenantService:   tenantService,
		authenticator:   authenticator,
		verifier:        verifier,
		auditLogger:     auditLogger,
		cookies:         cookies,
		serviceName:     serviceName,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter ratelimit.Limiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// System
	r.Get("/health", h.HealthCheck)
	r.Get("/.well-known/jwks.json", h.JWKS)
	r.Get("/swagger/doc.json", h.SwaggerDoc)

	admin := func(next AuthenticatedHandlerFunc) http.HandlerFunc {
		return h.requireAccess(h.requireRole(next, identity.RoleAdmin))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Get("/self", h.requireAccess(h.Self))
		r.Post("/refresh", h.requireRefresh(h.Refresh))
		r.Post("/logout", h.requireSession(h.Logout))
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/", admin(h.CreateUser))
		r.Get("/", admin(h.ListUsers))
		r.Get("/{id}", admin(h.GetUser))
		r.Patch("/{id}", admin(h.UpdateUser))
		r.Delete("/{id}", admin(h.DeleteUser))
	})

	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", h.ListTenants)
		r.Get("/{id}", h.GetTenant)
		r.Post("/", admin(h.CreateTenant))
		r.Patch("/{id}", admin(h.UpdateTenant))
		r.Delete("/{id}", admin(h.DeleteTenant))
	})

	return r
}

// IDResponse carries the id of the affected entity
type IDResponse struct {
	ID int64 `json:"id" example:"1"`
}

// HealthCheck handles health check requests
// @Summary Health Check
// @Description Checks if the service is up and running
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": h.serviceName,
	})
}

// JWKS publishes the access token verification keys
// @Summary JSON Web Key Set
// @Description Public keys that verify access tokens
// @Tags System
// @Produce json
// @Success 200 {object} token.JWKS
// @Router /.well-known/jwks.json [get]
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	respondJSON(w, http.StatusOK, h.verifier.JWKS())
}

// SwaggerDoc serves the registered OpenAPI document
func (h *Handler) SwaggerDoc(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		respondError(w, http.StatusNotFound, "API documentation is not available")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
