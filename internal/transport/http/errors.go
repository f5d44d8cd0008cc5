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
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/authz"
	"github.com/opentrusty/auth-service/internal/identity"
	"github.com/opentrusty/auth-service/internal/observability/logger"
	"github.com/opentrusty/auth-service/internal/tenant"
)

// Error types carried in the "type" field of an error entry
const (
	errTypeField        = "field"
	errTypeBadRequest   = "BadRequestError"
	errTypeUnauthorized = "UnauthorizedError"
	errTypeForbidden    = "ForbiddenError"
	errTypeNotFound     = "NotFoundError"
	errTypeTooMany      = "TooManyRequestsError"
	errTypeInternal     = "InternalServerError"
)

const msgInternal = "Internal server error"

// APIError is one entry of an error response
type APIError struct {
	Type     string `json:"type" example:"field"`
	Msg      string `json:"msg" example:"Email is invalid"`
	Path     string `json:"path" example:"email"`
	Location string `json:"location" example:"body"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Errors []APIError `json:"errors"`
}

func respondErrors(w http.ResponseWriter, status int, errs []APIError) {
	respondJSON(w, status, ErrorResponse{Errors: errs})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondErrors(w, status, []APIError{{Type: errorType(status), Msg: message}})
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return errTypeBadRequest
	case http.StatusUnauthorized:
		return errTypeUnauthorized
	case http.StatusForbidden:
		return errTypeForbidden
	case http.StatusNotFound:
		return errTypeNotFound
	case http.StatusTooManyRequests:
		return errTypeTooMany
	default:
		return errTypeInternal
	}
}

// respondServiceError maps a domain error to its status code. Anything
// unrecognised is logged and reported as a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, tenant.ErrTenantNotFound):
		respondError(w, http.StatusNotFound, "Tenant not found")
	case errors.Is(err, identity.ErrUserAlreadyExists):
		respondError(w, http.StatusBadRequest, "User already exist")
	case errors.Is(err, identity.ErrUnknownTenant):
		respondError(w, http.StatusBadRequest, "Tenant does not exist")
	case errors.Is(err, identity.ErrTenantRequired):
		respondError(w, http.StatusBadRequest, "tenantId is required when role is MANAGER")
	case errors.Is(err, identity.ErrInvalidRole):
		respondError(w, http.StatusBadRequest, "Invalid role")
	case errors.Is(err, identity.ErrPasswordTooLong):
		respondError(w, http.StatusBadRequest, "Password is too long")
	case errors.Is(err, tenant.ErrInvalidTenant):
		respondError(w, http.StatusBadRequest, "Invalid tenant data")
	case errors.Is(err, authn.ErrMissingToken), errors.Is(err, authn.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, authz.ErrForbidden):
		respondError(w, http.StatusForbidden, "Unauthorized Access")
	default:
		slog.ErrorContext(r.Context(), "request failed",
			logger.RequestID(middleware.GetReqID(r.Context())),
			logger.Method(r.Method),
			logger.Path(r.URL.Path),
			logger.Error(err),
		)
		respondError(w, http.StatusInternalServerError, msgInternal)
	}
}
