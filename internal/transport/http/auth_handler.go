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
	"strconv"
	"strings"

	"github.com/opentrusty/auth-service/internal/audit"
	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/identity"
	"github.com/opentrusty/auth-service/internal/observability/logger"
)

// RegisterRequest represents registration data
type RegisterRequest struct {
	FirstName string `json:"firstName" example:"John"`
	LastName  string `json:"lastName" example:"Doe"`
	Email     string `json:"email" example:"user@example.com"`
	Password  string `json:"password" example:"Secret@123"`
}

func (req *RegisterRequest) validate() fieldErrors {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	var fe fieldErrors
	fe.email("email", req.Email, true)
	fe.minLength("firstName", "FirstName", req.FirstName, 1, true)
	fe.minLength("lastName", "LastName", req.LastName, 1, true)
	fe.password("password", req.Password, true)
	return fe
}

// Register handles customer self-registration
// @Summary Register a new customer
// @Description Creates a customer account and starts a session
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration Data"
// @Success 201 {object} IDResponse
// @Failure 400 {object} ErrorResponse
// @Router /auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.validate().respond(w) {
		return
	}

	user, err := h.identityService.Register(r.Context(), identity.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		if errors.Is(err, identity.ErrUserAlreadyExists) {
			respondError(w, http.StatusBadRequest, "User already registered, try login")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeUserRegistered,
		ActorID:   strconv.FormatInt(user.ID, 10),
		Resource:  audit.ResourceUser,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{audit.AttrUserID: user.ID, audit.AttrEmail: user.Email},
	})
	slog.InfoContext(r.Context(), "user registered", logger.UserID(user.ID))

	respondJSON(w, http.StatusCreated, IDResponse{ID: user.ID})
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Email    string `json:"email" example:"user@example.com"`
	Password string `json:"password" example:"Secret@123"`
}

func (req *LoginRequest) validate() fieldErrors {
	req.Email = strings.TrimSpace(req.Email)

	var fe fieldErrors
	fe.email("email", req.Email, true)
	fe.password("password", req.Password, true)
	return fe
}

// Login handles user login
// @Summary Login
// @Description Verifies credentials and sets the token cookies
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} IDResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.validate().respond(w) {
		return
	}

	user, err := h.identityService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) || errors.Is(err, identity.ErrUserBanned) {
			reason := "invalid_credentials"
			if errors.Is(err, identity.ErrUserBanned) {
				reason = "banned"
			}
			h.auditLogger.Log(r.Context(), audit.Event{
				Type:      audit.TypeLoginFailed,
				Resource:  audit.ResourceSession,
				IPAddress: getIPAddress(r),
				UserAgent: r.UserAgent(),
				Metadata:  map[string]any{audit.AttrEmail: req.Email, audit.AttrReason: reason},
			})
			respondError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	if !h.startSession(w, r, user) {
		return
	}

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLoginSuccess,
		ActorID:   strconv.FormatInt(user.ID, 10),
		Resource:  audit.ResourceSession,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  map[string]any{audit.AttrUserID: user.ID},
	})
	slog.InfoContext(r.Context(), "user logged in", logger.UserID(user.ID))

	respondJSON(w, http.StatusOK, IDResponse{ID: user.ID})
}

// Self returns the authenticated user's profile
// @Summary Current user
// @Description Returns the profile of the access token's user
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Success 200 {object} identity.User
// @Failure 401 {object} ErrorResponse
// @Router /auth/self [get]
func (h *Handler) Self(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	user, err := h.identityService.FindByID(r.Context(), p.UserID())
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			respondError(w, http.StatusUnauthorized, "Invalid accessToken")
			return
		}
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// Refresh rotates the refresh session
// @Summary Refresh tokens
// @Description Replaces the refresh session and sets new token cookies
// @Tags Auth
// @Produce json
// @Security RefreshCookie
// @Success 200 {object} IDResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	pair, err := h.sessionService.Rotate(r.Context(), p)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.setTokenCookies(w, pair)

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeTokenRefreshed,
		Resource:  audit.ResourceSession,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata: map[string]any{
			audit.AttrUserID:         p.UserID(),
			audit.AttrRefreshTokenID: pair.RefreshTokenID,
		},
	})
	slog.InfoContext(r.Context(), "user tokens refreshed", logger.UserID(p.UserID()))

	respondJSON(w, http.StatusOK, IDResponse{ID: p.UserID()})
}

// Logout revokes the refresh session and clears the cookies
// @Summary Logout
// @Description Deletes the refresh session and clears both token cookies
// @Tags Auth
// @Produce json
// @Security CookieAuth
// @Security RefreshCookie
// @Success 200 {object} IDResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request, access, refresh authn.Principal) {
	if err := h.sessionService.Revoke(r.Context(), refresh.RefreshTokenID()); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.clearTokenCookies(w)

	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      audit.TypeLogout,
		Resource:  audit.ResourceSession,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata: map[string]any{
			audit.AttrUserID:         access.UserID(),
			audit.AttrRefreshTokenID: refresh.RefreshTokenID(),
		},
	})

	respondJSON(w, http.StatusOK, IDResponse{ID: access.UserID()})
}

// startSession issues a token pair for user and sets the cookies. It
// reports false after writing an error response.
func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *identity.User) bool {
	pair, err := h.sessionService.Issue(r.Context(), user.ID, user.Role.Kind())
	if err != nil {
		respondServiceError(w, r, err)
		return false
	}
	h.setTokenCookies(w, pair)
	return true
}
