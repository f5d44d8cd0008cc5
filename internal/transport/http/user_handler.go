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
	"encoding/json"
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

const msgTenantRequired = "tenantId is required when role is MANAGER"

// CreateUserRequest represents admin user creation data
type CreateUserRequest struct {
	FirstName string          `json:"firstName" example:"Jane"`
	LastName  string          `json:"lastName" example:"Doe"`
	Email     string          `json:"email" example:"manager@example.com"`
	Password  string          `json:"password" example:"Secret@123"`
	Role      string          `json:"role" example:"manager"`
	TenantID  json.Number     `json:"tenantId,omitempty" swaggertype:"integer" example:"1"`
	IsBanned  json.RawMessage `json:"isBanned,omitempty" swaggertype:"boolean"`
}

func (req *CreateUserRequest) validate() (identity.CreateUserInput, fieldErrors) {
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	var fe fieldErrors
	fe.email("email", req.Email, true)
	fe.minLength("firstName", "FirstName", req.FirstName, 2, true)
	fe.minLength("lastName", "LastName", req.LastName, 2, true)
	fe.password("password", req.Password, true)
	tenantID := fe.optionalInt64("tenantId", req.TenantID)
	banned := fe.optionalBool("isBanned", req.IsBanned)

	var role identity.Role
	if req.Role == "" {
		fe.add(inBody, "role", "Role is required")
	} else if kind := fe.roleKind(inBody, req.Role); kind.Valid() {
		parsed, err := identity.ParseRole(kind, tenantID)
		if err != nil {
			fe.add(inBody, "tenantId", msgTenantRequired)
		}
		role = parsed
	}

	in := identity.CreateUserInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      role,
	}
	if banned != nil {
		in.IsBanned = *banned
	}
	return in, fe
}

// CreateUser handles admin user creation
// @Summary Create user
// @Description Creates an admin or manager account. Customers register themselves.
// @Tags Users
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body CreateUserRequest true "User Data"
// @Success 201 {object} IDResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /users [post]
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	var req CreateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, fe := req.validate()
	if fe.respond(w) {
		return
	}

	user, err := h.identityService.CreateByAdmin(r.Context(), in)
	if err != nil {
		if errors.Is(err, identity.ErrCustomerManagedByAdmin) {
			respondError(w, http.StatusBadRequest, "Customer can't be created by admin")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	h.auditUser(r, audit.TypeUserCreated, user.ID, map[string]any{
		audit.AttrEmail: user.Email,
		audit.AttrRole:  user.Role.String(),
	})
	slog.InfoContext(r.Context(), "user created",
		logger.UserID(user.ID),
		logger.Role(user.Role.String()),
	)

	respondJSON(w, http.StatusCreated, IDResponse{ID: user.ID})
}

// UserListResponse is one page of users
type UserListResponse struct {
	CurrentPage int              `json:"currentPage"`
	PerPage     int              `json:"perPage"`
	Total       int              `json:"total"`
	Data        []*identity.User `json:"data"`
}

// ListUsers handles paged user search
// @Summary List users
// @Tags Users
// @Produce json
// @Security CookieAuth
// @Param q query string false "Matches name or email"
// @Param role query string false "Role filter"
// @Param isBanned query bool false "Ban filter"
// @Param currentPage query int false "Page number" default(1)
// @Param perPage query int false "Page size" default(6)
// @Success 200 {object} UserListResponse
// @Failure 400 {object} ErrorResponse
// @Router /users [get]
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	q := r.URL.Query()
	filter := identity.UserFilter{Query: strings.TrimSpace(q.Get("q"))}
	filter.CurrentPage, filter.PerPage = pageParams(r, identity.DefaultPerPage)

	var fe fieldErrors
	if role := q.Get("role"); role != "" {
		filter.Role = fe.roleKind(inQuery, role)
	}
	if raw := q.Get("isBanned"); raw != "" {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			fe.add(inQuery, "isBanned", "isBanned should be a boolean")
		} else {
			filter.IsBanned = &banned
		}
	}
	if fe.respond(w) {
		return
	}

	users, total, err := h.identityService.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []*identity.User{}
	}

	respondJSON(w, http.StatusOK, UserListResponse{
		CurrentPage: filter.CurrentPage,
		PerPage:     filter.PerPage,
		Total:       total,
		Data:        users,
	})
}

// GetUser returns one user
// @Summary Get user
// @Tags Users
// @Produce json
// @Security CookieAuth
// @Param id path int true "User ID"
// @Success 200 {object} identity.User
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	id, fe := pathID(r, "User")
	if fe.respond(w) {
		return
	}

	user, err := h.identityService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateUserRequest represents an admin update. Omitted fields are
// unchanged.
type UpdateUserRequest struct {
	FirstName string          `json:"firstName,omitempty"`
	LastName  string          `json:"lastName,omitempty"`
	Email     string          `json:"email,omitempty"`
	Password  string          `json:"password,omitempty"`
	Role      string          `json:"role,omitempty"`
	TenantID  json.Number     `json:"tenantId,omitempty" swaggertype:"integer"`
	IsBanned  json.RawMessage `json:"isBanned,omitempty" swaggertype:"boolean"`
}

func (req *UpdateUserRequest) validate() (identity.UpdateUserInput, fieldErrors) {
	in := identity.UpdateUserInput{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
	}

	var fe fieldErrors
	fe.email("email", in.Email, false)
	fe.minLength("firstName", "FirstName", in.FirstName, 2, false)
	fe.minLength("lastName", "LastName", in.LastName, 2, false)
	fe.password("password", in.Password, false)
	tenantID := fe.optionalInt64("tenantId", req.TenantID)
	in.IsBanned = fe.optionalBool("isBanned", req.IsBanned)

	if req.Role != "" {
		if kind := fe.roleKind(inBody, req.Role); kind.Valid() {
			role, err := identity.ParseRole(kind, tenantID)
			if err != nil {
				fe.add(inBody, "tenantId", msgTenantRequired)
			} else {
				in.Role = &role
			}
		}
	}
	return in, fe
}

// UpdateUser handles admin user updates
// @Summary Update user
// @Description Changing the password or banning the user ends all of its sessions
// @Tags Users
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Changes"
// @Success 200 {object} IDResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id} [patch]
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	id, fe := pathID(r, "User")
	if fe.respond(w) {
		return
	}

	var req UpdateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, fe := req.validate()
	if fe.respond(w) {
		return
	}

	if err := h.identityService.UpdateByAdmin(r.Context(), id, in); err != nil {
		if errors.Is(err, identity.ErrCustomerManagedByAdmin) {
			respondError(w, http.StatusBadRequest, "Customer can't be updated by admin")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	meta := map[string]any{}
	if in.Role != nil {
		meta[audit.AttrRole] = in.Role.String()
	}
	if in.IsBanned != nil {
		meta["is_banned"] = *in.IsBanned
	}
	if in.Password != "" {
		meta[audit.AttrReason] = "password_reset"
	}
	h.auditUser(r, audit.TypeUserUpdated, id, meta)

	respondJSON(w, http.StatusOK, IDResponse{ID: id})
}

// DeleteUser handles admin user deletion
// @Summary Delete user
// @Tags Users
// @Produce json
// @Security CookieAuth
// @Param id path int true "User ID"
// @Success 200 {object} IDResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{id} [delete]
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	id, fe := pathID(r, "User")
	if fe.respond(w) {
		return
	}

	if err := h.identityService.DeleteByAdmin(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrCustomerManagedByAdmin) {
			respondError(w, http.StatusBadRequest, "Customer can't be deleted by admin")
			return
		}
		respondServiceError(w, r, err)
		return
	}

	h.auditUser(r, audit.TypeUserDeleted, id, nil)
	respondJSON(w, http.StatusOK, IDResponse{ID: id})
}

func (h *Handler) auditUser(r *http.Request, eventType string, userID int64, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta[audit.AttrUserID] = userID
	h.auditLogger.Log(r.Context(), audit.Event{
		Type:      eventType,
		Resource:  audit.ResourceUser,
		IPAddress: getIPAddress(r),
		UserAgent: r.UserAgent(),
		Metadata:  meta,
	})
}
