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
	"strings"

	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/observability/logger"
	"github.com/opentrusty/auth-service/internal/tenant"
)

// TenantRequest represents tenant data. On update both fields are optional.
type TenantRequest struct {
	Name    string `json:"name" example:"My Corporation"`
	Address string `json:"address" example:"221B Baker Street, London"`
}

func (req *TenantRequest) validate(required bool) fieldErrors {
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)

	var fe fieldErrors
	switch {
	case req.Name == "":
		if required {
			fe.add(inBody, "name", "Tenant name is required")
		}
	case !tenant.ValidName(req.Name):
		fe.add(inBody, "name", "Tenant name atleast "+strconv.Itoa(tenant.NameMinLen)+" & atmost "+strconv.Itoa(tenant.NameMaxLen)+" characters")
	}
	switch {
	case req.Address == "":
		if required {
			fe.add(inBody, "address", "Tenant address is required")
		}
	case !tenant.ValidAddress(req.Address):
		fe.add(inBody, "address", "Tenant address atleast "+strconv.Itoa(tenant.AddressMinLen)+" & atmost "+strconv.Itoa(tenant.AddressMaxLen)+" characters")
	}
	return fe
}

// CreateTenant handles tenant creation
// @Summary Create Tenant
// @Description Create a new tenant
// @Tags Tenant
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body TenantRequest true "Tenant Data"
// @Success 201 {object} IDResponse
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /tenants [post]
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	var req TenantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.validate(true).respond(w) {
		return
	}

	t, err := h.tenantService.Create(r.Context(), req.Name, req.Address)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	slog.InfoContext(r.Context(), "tenant created", logger.TenantID(t.ID))
	respondJSON(w, http.StatusCreated, IDResponse{ID: t.ID})
}

// TenantListResponse is one page of tenants
type TenantListResponse struct {
	CurrentPage int              `json:"currentPage"`
	PerPage     int              `json:"perPage"`
	Total       int              `json:"total"`
	Data        []*tenant.Tenant `json:"data"`
}

// ListTenants handles paged tenant search
// @Summary List Tenants
// @Tags Tenant
// @Produce json
// @Param q query string false "Matches name or address"
// @Param currentPage query int false "Page number" default(1)
// @Param perPage query int false "Page size" default(6)
// @Success 200 {object} TenantListResponse
// @Router /tenants [get]
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	filter := tenant.Filter{Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	filter.CurrentPage, filter.PerPage = pageParams(r, tenant.DefaultPerPage)

	tenants, total, err := h.tenantService.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if tenants == nil {
		tenants = []*tenant.Tenant{}
	}

	respondJSON(w, http.StatusOK, TenantListResponse{
		CurrentPage: filter.CurrentPage,
		PerPage:     filter.PerPage,
		Total:       total,
		Data:        tenants,
	})
}

// GetTenant returns one tenant
// @Summary Get Tenant
// @Tags Tenant
// @Produce json
// @Param id path int true "Tenant ID"
// @Success 200 {object} tenant.Tenant
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{id} [get]
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id, fe := pathID(r, "Tenant")
	if fe.respond(w) {
		return
	}

	t, err := h.tenantService.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// UpdateTenant handles tenant updates
// @Summary Update Tenant
// @Tags Tenant
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param id path int true "Tenant ID"
// @Param request body TenantRequest true "Changes"
// @Success 200 {object} IDResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{id} [patch]
func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	id, fe := pathID(r, "Tenant")
	if fe.respond(w) {
		return
	}

	var req TenantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.validate(false).respond(w) {
		return
	}

	if err := h.tenantService.Update(r.Context(), id, req.Name, req.Address); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, IDResponse{ID: id})
}

// DeleteTenant handles tenant deletion
// @Summary Delete Tenant
// @Description Managers of the tenant are kept without a tenant
// @Tags Tenant
// @Produce json
// @Security CookieAuth
// @Param id path int true "Tenant ID"
// @Success 200 {object} IDResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{id} [delete]
func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request, p authn.Principal) {
	id, fe := pathID(r, "Tenant")
	if fe.respond(w) {
		return
	}

	if err := h.tenantService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, IDResponse{ID: id})
}
