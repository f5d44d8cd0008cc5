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

package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opentrusty/auth-service/internal/audit"
	"github.com/opentrusty/auth-service/internal/events"
	"github.com/opentrusty/auth-service/internal/observability/logger"
)

// Service provides tenant management business logic
type Service struct {
	repo        Repository
	auditLogger audit.Logger
	publisher   events.Publisher
}

// NewService creates a new tenant service
func NewService(repo Repository, auditLogger audit.Logger, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		repo:        repo,
		auditLogger: auditLogger,
		publisher:   publisher,
	}
}

// Create creates a new tenant
func (s *Service) Create(ctx context.Context, name, address string) (*Tenant, error) {
	name, address = strings.TrimSpace(name), strings.TrimSpace(address)
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: name must be %d to %d characters", ErrInvalidTenant, NameMinLen, NameMaxLen)
	}
	if !ValidAddress(address) {
		return nil, fmt.Errorf("%w: address must be %d to %d characters", ErrInvalidTenant, AddressMinLen, AddressMaxLen)
	}

	t := &Tenant{Name: name, Address: address}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	s.record(ctx, audit.TypeTenantCreated, events.TypeTenantCreated, t.ID, map[string]any{"name": t.Name})
	return t, nil
}

// Get retrieves a tenant by ID
func (s *Service) Get(ctx context.Context, id int64) (*Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of tenants and the total count
func (s *Service) List(ctx context.Context, filter Filter) ([]*Tenant, int, error) {
	if filter.CurrentPage < 1 {
		filter.CurrentPage = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = DefaultPerPage
	}
	filter.Query = strings.TrimSpace(filter.Query)
	return s.repo.List(ctx, filter)
}

// Update changes name and/or address. Empty values are left unchanged.
func (s *Service) Update(ctx context.Context, id int64, name, address string) error {
	var c Changes
	if v := strings.TrimSpace(name); v != "" {
		if !ValidName(v) {
			return fmt.Errorf("%w: name must be %d to %d characters", ErrInvalidTenant, NameMinLen, NameMaxLen)
		}
		c.Name = &v
	}
	if v := strings.TrimSpace(address); v != "" {
		if !ValidAddress(v) {
			return fmt.Errorf("%w: address must be %d to %d characters", ErrInvalidTenant, AddressMinLen, AddressMaxLen)
		}
		c.Address = &v
	}

	if c.Empty() {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		return nil
	}

	n, err := s.repo.Update(ctx, id, c)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if n == 0 {
		return ErrTenantNotFound
	}

	s.record(ctx, audit.TypeTenantUpdated, events.TypeTenantUpdated, id, nil)
	return nil
}

// Delete removes a tenant. Managers bound to it lose their tenant.
func (s *Service) Delete(ctx context.Context, id int64) error {
	n, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if n == 0 {
		return ErrTenantNotFound
	}

	s.record(ctx, audit.TypeTenantDeleted, events.TypeTenantDeleted, id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, auditType, eventType string, id int64, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	meta[audit.AttrTenantID] = id

	s.auditLogger.Log(ctx, audit.Event{
		Type:     auditType,
		Resource: audit.ResourceTenant,
		Metadata: meta,
	})

	if err := s.publisher.Publish(ctx, events.New(eventType, map[string]any{"id": id})); err != nil {
		slog.WarnContext(ctx, "failed to publish tenant event",
			logger.Operation(eventType),
			logger.TenantID(id),
			logger.Error(err),
		)
	}
}
