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

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opentrusty/auth-service/internal/audit"
	"github.com/opentrusty/auth-service/internal/observability/logger"
)

// AdminSeed describes the initial administrator account
type AdminSeed struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// BootstrapService manages the initial initialization of the system
type BootstrapService struct {
	identityService *Service
	auditLogger     audit.Logger
}

// NewBootstrapService creates a new bootstrap service
func NewBootstrapService(identityService *Service, auditLogger audit.Logger) *BootstrapService {
	return &BootstrapService{
		identityService: identityService,
		auditLogger:     auditLogger,
	}
}

// Bootstrap creates the seed administrator unless it already exists. An
// empty seed email disables bootstrapping.
func (s *BootstrapService) Bootstrap(ctx context.Context, seed AdminSeed) error {
	if seed.Email == "" {
		return nil
	}

	if !IsValidEmail(seed.Email) {
		return fmt.Errorf("bootstrap admin email %q is invalid", seed.Email)
	}
	if !IsStrongPassword(seed.Password) {
		return errors.New("bootstrap admin password does not meet the password policy")
	}

	existing, err := s.identityService.FindByEmail(ctx, seed.Email, false)
	switch {
	case err == nil:
		if !existing.Role.Is(RoleAdmin) {
			return fmt.Errorf("bootstrap email %s belongs to a %s account", seed.Email, existing.Role)
		}
		slog.InfoContext(ctx, "bootstrap admin already exists",
			logger.Component("bootstrap"),
			logger.UserID(existing.ID),
		)
		return nil
	case !errors.Is(err, ErrUserNotFound):
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	admin, err := s.identityService.Create(ctx, CreateUserInput{
		FirstName: seed.FirstName,
		LastName:  seed.LastName,
		Email:     seed.Email,
		Password:  seed.Password,
		Role:      Admin(),
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeAdminBootstrapped,
		ActorID:  audit.ActorSystemBootstrap,
		Resource: audit.ResourceUser,
		Metadata: map[string]any{
			audit.AttrUserID: admin.ID,
			audit.AttrEmail:  admin.Email,
		},
	})

	slog.InfoContext(ctx, "bootstrap admin created",
		logger.Component("bootstrap"),
		logger.UserID(admin.ID),
	)
	return nil
}
