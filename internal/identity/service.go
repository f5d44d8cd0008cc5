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
	"strings"

	"github.com/opentrusty/auth-service/internal/events"
	"github.com/opentrusty/auth-service/internal/observability/logger"
)

// SessionRevoker ends every refresh session of a user.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID int64) error
}

// RegisterInput is self-service sign-up data
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// CreateUserInput is admin-provided account data
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      Role
	IsBanned  bool
}

// UpdateUserInput is an admin update. Empty strings and nil pointers mean
// "unchanged".
type UpdateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      *Role
	IsBanned  *bool
}

// Service provides identity management business logic
type Service struct {
	repo      UserRepository
	hasher    PasswordHasher
	sessions  SessionRevoker
	publisher events.Publisher
}

// NewService creates a new identity service. sessions may be nil when
// mass revocation is not needed (e.g. the bootstrap command).
func NewService(repo UserRepository, hasher PasswordHasher, sessions SessionRevoker, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		hasher:    hasher,
		sessions:  sessions,
		publisher: publisher,
	}
}

// FindByEmail looks a user up by email. The password hash is cleared unless
// withHash is set.
func (s *Service) FindByEmail(ctx context.Context, email string, withHash bool) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	if !withHash {
		user.PasswordHash = ""
	}
	return user, nil
}

// FindByID looks a user up by id
func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Create hashes the password and stores a new user
func (s *Service) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	if in.Role.IsZero() {
		return nil, ErrInvalidRole
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         in.Role,
		IsBanned:     in.IsBanned,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return user, nil
}

// Update applies an update and returns the number of affected rows
func (s *Service) Update(ctx context.Context, id int64, in UpdateUserInput) (int64, error) {
	changes, err := s.buildChanges(in)
	if err != nil {
		return 0, err
	}
	if changes.Empty() {
		return 0, nil
	}
	return s.repo.Update(ctx, id, changes)
}

// Register creates a customer account
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}

	user, err := s.Create(ctx, CreateUserInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
		Role:      Customer(),
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeUserCreated, user)
	return user, nil
}

// Authenticate verifies credentials. Unknown email and wrong password both
// yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.FindByEmail(ctx, email, true)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !s.hasher.Compare(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if user.IsBanned {
		return nil, ErrUserBanned
	}

	user.PasswordHash = ""
	return user, nil
}

// CreateByAdmin creates a non-customer account
func (s *Service) CreateByAdmin(ctx context.Context, in CreateUserInput) (*User, error) {
	if in.Role.Is(RoleCustomer) {
		return nil, ErrCustomerManagedByAdmin
	}
	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return nil, err
	}

	user, err := s.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TypeUserCreated, user)
	return user, nil
}

// UpdateByAdmin updates a non-customer account. Changing the password or the
// role, or banning the user, revokes all of its refresh sessions. Refresh
// tokens carry the role they were issued with.
func (s *Service) UpdateByAdmin(ctx context.Context, id int64, in UpdateUserInput) error {
	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target.Role.Is(RoleCustomer) || (in.Role != nil && in.Role.Is(RoleCustomer)) {
		return ErrCustomerManagedByAdmin
	}

	affected, err := s.Update(ctx, id, in)
	if err != nil {
		return err
	}

	revoke := in.Password != "" || in.Role != nil || (in.IsBanned != nil && *in.IsBanned)
	if affected > 0 && revoke && s.sessions != nil {
		if err := s.sessions.RevokeAll(ctx, id); err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
	}
	return nil
}

// Get returns one user
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of users and the total count
func (s *Service) List(ctx context.Context, filter UserFilter) ([]*User, int, error) {
	if filter.CurrentPage < 1 {
		filter.CurrentPage = 1
	}
	if filter.PerPage < 1 {
		filter.PerPage = DefaultPerPage
	}
	filter.Query = strings.TrimSpace(filter.Query)
	return s.repo.List(ctx, filter)
}

// DeleteByAdmin deletes a non-customer account
func (s *Service) DeleteByAdmin(ctx context.Context, id int64) error {
	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target.Role.Is(RoleCustomer) {
		return ErrCustomerManagedByAdmin
	}

	affected, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}

	s.publish(ctx, events.TypeUserDeleted, target)
	return nil
}

// DefaultPerPage is the page size used when none is requested
const DefaultPerPage = 6

func (s *Service) ensureEmailFree(ctx context.Context, email string) error {
	_, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	switch {
	case err == nil:
		return ErrUserAlreadyExists
	case errors.Is(err, ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("failed to check email: %w", err)
	}
}

func (s *Service) buildChanges(in UpdateUserInput) (UserChanges, error) {
	var c UserChanges
	if v := strings.TrimSpace(in.FirstName); v != "" {
		c.FirstName = &v
	}
	if v := strings.TrimSpace(in.LastName); v != "" {
		c.LastName = &v
	}
	if v := strings.TrimSpace(in.Email); v != "" {
		c.Email = &v
	}
	if in.Password != "" {
		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return UserChanges{}, err
		}
		c.PasswordHash = &hash
	}
	if in.Role != nil {
		if in.Role.IsZero() {
			return UserChanges{}, ErrInvalidRole
		}
		role := *in.Role
		c.Role = &role
	}
	c.IsBanned = in.IsBanned
	return c, nil
}

func (s *Service) publish(ctx context.Context, eventType string, user *User) {
	payload := map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role.String(),
	}
	if tenantID, ok := user.Role.TenantID(); ok {
		payload["tenantId"] = tenantID
	}
	if err := s.publisher.Publish(ctx, events.New(eventType, payload)); err != nil {
		slog.WarnContext(ctx, "failed to publish user event",
			logger.Operation(eventType),
			logger.Error(err),
		)
	}
}
