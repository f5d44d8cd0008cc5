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
	"time"
)

// Domain errors
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrUserAlreadyExists      = errors.New("user already exists")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrUserBanned             = errors.New("user is banned")
	ErrInvalidRole            = errors.New("invalid role")
	ErrTenantRequired         = errors.New("tenant is required for manager role")
	ErrUnknownTenant          = errors.New("tenant does not exist")
	ErrCustomerManagedByAdmin = errors.New("customer accounts cannot be managed by admin")
	ErrPasswordTooLong        = errors.New("password exceeds 72 bytes")
)

// User represents a user account. PasswordHash is populated only when the
// caller asked for it.
type User struct {
	ID           int64       `json:"id"`
	FirstName    string      `json:"firstName"`
	LastName     string      `json:"lastName"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         Role        `json:"role"`
	Tenant       *UserTenant `json:"tenant"`
	IsBanned     bool        `json:"isBanned"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// UserTenant is the tenant a manager belongs to, as embedded in user views.
type UserTenant struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// UserChanges is a partial update. Nil fields are left untouched. Setting
// Role always rewrites tenant_id: the manager's tenant, or NULL otherwise.
type UserChanges struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PasswordHash *string
	Role         *Role
	IsBanned     *bool
}

// Empty reports whether the change set would modify nothing.
func (c UserChanges) Empty() bool {
	return c.FirstName == nil && c.LastName == nil && c.Email == nil &&
		c.PasswordHash == nil && c.Role == nil && c.IsBanned == nil
}

// UserFilter selects a page of users.
type UserFilter struct {
	Query       string
	Role        RoleKind
	IsBanned    *bool
	CurrentPage int
	PerPage     int
}

// Offset returns the number of rows to skip for the current page.
func (f UserFilter) Offset() int {
	if f.CurrentPage < 1 {
		return 0
	}
	return (f.CurrentPage - 1) * f.PerPage
}

// UserRepository defines the interface for user persistence
type UserRepository interface {
	// Create inserts the user and fills ID and timestamps
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user with its tenant, without the password hash
	GetByID(ctx context.Context, id int64) (*User, error)

	// GetByEmail retrieves a user including the password hash
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update applies changes and returns the number of rows affected
	Update(ctx context.Context, id int64, changes UserChanges) (int64, error)

	// Delete removes a user; its refresh tokens cascade
	Delete(ctx context.Context, id int64) (int64, error)

	// List returns one page of users and the total match count
	List(ctx context.Context, filter UserFilter) ([]*User, int, error)
}
