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
	"errors"
	"time"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrInvalidTenant  = errors.New("invalid tenant")
)

// Field length limits
const (
	NameMinLen    = 3
	NameMaxLen    = 100
	AddressMinLen = 10
	AddressMaxLen = 255
)

// DefaultPerPage is the page size used when none is requested
const DefaultPerPage = 6

// Tenant is an organisation that managers can be bound to
type Tenant struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Changes is a partial update. Nil fields are left untouched.
type Changes struct {
	Name    *string
	Address *string
}

// Empty reports whether the change set would modify nothing
func (c Changes) Empty() bool {
	return c.Name == nil && c.Address == nil
}

// Filter selects a page of tenants
type Filter struct {
	Query       string
	CurrentPage int
	PerPage     int
}

// Offset returns the number of rows to skip for the current page
func (f Filter) Offset() int {
	if f.CurrentPage < 1 {
		return 0
	}
	return (f.CurrentPage - 1) * f.PerPage
}

// Repository defines the interface for tenant storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id int64) (*Tenant, error)
	Update(ctx context.Context, id int64, changes Changes) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
	List(ctx context.Context, filter Filter) ([]*Tenant, int, error)
}

// ValidName reports whether name fits the length limits
func ValidName(name string) bool {
	n := len([]rune(name))
	return n >= NameMinLen && n <= NameMaxLen
}

// ValidAddress reports whether address fits the length limits
func ValidAddress(address string) bool {
	n := len([]rune(address))
	return n >= AddressMinLen && n <= AddressMaxLen
}
