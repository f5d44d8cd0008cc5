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
	"encoding/json"
	"fmt"
)

// RoleKind is the wire name of a role.
type RoleKind string

const (
	RoleCustomer RoleKind = "customer"
	RoleAdmin    RoleKind = "admin"
	RoleManager  RoleKind = "manager"
)

// Valid reports whether k names a known role.
func (k RoleKind) Valid() bool {
	switch k {
	case RoleCustomer, RoleAdmin, RoleManager:
		return true
	}
	return false
}

// RoleKinds lists every role in declaration order.
func RoleKinds() []RoleKind {
	return []RoleKind{RoleCustomer, RoleAdmin, RoleManager}
}

// Role is a closed variant: Customer, Admin or Manager bound to a tenant.
// The zero value is not a valid role.
type Role struct {
	kind     RoleKind
	tenantID int64
}

// Customer returns the customer role.
func Customer() Role { return Role{kind: RoleCustomer} }

// Admin returns the admin role.
func Admin() Role { return Role{kind: RoleAdmin} }

// Manager returns the manager role scoped to tenantID.
func Manager(tenantID int64) Role { return Role{kind: RoleManager, tenantID: tenantID} }

// ParseRole builds a Role from its wire form. A manager must carry a tenant;
// other roles ignore tenantID.
func ParseRole(kind RoleKind, tenantID *int64) (Role, error) {
	switch kind {
	case RoleCustomer:
		return Customer(), nil
	case RoleAdmin:
		return Admin(), nil
	case RoleManager:
		if tenantID == nil || *tenantID <= 0 {
			return Role{}, ErrTenantRequired
		}
		return Manager(*tenantID), nil
	default:
		return Role{}, fmt.Errorf("%w: %q", ErrInvalidRole, kind)
	}
}

// RoleFromStore rebuilds a persisted role. Unlike ParseRole it accepts a
// manager without a tenant, which is what remains after the tenant is
// deleted.
func RoleFromStore(kind RoleKind, tenantID *int64) (Role, error) {
	if !kind.Valid() {
		return Role{}, fmt.Errorf("%w: %q", ErrInvalidRole, kind)
	}
	if kind != RoleManager || tenantID == nil {
		return Role{kind: kind}, nil
	}
	return Manager(*tenantID), nil
}

// Kind returns the wire name of the role.
func (r Role) Kind() RoleKind { return r.kind }

// TenantID returns the tenant a manager is bound to. ok is false for every
// other role, and for a manager whose tenant has since been deleted.
func (r Role) TenantID() (id int64, ok bool) {
	if r.kind != RoleManager || r.tenantID == 0 {
		return 0, false
	}
	return r.tenantID, true
}

// IsZero reports whether r was never assigned.
func (r Role) IsZero() bool { return r.kind == "" }

// Is reports whether r has kind k.
func (r Role) Is(k RoleKind) bool { return r.kind == k }

func (r Role) String() string { return string(r.kind) }

// MarshalJSON encodes the role as its wire name. The tenant travels
// separately on the user.
func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r.kind))
}
