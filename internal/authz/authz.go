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

// Package authz decides whether an authenticated principal may proceed.
package authz

import (
	"errors"
	"fmt"
	"slices"

	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/identity"
)

// ErrForbidden is returned when the principal's role is not allowed
var ErrForbidden = errors.New("forbidden")

// RequireRole allows p only if it is valid and its role is one of allowed.
// An empty allowed list admits any authenticated principal.
func RequireRole(p authn.Principal, allowed ...identity.RoleKind) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unauthenticated principal", ErrForbidden)
	}
	if len(allowed) == 0 || slices.Contains(allowed, p.Role()) {
		return nil
	}
	return fmt.Errorf("%w: role %s not in %v", ErrForbidden, p.Role(), allowed)
}
