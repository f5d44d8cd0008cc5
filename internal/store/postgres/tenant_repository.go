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

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/auth-service/internal/tenant"
)

// TenantRepository implements tenant.Repository
type TenantRepository struct {
	db *DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a tenant and fills its ID and timestamps
func (r *TenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO tenants (name, address)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, t.Name, t.Address).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, name, address, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Address, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &t, nil
}

// Update applies the non-nil changes
func (r *TenantRepository) Update(ctx context.Context, id int64, c tenant.Changes) (int64, error) {
	if c.Empty() {
		return 0, nil
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE tenants SET
			name = COALESCE($2, name),
			address = COALESCE($3, address),
			updated_at = NOW()
		WHERE id = $1
	`, id, c.Name, c.Address)
	if err != nil {
		return 0, fmt.Errorf("failed to update tenant: %w", err)
	}
	return result.RowsAffected(), nil
}

// Delete removes a tenant. Users bound to it keep their row with tenant_id
// set to NULL.
func (r *TenantRepository) Delete(ctx context.Context, id int64) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tenant: %w", err)
	}
	return result.RowsAffected(), nil
}

// List returns one page of tenants ordered by id descending
func (r *TenantRepository) List(ctx context.Context, f tenant.Filter) ([]*tenant.Tenant, int, error) {
	var (
		clause string
		args   []any
	)
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		clause = `WHERE (name || ' ' || address) ILIKE $1`
	}

	var total int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	pageArgs := append(args, f.PerPage, f.Offset())
	rows, err := r.db.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, name, address, created_at, updated_at
		FROM tenants
		%s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d
	`, clause, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]*tenant.Tenant, 0, f.PerPage)
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Address, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, total, nil
}
