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
	"github.com/opentrusty/auth-service/internal/identity"
)

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	u.id, u.first_name, u.last_name, u.email, u.role::text, u.is_banned,
	u.tenant_id, t.name, t.address, u.created_at, u.updated_at`

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *identity.User) error {
	tenantID := roleTenant(user.Role)

	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO users (first_name, last_name, email, password_hash, role, is_banned, tenant_id)
		VALUES ($1, $2, $3, $4, $5::user_role, $6, $7)
		RETURNING id, created_at, updated_at
	`,
		user.FirstName, user.LastName, user.Email, user.PasswordHash,
		string(user.Role.Kind()), user.IsBanned, tenantID,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return mapUserError("failed to insert user", err)
	}
	return nil
}

// GetByID retrieves a user with its tenant. The password hash is not read.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*identity.User, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u
		LEFT JOIN tenants t ON t.id = u.tenant_id
		WHERE u.id = $1
	`, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user including the password hash
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	var hash string
	row := r.db.pool.QueryRow(ctx, `
		SELECT `+userColumns+`, u.password_hash
		FROM users u
		LEFT JOIN tenants t ON t.id = u.tenant_id
		WHERE u.email = $1
	`, email)

	user, err := scanUser(row, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	user.PasswordHash = hash
	return user, nil
}

// Update applies the non-nil changes in one statement. Setting the role
// always rewrites tenant_id so a user leaving the manager role loses its
// tenant.
func (r *UserRepository) Update(ctx context.Context, id int64, c identity.UserChanges) (int64, error) {
	if c.Empty() {
		return 0, nil
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if c.FirstName != nil {
		set("first_name", *c.FirstName)
	}
	if c.LastName != nil {
		set("last_name", *c.LastName)
	}
	if c.Email != nil {
		set("email", *c.Email)
	}
	if c.PasswordHash != nil {
		set("password_hash", *c.PasswordHash)
	}
	if c.Role != nil {
		args = append(args, string(c.Role.Kind()))
		sets = append(sets, fmt.Sprintf("role = $%d::user_role", len(args)))
		set("tenant_id", roleTenant(*c.Role))
	}
	if c.IsBanned != nil {
		set("is_banned", *c.IsBanned)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))

	result, err := r.db.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, mapUserError("failed to update user", err)
	}
	return result.RowsAffected(), nil
}

// Delete removes a user. Its refresh tokens are removed by the cascade.
func (r *UserRepository) Delete(ctx context.Context, id int64) (int64, error) {
	result, err := r.db.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user: %w", err)
	}
	return result.RowsAffected(), nil
}

// List returns one page of users ordered by id descending, and the total
// number of matches.
func (r *UserRepository) List(ctx context.Context, f identity.UserFilter) ([]*identity.User, int, error) {
	var (
		where []string
		args  []any
	)
	if f.Query != "" {
		args = append(args, "%"+f.Query+"%")
		where = append(where, fmt.Sprintf("((u.first_name || ' ' || u.last_name) ILIKE $%[1]d OR u.email ILIKE $%[1]d)", len(args)))
	}
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("u.role = $%d::user_role", len(args)))
	}
	if f.IsBanned != nil {
		args = append(args, *f.IsBanned)
		where = append(where, fmt.Sprintf("u.is_banned = $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	pageArgs := append(args, f.PerPage, f.Offset())
	rows, err := r.db.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM users u
		LEFT JOIN tenants t ON t.id = u.tenant_id
		%s
		ORDER BY u.id DESC
		LIMIT $%d OFFSET $%d
	`, userColumns, clause, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*identity.User, 0, f.PerPage)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func scanUser(row pgx.Row, extra ...any) (*identity.User, error) {
	var (
		user          identity.User
		role          string
		tenantID      *int64
		tenantName    *string
		tenantAddress *string
	)

	dest := append([]any{
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &role, &user.IsBanned,
		&tenantID, &tenantName, &tenantAddress, &user.CreatedAt, &user.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	parsed, err := identity.RoleFromStore(identity.RoleKind(role), tenantID)
	if err != nil {
		return nil, err
	}
	user.Role = parsed

	if tenantID != nil && tenantName != nil {
		user.Tenant = &identity.UserTenant{ID: *tenantID, Name: *tenantName}
		if tenantAddress != nil {
			user.Tenant.Address = *tenantAddress
		}
	}
	return &user, nil
}

// roleTenant is the tenant_id column value for role
func roleTenant(role identity.Role) *int64 {
	if id, ok := role.TenantID(); ok {
		return &id
	}
	return nil
}

func mapUserError(msg string, err error) error {
	switch pgCode(err) {
	case codeUniqueViolation:
		return identity.ErrUserAlreadyExists
	case codeForeignKeyViolation:
		return identity.ErrUnknownTenant
	}
	return fmt.Errorf("%s: %w", msg, err)
}
