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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opentrusty/auth-service/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockUserRepository is a simple in-memory implementation of UserRepository
type MockUserRepository struct {
	mu     sync.Mutex
	users  map[int64]*User
	nextID int64
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{users: make(map[int64]*User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return ErrUserAlreadyExists
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	m.users[user.ID] = &stored
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	out.PasswordHash = ""
	return &out, nil
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MockUserRepository) Update(ctx context.Context, id int64, c UserChanges) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil
	}
	if c.FirstName != nil {
		u.FirstName = *c.FirstName
	}
	if c.LastName != nil {
		u.LastName = *c.LastName
	}
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.PasswordHash != nil {
		u.PasswordHash = *c.PasswordHash
	}
	if c.Role != nil {
		u.Role = *c.Role
	}
	if c.IsBanned != nil {
		u.IsBanned = *c.IsBanned
	}
	return 1, nil
}

func (m *MockUserRepository) Delete(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return 0, nil
	}
	delete(m.users, id)
	return 1, nil
}

func (m *MockUserRepository) List(ctx context.Context, f UserFilter) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if f.Role != "" && !u.Role.Is(f.Role) {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(u.FirstName+" "+u.LastName+" "+u.Email), strings.ToLower(f.Query)) {
			continue
		}
		c := *u
		c.PasswordHash = ""
		out = append(out, &c)
	}
	return out, len(out), nil
}

type recordingRevoker struct {
	revoked []int64
}

func (r *recordingRevoker) RevokeAll(ctx context.Context, userID int64) error {
	r.revoked = append(r.revoked, userID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func newTestService() (*Service, *MockUserRepository, *recordingRevoker, *recordingPublisher) {
	repo := NewMockUserRepository()
	revoker := &recordingRevoker{}
	pub := &recordingPublisher{}
	return NewService(repo, NewPasswordHasher(4), revoker, pub), repo, revoker, pub
}

// TestPurpose: Validates that a password verifies against its own hash and not against another password's hash.
// Scope: Unit Test
// Security: Credential storage
// Expected: Compare(P, Hash(P)) is true, Compare(P, Hash(Q)) is false, malformed hashes never match.
// Test Case ID: IDN-01
func TestPasswordHasher_RoundTrip(t *testing.T) {
	h := NewPasswordHasher(4)

	hash, err := h.Hash("Password@123")
	require.NoError(t, err)
	assert.NotEqual(t, "Password@123", hash)

	other, err := h.Hash("Different@456")
	require.NoError(t, err)

	assert.True(t, h.Compare("Password@123", hash))
	assert.False(t, h.Compare("Password@123", other))
	assert.False(t, h.Compare("Password@123", "not-a-bcrypt-hash"))
	assert.False(t, h.Compare("Password@123", ""))
}

func TestPasswordHasher_Cost(t *testing.T) {
	assert.Equal(t, DefaultHashCost, NewPasswordHasher(0).Cost())
	assert.Equal(t, DefaultHashCost, NewPasswordHasher(99).Cost())
	assert.Equal(t, 12, NewPasswordHasher(12).Cost())

	_, err := NewPasswordHasher(4).Hash(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

// TestPurpose: Validates customer registration and credential verification.
// Scope: Unit Test
// Security: Authentication
// Expected: Registered users are customers; correct password authenticates; wrong password and unknown email both give ErrInvalidCredentials.
// Test Case ID: IDN-02
func TestIdentity_Service_RegisterAndAuthenticate(t *testing.T) {
	s, _, _, pub := newTestService()
	ctx := context.Background()

	user, err := s.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "a@b.com", Password: "Password@123"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.True(t, user.Role.Is(RoleCustomer))
	assert.Empty(t, user.PasswordHash)

	got, err := s.Authenticate(ctx, "a@b.com", "Password@123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Empty(t, got.PasswordHash)

	_, err = s.Authenticate(ctx, "a@b.com", "WrongPassword@1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Authenticate(ctx, "nobody@b.com", "Password@123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.TypeUserCreated, pub.events[0].Type)
}

// TestPurpose: Validates that registering an existing email is rejected.
// Scope: Unit Test
// Security: Data Integrity and Unique Constraint Enforcement
// Expected: ErrUserAlreadyExists when email is already registered.
// Test Case ID: IDN-03
func TestIdentity_Service_Register_Conflict(t *testing.T) {
	s, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := s.Register(ctx, RegisterInput{Email: "conflict@example.com", Password: "Password@123"})
	require.NoError(t, err)
	_, err = s.Register(ctx, RegisterInput{Email: "conflict@example.com", Password: "Password@123"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestIdentity_Service_Authenticate_Banned(t *testing.T) {
	s, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := s.Create(ctx, CreateUserInput{Email: "banned@b.com", Password: "Password@123", Role: Admin(), IsBanned: true})
	require.NoError(t, err)

	_, err = s.Authenticate(ctx, "banned@b.com", "Password@123")
	assert.ErrorIs(t, err, ErrUserBanned)
}

// TestPurpose: Validates that admins can neither create, update nor delete customer accounts.
// Scope: Unit Test
// Security: Privilege boundaries between admin and customer accounts
// Expected: ErrCustomerManagedByAdmin for every attempt and the stored customer is unchanged.
// Test Case ID: IDN-04
func TestIdentity_Service_CustomerImmutableByAdmin(t *testing.T) {
	s, repo, _, _ := newTestService()
	ctx := context.Background()

	_, err := s.CreateByAdmin(ctx, CreateUserInput{Email: "c@b.com", Password: "Password@123", Role: Customer()})
	assert.ErrorIs(t, err, ErrCustomerManagedByAdmin)
	_, err = repo.GetByEmail(ctx, "c@b.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	customer, err := s.Register(ctx, RegisterInput{FirstName: "Cust", Email: "cust@b.com", Password: "Password@123"})
	require.NoError(t, err)

	err = s.UpdateByAdmin(ctx, customer.ID, UpdateUserInput{FirstName: "Changed"})
	assert.ErrorIs(t, err, ErrCustomerManagedByAdmin)

	err = s.DeleteByAdmin(ctx, customer.ID)
	assert.ErrorIs(t, err, ErrCustomerManagedByAdmin)

	stored, err := repo.GetByID(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cust", stored.FirstName)

	manager, err := s.CreateByAdmin(ctx, CreateUserInput{Email: "m@b.com", Password: "Password@123", Role: Manager(7)})
	require.NoError(t, err)

	role := Customer()
	err = s.UpdateByAdmin(ctx, manager.ID, UpdateUserInput{Role: &role})
	assert.ErrorIs(t, err, ErrCustomerManagedByAdmin)
}

// TestPurpose: Validates that moving a manager to another role drops the tenant binding.
// Scope: Unit Test
// Expected: After updating role to admin the user has no tenant.
// Test Case ID: IDN-05
func TestIdentity_Service_UpdateRole_NullsTenant(t *testing.T) {
	s, repo, _, _ := newTestService()
	ctx := context.Background()

	manager, err := s.CreateByAdmin(ctx, CreateUserInput{Email: "m@b.com", Password: "Password@123", Role: Manager(3)})
	require.NoError(t, err)
	tid, ok := manager.Role.TenantID()
	require.True(t, ok)
	assert.Equal(t, int64(3), tid)

	admin := Admin()
	require.NoError(t, s.UpdateByAdmin(ctx, manager.ID, UpdateUserInput{Role: &admin}))

	stored, err := repo.GetByID(ctx, manager.ID)
	require.NoError(t, err)
	assert.True(t, stored.Role.Is(RoleAdmin))
	_, ok = stored.Role.TenantID()
	assert.False(t, ok)
}

func TestIdentity_Service_UpdateByAdmin_RevokesSessions(t *testing.T) {
	s, _, revoker, _ := newTestService()
	ctx := context.Background()

	admin, err := s.CreateByAdmin(ctx, CreateUserInput{Email: "adm@b.com", Password: "Password@123", Role: Admin()})
	require.NoError(t, err)

	require.NoError(t, s.UpdateByAdmin(ctx, admin.ID, UpdateUserInput{LastName: "Renamed"}))
	assert.Empty(t, revoker.revoked)

	require.NoError(t, s.UpdateByAdmin(ctx, admin.ID, UpdateUserInput{Password: "NewPassword@1"}))
	assert.Equal(t, []int64{admin.ID}, revoker.revoked)

	_, err = s.Authenticate(ctx, "adm@b.com", "NewPassword@1")
	assert.NoError(t, err)

	manager := Manager(5)
	require.NoError(t, s.UpdateByAdmin(ctx, admin.ID, UpdateUserInput{Role: &manager}))
	assert.Len(t, revoker.revoked, 2)

	banned := true
	require.NoError(t, s.UpdateByAdmin(ctx, admin.ID, UpdateUserInput{IsBanned: &banned}))
	assert.Len(t, revoker.revoked, 3)

	err = s.UpdateByAdmin(ctx, 999, UpdateUserInput{LastName: "X"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestIdentity_Service_DeleteByAdmin(t *testing.T) {
	s, _, _, pub := newTestService()
	ctx := context.Background()

	admin, err := s.CreateByAdmin(ctx, CreateUserInput{Email: "adm@b.com", Password: "Password@123", Role: Admin()})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByAdmin(ctx, admin.ID))
	_, err = s.Get(ctx, admin.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, s.DeleteByAdmin(ctx, admin.ID), ErrUserNotFound)

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.TypeUserDeleted, pub.events[1].Type)
}

func TestIdentity_Service_List_Defaults(t *testing.T) {
	s, _, _, _ := newTestService()
	ctx := context.Background()

	_, err := s.Register(ctx, RegisterInput{FirstName: "Mayank", LastName: "Jain", Email: "mayank@b.com", Password: "Password@123"})
	require.NoError(t, err)
	_, err = s.CreateByAdmin(ctx, CreateUserInput{FirstName: "Raman", Email: "raman@b.com", Password: "Password@123", Role: Admin()})
	require.NoError(t, err)

	users, total, err := s.List(ctx, UserFilter{Query: "  mayank "})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, "Mayank", users[0].FirstName)

	users, _, err = s.List(ctx, UserFilter{Role: RoleAdmin})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "raman@b.com", users[0].Email)
}

func TestParseRole(t *testing.T) {
	tenant := int64(5)

	r, err := ParseRole(RoleManager, &tenant)
	require.NoError(t, err)
	id, ok := r.TenantID()
	assert.True(t, ok)
	assert.Equal(t, tenant, id)

	_, err = ParseRole(RoleManager, nil)
	assert.ErrorIs(t, err, ErrTenantRequired)

	r, err = ParseRole(RoleAdmin, &tenant)
	require.NoError(t, err)
	_, ok = r.TenantID()
	assert.False(t, ok, "non-manager roles never carry a tenant")

	_, err = ParseRole("root", nil)
	assert.ErrorIs(t, err, ErrInvalidRole)

	assert.True(t, Role{}.IsZero())
}

func TestPasswordPolicy(t *testing.T) {
	assert.True(t, IsStrongPassword("Password@123"))
	assert.False(t, IsStrongPassword("password@123"))
	assert.False(t, IsStrongPassword("PASSWORD@123"))
	assert.False(t, IsStrongPassword("Password123"))
	assert.False(t, IsStrongPassword("Pa@1"))
	assert.True(t, IsStrongPassword("Aa1@"+strings.Repeat("x", MaxPasswordBytes-4)))
	assert.False(t, IsStrongPassword("Aa1@"+strings.Repeat("x", MaxPasswordBytes-3)))

	assert.True(t, IsValidEmail("a@b.com"))
	assert.False(t, IsValidEmail("not-an-email"))
	assert.False(t, IsValidEmail("Name <a@b.com>"))
}
