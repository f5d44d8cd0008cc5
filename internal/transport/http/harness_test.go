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

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/auth-service/internal/audit"
	"github.com/opentrusty/auth-service/internal/authn"
	"github.com/opentrusty/auth-service/internal/identity"
	"github.com/opentrusty/auth-service/internal/ratelimit"
	"github.com/opentrusty/auth-service/internal/session"
	"github.com/opentrusty/auth-service/internal/tenant"
	"github.com/opentrusty/auth-service/internal/token"
	"github.com/opentrusty/auth-service/internal/token/tokentest"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testPassword = "Password@123"

// memUserRepo is an in-memory identity.UserRepository
type memUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*identity.User
	nextID int64
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*identity.User)}
}

func (m *memUserRepo) Create(ctx context.Context, user *identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return identity.ErrUserAlreadyExists
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

func (m *memUserRepo) GetByID(ctx context.Context, id int64) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	out := *u
	out.PasswordHash = ""
	return &out, nil
}

func (m *memUserRepo) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) Update(ctx context.Context, id int64, c identity.UserChanges) (int64, error) {
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

func (m *memUserRepo) Delete(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return 0, nil
	}
	delete(m.users, id)
	return 1, nil
}

func (m *memUserRepo) List(ctx context.Context, f identity.UserFilter) ([]*identity.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.User
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

// memTokenStore is an in-memory session.RefreshTokenStore
type memTokenStore struct {
	mu     sync.Mutex
	rows   map[int64]*session.RefreshToken
	nextID int64
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{rows: make(map[int64]*session.RefreshToken)}
}

func (m *memTokenStore) Create(ctx context.Context, userID int64, expiresAt time.Time) (*session.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := time.Now()
	rt := &session.RefreshToken{ID: m.nextID, UserID: userID, ExpiresAt: expiresAt, CreatedAt: now, UpdatedAt: now}
	m.rows[rt.ID] = rt
	return rt, nil
}

func (m *memTokenStore) DeleteByID(ctx context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return 0, nil
	}
	delete(m.rows, id)
	return 1, nil
}

func (m *memTokenStore) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, rt := range m.rows {
		if rt.UserID == userID {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memTokenStore) Exists(ctx context.Context, id, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.rows[id]
	return ok && rt.UserID == userID, nil
}

func (m *memTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *memTokenStore) countFor(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rt := range m.rows {
		if rt.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memTokenStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Mock Repository for Tenant
type mockTenantRepo struct {
	mock.Mock
}

func (m *mockTenantRepo) Create(ctx context.Context, t *tenant.Tenant) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockTenantRepo) GetByID(ctx context.Context, id int64) (*tenant.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}

func (m *mockTenantRepo) Update(ctx context.Context, id int64, c tenant.Changes) (int64, error) {
	args := m.Called(ctx, id, c)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTenantRepo) Delete(ctx context.Context, id int64) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockTenantRepo) List(ctx context.Context, f tenant.Filter) ([]*tenant.Tenant, int, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]*tenant.Tenant), args.Int(1), args.Error(2)
}

type testServer struct {
	router   *chi.Mux
	users    *memUserRepo
	tokens   *memTokenStore
	tenants  *mockTenantRepo
	identity *identity.Service
	codec    *token.Codec
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithLimiter(t, nil)
}

func newTestServerWithLimiter(t *testing.T, limiter ratelimit.Limiter) *testServer {
	t.Helper()

	codec := tokentest.Codec(t)
	users := newMemUserRepo()
	tokens := newMemTokenStore()
	tenants := new(mockTenantRepo)
	auditLogger := audit.NewSlogLogger()

	sessions := session.NewService(tokens, codec, nil)
	identitySvc := identity.NewService(users, identity.NewPasswordHasher(4), sessions, nil)
	tenantSvc := tenant.NewService(tenants, auditLogger, nil)
	authenticator := authn.NewAuthenticator(codec, sessions, nil)

	h := NewHandler(identitySvc, sessions, tenantSvc, authenticator, codec.Verifier(), auditLogger, CookieConfig{}, "auth-service-test")

	return &testServer{
		router:   NewRouter(h, limiter),
		users:    users,
		tokens:   tokens,
		tenants:  tenants,
		identity: identitySvc,
		codec:    codec,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// seedUser stores a user directly through the identity service
func (s *testServer) seedUser(t *testing.T, email string, role identity.Role) *identity.User {
	t.Helper()
	u, err := s.identity.Create(context.Background(), identity.CreateUserInput{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Password:  testPassword,
		Role:      role,
	})
	require.NoError(t, err)
	return u
}

// login signs email in and returns the session cookies
func (s *testServer) login(t *testing.T, email string) []*http.Cookie {
	t.Helper()
	w := s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: testPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return w.Result().Cookies()
}

func (s *testServer) adminCookies(t *testing.T) []*http.Cookie {
	t.Helper()
	s.seedUser(t, "admin@example.com", identity.Admin())
	return s.login(t, "admin@example.com")
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeErrors(t *testing.T, w *httptest.ResponseRecorder) []APIError {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Errors
}

func decodeID(t *testing.T, w *httptest.ResponseRecorder) int64 {
	t.Helper()
	var resp IDResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.ID
}
