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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/auth-service/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_Routes(t *testing.T) {
	// Route matching only, handlers are never executed.
	r := NewRouter(&Handler{}, nil)

	tests := []struct {
		method      string
		path        string
		expectFound bool
	}{
		{"GET", "/health", true},
		{"GET", "/.well-known/jwks.json", true},
		{"GET", "/swagger/doc.json", true},
		{"POST", "/auth/register", true},
		{"POST", "/auth/login", true},
		{"GET", "/auth/self", true},
		{"POST", "/auth/refresh", true},
		{"POST", "/auth/logout", true},
		{"POST", "/users", true},
		{"GET", "/users", true},
		{"GET", "/users/1", true},
		{"PATCH", "/users/1", true},
		{"DELETE", "/users/1", true},
		{"POST", "/tenants", true},
		{"GET", "/tenants", true},
		{"GET", "/tenants/1", true},
		{"PATCH", "/tenants/1", true},
		{"DELETE", "/tenants/1", true},
		{"GET", "/auth/register", false},
		{"PUT", "/users/1", false},
		{"GET", "/oauth2/authorize", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			assert.Equal(t, tt.expectFound, r.Match(rctx, tt.method, tt.path))
		})
	}
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "auth-service-test", body["service"])
}

// TestPurpose: Validates that the published key set contains the signing key.
// Scope: Unit Test
// Security: Key distribution for downstream verifiers
// Expected: One RS256 signature key whose kid matches the access token header.
// Test Case ID: JWK-01
func TestJWKS(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/.well-known/jwks.json", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var set struct {
		Keys []struct {
			Kty string `json:"kty"`
			Alg string `json:"alg"`
			Use string `json:"use"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &set))
	require.Len(t, set.Keys, 1)
	assert.Equal(t, "RSA", set.Keys[0].Kty)
	assert.Equal(t, "RS256", set.Keys[0].Alg)
	assert.Equal(t, "sig", set.Keys[0].Use)
	assert.NotEmpty(t, set.Keys[0].Kid)
	assert.Equal(t, "AQAB", set.Keys[0].E)
}

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
	keys     []string
}

func (l *stubLimiter) Allow(ctx context.Context, key string) (ratelimit.Decision, error) {
	l.keys = append(l.keys, key)
	return l.decision, l.err
}

// TestPurpose: Validates rate limiting responses and fail-open behaviour.
// Scope: Unit Test
// Security: Brute-force mitigation
// Expected: A denied decision yields 429 with Retry-After; a limiter error lets the request through.
// Test Case ID: RL-01
func TestRateLimitMiddleware(t *testing.T) {
	t.Run("denied", func(t *testing.T) {
		limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, Limit: 5, Remaining: 0, RetryAfter: 1500 * time.Millisecond}}
		s := newTestServerWithLimiter(t, limiter)

		w := s.do(t, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, errTypeTooMany, decodeErrors(t, w)[0].Type)
	})

	t.Run("backend error fails open", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.New("redis: connection refused")}
		s := newTestServerWithLimiter(t, limiter)

		w := s.do(t, http.MethodGet, "/health", nil)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"forwarded chain", "203.0.113.7, 10.0.0.1", "10.0.0.2:5000", "203.0.113.7"},
		{"remote with port", "", "192.0.2.1:1234", "192.0.2.1"},
		{"remote without port", "", "192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := http.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}
