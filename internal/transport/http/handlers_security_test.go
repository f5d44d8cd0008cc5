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
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/opentrusty/auth-service/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// AUTH API INPUT VALIDATION TESTS
// Category: Auth API - Input Validation & HTTP Behavior
// Type: Unit Test (UT)
// =============================================================================

// TestPurpose: Validates that registration fails with a 400 Bad Request if the email is empty.
// Scope: Unit Test
// Security: Input sanitization boundary check
// Expected: Returns HTTP 400 with a body field error on email and creates no session.
// Test Case ID: REG-02
func TestAuth_Register_EmptyEmail_ReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/auth/register", RegisterRequest{
		FirstName: "John",
		LastName:  "Doe",
		Password:  testPassword,
	})

	require.Equal(t, http.StatusBadRequest, w.Code, "REG-02: Empty email should return 400 Bad Request")
	errs := decodeErrors(t, w)
	require.Len(t, errs, 1)
	assert.Equal(t, APIError{Type: "field", Msg: "Email is required", Path: "email", Location: "body"}, errs[0])
	assert.Equal(t, 0, s.tokens.count())
}

// TestPurpose: Validates that weak passwords are rejected.
// Scope: Unit Test
// Security: Password strength validation (prevents weak credentials)
// Expected: Returns HTTP 400 Bad Request for short passwords and for passwords missing a character class.
// Test Case ID: REG-04
func TestAuth_Register_WeakPassword_ReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		password string
		msg      string
	}{
		{"Sh@1", "Password atleast have 8 characters"},
		{"password123", msgPasswordStrength},
		{"Password123", msgPasswordStrength},
		{"PASSWORD@123", msgPasswordStrength},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/auth/register", RegisterRequest{
				FirstName: "John",
				LastName:  "Doe",
				Email:     "john@example.com",
				Password:  tt.password,
			})

			require.Equal(t, http.StatusBadRequest, w.Code, "REG-04: Weak password should return 400 Bad Request")
			errs := decodeErrors(t, w)
			require.Len(t, errs, 1)
			assert.Equal(t, "password", errs[0].Path)
			assert.Equal(t, tt.msg, errs[0].Msg)
		})
	}
}

// TestPurpose: Validates that passwords beyond the bcrypt input limit are a field error, not a hashing failure.
// Scope: Unit Test
// Security: Silent truncation of long secrets
// Expected: An 80-byte strong password returns HTTP 400 with a password field error and creates no user or session.
// Test Case ID: REG-05
func TestAuth_Register_PasswordTooLong_ReturnsFieldError(t *testing.T) {
	s := newTestServer(t)
	password := "Aa1@" + strings.Repeat("x", 76)
	require.Len(t, password, 80)

	w := s.do(t, http.MethodPost, "/auth/register", RegisterRequest{
		FirstName: "John",
		LastName:  "Doe",
		Email:     "john@example.com",
		Password:  password,
	})

	require.Equal(t, http.StatusBadRequest, w.Code, "REG-05: Overlong password should return 400 Bad Request")
	errs := decodeErrors(t, w)
	require.Len(t, errs, 1)
	assert.Equal(t, APIError{Type: "field", Msg: msgPasswordTooLong, Path: "password", Location: "body"}, errs[0])
	assert.Equal(t, 0, s.tokens.count())

	_, err := s.users.GetByEmail(t.Context(), "john@example.com")
	assert.Error(t, err)
}

// TestPurpose: Validates that empty request bodies for login are rejected with 400 Bad Request.
// Scope: Unit Test
// Security: Request body parsing and validation
// Expected: Returns HTTP 400 Bad Request for empty bodies.
// Test Case ID: LGN-05
func TestAuth_Login_EmptyBody_ReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/auth/login", "")

	assert.Equal(t, http.StatusBadRequest, w.Code,
		"LGN-05: Empty body should return 400 Bad Request")
}

// TestPurpose: Validates that malformed JSON in the login request is rejected safely.
// Scope: Unit Test
// Security: JSON parsing safety (prevents parser exploits)
// Expected: Returns HTTP 400 Bad Request for malformed JSON.
// Test Case ID: LGN-06B
func TestAuth_Login_MalformedJSON_ReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/auth/login", `{invalid_json}`)

	assert.Equal(t, http.StatusBadRequest, w.Code,
		"LGN-06B: Malformed JSON should return 400 Bad Request")
	assert.Equal(t, msgInvalidBody, decodeErrors(t, w)[0].Msg)
}

// TestPurpose: Validates that an invalid email format is reported as a field error on login.
// Scope: Unit Test
// Security: Input sanitization boundary check
// Expected: Returns HTTP 400 with "Email is invalid".
// Test Case ID: LGN-07
func TestAuth_Login_InvalidEmail_ReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/auth/login", LoginRequest{Email: "not-an-email", Password: testPassword})

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Email is invalid", decodeErrors(t, w)[0].Msg)
}

// TestPurpose: Validates that 500 responses never leak internal error text.
// Scope: Unit Test
// Security: Information disclosure
// Expected: The body carries only the generic message.
// Test Case ID: ERR-01
func TestRespondServiceError_HidesInternalErrors(t *testing.T) {
	s := newTestServer(t)
	errDatabaseDown := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	s.tenants.On("List", mock.Anything, mock.Anything).Return([]*tenant.Tenant(nil), 0, errDatabaseDown)

	w := s.do(t, http.MethodGet, "/tenants", nil)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), errDatabaseDown.Error())
	assert.Equal(t, msgInternal, decodeErrors(t, w)[0].Msg)
}
