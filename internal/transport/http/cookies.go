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
	"net/http"

	"github.com/opentrusty/auth-service/internal/session"
)

// Cookie names
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// Cookie lifetimes in seconds
const (
	accessCookieMaxAge  = 60 * 60
	refreshCookieMaxAge = 60 * 60 * 24 * 365
)

// CookieConfig holds token cookie attributes. An empty Domain yields a
// host-only cookie.
type CookieConfig struct {
	Domain string
	Secure bool
}

func (h *Handler) setTokenCookies(w http.ResponseWriter, pair *session.Pair) {
	http.SetCookie(w, h.cookie(AccessTokenCookie, pair.AccessToken, accessCookieMaxAge))
	http.SetCookie(w, h.cookie(RefreshTokenCookie, pair.RefreshToken, refreshCookieMaxAge))
}

func (h *Handler) clearTokenCookies(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, h.cookie(RefreshTokenCookie, "", -1))
}

func (h *Handler) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cookies.Domain,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	}
}

func readCookie(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
