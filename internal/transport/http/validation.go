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
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/auth-service/internal/identity"
)

// Locations of a field error
const (
	inBody   = "body"
	inQuery  = "query"
	inParams = "params"
)

const (
	msgPasswordStrength = "Password must have one lowercase, one uppercase, one number, one symbol"
	msgPasswordTooLong  = "Password atmost have 72 bytes"
	msgInvalidBody      = "Invalid request body"
)

// fieldErrors collects validation failures for one request
type fieldErrors []APIError

func (fe *fieldErrors) add(location, path, msg string) {
	*fe = append(*fe, APIError{Type: errTypeField, Msg: msg, Path: path, Location: location})
}

// respond writes a 400 and reports true when any error was collected
func (fe fieldErrors) respond(w http.ResponseWriter) bool {
	if len(fe) == 0 {
		return false
	}
	respondErrors(w, http.StatusBadRequest, fe)
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, msgInvalidBody)
		return false
	}
	return true
}

func (fe *fieldErrors) email(path, value string, required bool) {
	switch {
	case value == "":
		if required {
			fe.add(inBody, path, "Email is required")
		}
	case !identity.IsValidEmail(value):
		fe.add(inBody, path, "Email is invalid")
	}
}

func (fe *fieldErrors) password(path, value string, required bool) {
	switch {
	case value == "":
		if required {
			fe.add(inBody, path, "Password is required")
		}
	case len([]rune(value)) < identity.MinPasswordLength:
		fe.add(inBody, path, "Password atleast have 8 characters")
	case len(value) > identity.MaxPasswordBytes:
		fe.add(inBody, path, msgPasswordTooLong)
	case !identity.IsStrongPassword(value):
		fe.add(inBody, path, msgPasswordStrength)
	}
}

func (fe *fieldErrors) minLength(path, label, value string, n int, required bool) {
	switch {
	case value == "":
		if required {
			fe.add(inBody, path, label+" is required")
		}
	case len([]rune(value)) < n:
		fe.add(inBody, path, label+" atleast have "+strconv.Itoa(n)+" characters")
	}
}

func (fe *fieldErrors) roleKind(location, value string) identity.RoleKind {
	kind := identity.RoleKind(value)
	if !kind.Valid() {
		names := make([]string, 0, 3)
		for _, k := range identity.RoleKinds() {
			names = append(names, string(k))
		}
		fe.add(location, "role", "Role must be one of: "+strings.Join(names, ", "))
	}
	return kind
}

// optionalInt64 parses a JSON number or numeric string
func (fe *fieldErrors) optionalInt64(path string, raw json.Number) *int64 {
	if raw == "" {
		return nil
	}
	v, err := raw.Int64()
	if err != nil {
		fe.add(inBody, path, path+" must be an integer")
		return nil
	}
	return &v
}

// optionalBool accepts only a JSON boolean
func (fe *fieldErrors) optionalBool(path string, raw json.RawMessage) *bool {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		fe.add(inBody, path, path+" should be a boolean")
		return nil
	}
	return &v
}

// pathID reads the numeric {id} URL parameter
func pathID(r *http.Request, entity string) (int64, fieldErrors) {
	var fe fieldErrors
	raw := chi.URLParam(r, "id")
	if raw == "" {
		fe.add(inParams, "id", entity+" id is required")
		return 0, fe
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		fe.add(inParams, "id", entity+" id must be an integer")
		return 0, fe
	}
	return id, nil
}

// pageParams reads currentPage and perPage, falling back to defaults on
// missing or non-numeric values.
func pageParams(r *http.Request, defaultPerPage int) (currentPage, perPage int) {
	q := r.URL.Query()
	currentPage, err := strconv.Atoi(q.Get("currentPage"))
	if err != nil || currentPage < 1 {
		currentPage = 1
	}
	perPage, err = strconv.Atoi(q.Get("perPage"))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	return currentPage, perPage
}
