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

// Package docs holds the OpenAPI document generated from the handler
// annotations in internal/transport/http.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "termsOfService": "http://swagger.io/terms/",
        "contact": {
            "name": "API Support",
            "url": "http://www.swagger.io/support",
            "email": "support@swagger.io"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Checks if the service is up and running",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health Check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/.well-known/jwks.json": {
            "get": {
                "description": "Public keys that verify access tokens",
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "JSON Web Key Set",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/token.JWKS"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "description": "Creates a customer account and starts a session",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Register a new customer",
                "parameters": [
                    {"description": "Registration Data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "description": "Verifies credentials and sets the token cookies",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Login",
                "parameters": [
                    {"description": "Credentials", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/auth/self": {
            "get": {
                "security": [{"CookieAuth": []}],
                "description": "Returns the profile of the access token's user",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/identity.User"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "security": [{"RefreshCookie": []}],
                "description": "Replaces the refresh session and sets new token cookies",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Refresh tokens",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "security": [{"CookieAuth": []}, {"RefreshCookie": []}],
                "description": "Deletes the refresh session and clears both token cookies",
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Logout",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/users": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "List users",
                "parameters": [
                    {"type": "string", "description": "Matches name or email", "name": "q", "in": "query"},
                    {"type": "string", "description": "Role filter", "name": "role", "in": "query"},
                    {"type": "boolean", "description": "Ban filter", "name": "isBanned", "in": "query"},
                    {"type": "integer", "default": 1, "description": "Page number", "name": "currentPage", "in": "query"},
                    {"type": "integer", "default": 6, "description": "Page size", "name": "perPage", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.UserListResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"CookieAuth": []}],
                "description": "Creates an admin or manager account. Customers register themselves.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Create user",
                "parameters": [
                    {"description": "User Data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.CreateUserRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/users/{id}": {
            "get": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Get user",
                "parameters": [{"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/identity.User"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"CookieAuth": []}],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Delete user",
                "parameters": [{"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "patch": {
                "security": [{"CookieAuth": []}],
                "description": "Changing the password or banning the user ends all of its sessions",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Users"],
                "summary": "Update user",
                "parameters": [
                    {"type": "integer", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {"description": "Changes", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.UpdateUserRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/tenants": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "List Tenants",
                "parameters": [
                    {"type": "string", "description": "Matches name or address", "name": "q", "in": "query"},
                    {"type": "integer", "default": 1, "description": "Page number", "name": "currentPage", "in": "query"},
                    {"type": "integer", "default": 6, "description": "Page size", "name": "perPage", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.TenantListResponse"}}
                }
            },
            "post": {
                "security": [{"CookieAuth": []}],
                "description": "Create a new tenant",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "Create Tenant",
                "parameters": [
                    {"description": "Tenant Data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.TenantRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/tenants/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "Get Tenant",
                "parameters": [{"type": "integer", "description": "Tenant ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/tenant.Tenant"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"CookieAuth": []}],
                "description": "Managers of the tenant are kept without a tenant",
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "Delete Tenant",
                "parameters": [{"type": "integer", "description": "Tenant ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "patch": {
                "security": [{"CookieAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tenant"],
                "summary": "Update Tenant",
                "parameters": [
                    {"type": "integer", "description": "Tenant ID", "name": "id", "in": "path", "required": true},
                    {"description": "Changes", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.TenantRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IDResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.APIError": {
            "type": "object",
            "properties": {
                "location": {"type": "string", "example": "body"},
                "msg": {"type": "string", "example": "Email is invalid"},
                "path": {"type": "string", "example": "email"},
                "type": {"type": "string", "example": "field"}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {
                "errors": {"type": "array", "items": {"$ref": "#/definitions/http.APIError"}}
            }
        },
        "http.IDResponse": {
            "type": "object",
            "properties": {"id": {"type": "integer", "example": 1}}
        },
        "http.RegisterRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "user@example.com"},
                "firstName": {"type": "string", "example": "John"},
                "lastName": {"type": "string", "example": "Doe"},
                "password": {"type": "string", "example": "Secret@123"}
            }
        },
        "http.LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "user@example.com"},
                "password": {"type": "string", "example": "Secret@123"}
            }
        },
        "http.CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string", "example": "manager@example.com"},
                "firstName": {"type": "string", "example": "Jane"},
                "isBanned": {"type": "boolean"},
                "lastName": {"type": "string", "example": "Doe"},
                "password": {"type": "string", "example": "Secret@123"},
                "role": {"type": "string", "example": "manager"},
                "tenantId": {"type": "integer", "example": 1}
            }
        },
        "http.UpdateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "firstName": {"type": "string"},
                "isBanned": {"type": "boolean"},
                "lastName": {"type": "string"},
                "password": {"type": "string"},
                "role": {"type": "string"},
                "tenantId": {"type": "integer"}
            }
        },
        "http.UserListResponse": {
            "type": "object",
            "properties": {
                "currentPage": {"type": "integer"},
                "data": {"type": "array", "items": {"$ref": "#/definitions/identity.User"}},
                "perPage": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "http.TenantRequest": {
            "type": "object",
            "properties": {
                "address": {"type": "string", "example": "221B Baker Street, London"},
                "name": {"type": "string", "example": "My Corporation"}
            }
        },
        "http.TenantListResponse": {
            "type": "object",
            "properties": {
                "currentPage": {"type": "integer"},
                "data": {"type": "array", "items": {"$ref": "#/definitions/tenant.Tenant"}},
                "perPage": {"type": "integer"},
                "total": {"type": "integer"}
            }
        },
        "identity.UserTenant": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "id": {"type": "integer"},
                "name": {"type": "string"}
            }
        },
        "identity.User": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "email": {"type": "string"},
                "firstName": {"type": "string"},
                "id": {"type": "integer"},
                "isBanned": {"type": "boolean"},
                "lastName": {"type": "string"},
                "role": {"type": "string", "enum": ["customer", "admin", "manager"]},
                "tenant": {"$ref": "#/definitions/identity.UserTenant"},
                "updatedAt": {"type": "string"}
            }
        },
        "tenant.Tenant": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "createdAt": {"type": "string"},
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "token.JWK": {
            "type": "object",
            "properties": {
                "alg": {"type": "string"},
                "e": {"type": "string"},
                "kid": {"type": "string"},
                "kty": {"type": "string"},
                "n": {"type": "string"},
                "use": {"type": "string"}
            }
        },
        "token.JWKS": {
            "type": "object",
            "properties": {
                "keys": {"type": "array", "items": {"$ref": "#/definitions/token.JWK"}}
            }
        }
    },
    "securityDefinitions": {
        "CookieAuth": {"type": "apiKey", "name": "accessToken", "in": "cookie"},
        "RefreshCookie": {"type": "apiKey", "name": "refreshToken", "in": "cookie"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:5501",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Auth Service API",
	Description:      "Multi-tenant authentication service with cookie-carried JWT sessions",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
