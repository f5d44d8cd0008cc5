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

package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Errors
var (
	// ErrConfig reports missing or unusable key material
	ErrConfig = errors.New("token configuration error")
	// ErrInvalidToken wraps every verification failure
	ErrInvalidToken = errors.New("invalid token")
)

// Defaults
const (
	DefaultIssuer     = "auth-service"
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 365 * 24 * time.Hour
)

// Config holds the signing material and token lifetimes
type Config struct {
	// PrivateKeyPEM signs access tokens (RS256)
	PrivateKeyPEM string
	// RefreshSecret signs refresh tokens (HS256)
	RefreshSecret string
	// TrustedPublicKeysPEM are extra keys accepted for access tokens,
	// used while rolling over the signing key.
	TrustedPublicKeysPEM []string
	Issuer               string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
}

// AccessClaims is the payload of an access token
type AccessClaims struct {
	UserID int64  `json:"id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. RefreshTokenID points at
// the server-side session row.
type RefreshClaims struct {
	UserID         int64  `json:"id"`
	Role           string `json:"role"`
	RefreshTokenID int64  `json:"refreshTokenId"`
	jwt.RegisteredClaims
}

// Codec signs and verifies both token kinds. It is immutable after
// construction and safe for concurrent use.
type Codec struct {
	signingKey    *rsa.PrivateKey
	kid           string
	verifier      *Verifier
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewCodec parses the key material in cfg
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.PrivateKeyPEM == "" {
		return nil, fmt.Errorf("%w: private key is empty", ErrConfig)
	}
	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("%w: refresh secret is empty", ErrConfig)
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cfg.PrivateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrConfig, err)
	}

	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}

	verifier := newVerifier(cfg.Issuer)
	verifier.addKey(&key.PublicKey)
	for _, pemText := range cfg.TrustedPublicKeysPEM {
		if pemText == "" {
			continue
		}
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse trusted public key: %v", ErrConfig, err)
		}
		verifier.addKey(pub)
	}

	return &Codec{
		signingKey:    key,
		kid:           KeyID(&key.PublicKey),
		verifier:      verifier,
		refreshSecret: []byte(cfg.RefreshSecret),
		issuer:        cfg.Issuer,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           time.Now,
	}, nil
}

// RefreshTTL is the lifetime of refresh tokens and their session rows
func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// AccessTTL is the lifetime of access tokens
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// Verifier returns the public-key verifier for access tokens
func (c *Codec) Verifier() *Verifier {
	return c.verifier
}

// GenerateAccess signs an access token. Registered claims left empty are
// filled in: sub, iss, iat, exp and jti. A preset ExpiresAt is kept.
func (c *Codec) GenerateAccess(claims AccessClaims) (string, error) {
	c.fillRegistered(&claims.RegisteredClaims, claims.UserID, c.accessTTL)

	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = c.kid

	signed, err := t.SignedString(c.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// GenerateRefresh signs a refresh token. RefreshTokenID must reference an
// existing session row.
func (c *Codec) GenerateRefresh(claims RefreshClaims) (string, error) {
	if claims.RefreshTokenID <= 0 {
		return "", errors.New("refresh token id is required")
	}
	c.fillRegistered(&claims.RegisteredClaims, claims.UserID, c.refreshTTL)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refreshSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccess checks an access token with the public keys only
func (c *Codec) VerifyAccess(raw string) (*AccessClaims, error) {
	return c.verifier.Verify(raw)
}

// VerifyRefresh checks a refresh token against the shared secret
func (c *Codec) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return c.refreshSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 || claims.RefreshTokenID <= 0 {
		return nil, fmt.Errorf("%w: missing subject or refresh token id", ErrInvalidToken)
	}
	return claims, nil
}

// JWKS returns the public keys accepted for access tokens
func (c *Codec) JWKS() JWKS {
	return c.verifier.JWKS()
}

func (c *Codec) fillRegistered(rc *jwt.RegisteredClaims, userID int64, ttl time.Duration) {
	now := c.now()
	if rc.Subject == "" {
		rc.Subject = strconv.FormatInt(userID, 10)
	}
	if rc.Issuer == "" {
		rc.Issuer = c.issuer
	}
	if rc.IssuedAt == nil {
		rc.IssuedAt = jwt.NewNumericDate(now)
	}
	if rc.ExpiresAt == nil {
		rc.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
}
