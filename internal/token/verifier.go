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
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates access tokens using only RSA public keys. Services that
// consume access tokens without minting them can build one with NewVerifier.
type Verifier struct {
	issuer string
	keys   map[string]*rsa.PublicKey
	order  []string
}

// NewVerifier builds a verifier from one or more PEM encoded public keys
func NewVerifier(issuer string, publicKeysPEM ...string) (*Verifier, error) {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	v := newVerifier(issuer)
	for _, pemText := range publicKeysPEM {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse public key: %v", ErrConfig, err)
		}
		v.addKey(pub)
	}
	if len(v.keys) == 0 {
		return nil, fmt.Errorf("%w: no public key configured", ErrConfig)
	}
	return v, nil
}

func newVerifier(issuer string) *Verifier {
	return &Verifier{issuer: issuer, keys: make(map[string]*rsa.PublicKey)}
}

func (v *Verifier) addKey(pub *rsa.PublicKey) {
	kid := KeyID(pub)
	if _, ok := v.keys[kid]; ok {
		return
	}
	v.keys[kid] = pub
	v.order = append(v.order, kid)
}

// Verify checks signature, algorithm, issuer and expiry
func (v *Verifier) Verify(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// keyFunc selects the key named by the kid header. Tokens without a kid are
// accepted only while a single key is configured.
func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		if len(v.order) == 1 {
			return v.keys[v.order[0]], nil
		}
		return nil, fmt.Errorf("token has no kid")
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

// KeyID derives a stable key id from the modulus of pub
func KeyID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:16])
}
