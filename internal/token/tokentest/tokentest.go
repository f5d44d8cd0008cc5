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

// Package tokentest generates throwaway key material for tests.
package tokentest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/opentrusty/auth-service/internal/token"
)

// KeyPair returns a fresh 2048-bit RSA key as private and public PEM text
func KeyPair(t testing.TB) (privatePEM, publicPEM string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate rsa key: %v", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}

	privatePEM = string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
	publicPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privatePEM, publicPEM
}

// Config returns a codec configuration with fresh keys
func Config(t testing.TB) token.Config {
	t.Helper()
	priv, _ := KeyPair(t)
	return token.Config{
		PrivateKeyPEM: priv,
		RefreshSecret: "test-refresh-secret",
		Issuer:        token.DefaultIssuer,
	}
}

// Codec returns a ready codec with fresh keys
func Codec(t testing.TB) *token.Codec {
	t.Helper()
	c, err := token.NewCodec(Config(t))
	if err != nil {
		t.Fatalf("failed to create codec: %v", err)
	}
	return c
}
