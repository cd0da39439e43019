/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package peer

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/go-jose/go-jose/v3"
)

// KeyMaterial is a raw Ed25519 key pair together with its JWK view. It is
// owned exclusively by the identity that generated it until the private half
// is wrapped by the key vault and the plaintext is discarded.
type KeyMaterial struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyMaterial creates a fresh Ed25519 pair from crypto/rand.
func GenerateKeyMaterial() (*KeyMaterial, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}

	return &KeyMaterial{PublicKey: pub, PrivateKey: priv}, nil
}

// JWK returns the private JWK form under the given key ID.
func (k *KeyMaterial) JWK(kid string) *jose.JSONWebKey {
	return &jose.JSONWebKey{
		Key:       k.PrivateKey,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
	}
}

// PublicJWK returns the public JWK form under the given key ID.
func (k *KeyMaterial) PublicJWK(kid string) *jose.JSONWebKey {
	return &jose.JSONWebKey{
		Key:       k.PublicKey,
		KeyID:     kid,
		Algorithm: string(jose.EdDSA),
	}
}

// Fingerprint returns the multicodec multibase fingerprint of the public key.
func (k *KeyMaterial) Fingerprint() string {
	return KeyFingerprint(ed25519pub, k.PublicKey)
}
