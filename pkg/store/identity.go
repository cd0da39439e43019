/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package store

import (
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v3"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/trustbloc/walletcore/pkg/didcomm/envelope"
	"github.com/trustbloc/walletcore/pkg/secretlock/pinlock"
	"github.com/trustbloc/walletcore/pkg/vdr/peer"
)

// Key purposes recorded on wrapped key components. Methods 0/1 persist a
// single verification component; methods 2/3 persist V and E; method 4
// persists components 1 and 2.
const (
	PurposeVerification = "V"
	PurposeEncryption   = "E"
	PurposeKey1         = "1"
	PurposeKey2         = "2"
)

// WrappedKey is one wrapped private key component of an identity. Only the
// encrypted form is ever persisted.
type WrappedKey struct {
	KID          string                   `json:"kid"`
	Purpose      string                   `json:"purpose"`
	EncryptedKey *pinlock.EncryptedSecret `json:"encryptedKey"`
}

// Identity is a persisted wallet identity: the DID and its wrapped key
// components. Plaintext key material is stripped before this record exists.
type Identity struct {
	DID         string       `json:"did"`
	LongFormDID string       `json:"longFormDid,omitempty"`
	GenesisDoc  []byte       `json:"genesisDoc,omitempty"`
	Keys        []WrappedKey `json:"keys"`
}

// IdentityStore persists identities keyed by DID.
type IdentityStore struct {
	store storage.Store
}

// Save stores the identity record.
func (s *IdentityStore) Save(i *Identity) error {
	return put(s.store, i.DID, i)
}

// Get loads an identity by DID.
func (s *IdentityStore) Get(did string) (*Identity, error) {
	i := &Identity{}
	if err := get(s.store, did, i); err != nil {
		return nil, err
	}

	return i, nil
}

// WrapIdentity converts freshly built peer DID material into a persistable
// record, wrapping each private key component under the PIN. The plaintext
// halves never enter the record.
func WrapIdentity(lock *pinlock.Lock, pin string, ident *peer.Identity) (*Identity, error) {
	record := &Identity{
		DID:         ident.DID,
		LongFormDID: ident.LongFormDID,
		GenesisDoc:  ident.GenesisDoc,
	}

	type component struct {
		key     *peer.KeyMaterial
		purpose string
		kid     string
	}

	var components []component

	switch {
	case ident.EncryptionKey == nil:
		components = []component{
			{ident.VerificationKey, PurposeVerification, ident.DID + "#" + ident.VerificationKey.Fingerprint()},
		}
	case strings.HasPrefix(ident.DID, peer.DIDMethod+"4"):
		// Method 4 keys are positional rather than purpose-bound.
		components = []component{
			{ident.VerificationKey, PurposeKey1, ident.DID + "#key-1"},
			{ident.EncryptionKey, PurposeKey2, ident.DID + "#key-2"},
		}
	default:
		components = []component{
			{ident.VerificationKey, PurposeVerification, ident.DID + "#key-1"},
			{ident.EncryptionKey, PurposeEncryption, ident.DID + "#key-2"},
		}
	}

	for _, c := range components {
		wrapped, err := lock.Encrypt(pin, c.key.JWK(c.kid))
		if err != nil {
			return nil, fmt.Errorf("wrap key %s: %w", c.kid, err)
		}

		record.Keys = append(record.Keys, WrappedKey{
			KID:          c.kid,
			Purpose:      c.purpose,
			EncryptedKey: wrapped,
		})
	}

	return record, nil
}

// UnwrapSecrets decrypts the identity's key components into a secrets
// resolver for a single protocol call. The result must not be cached,
// persisted or logged.
func (i *Identity) UnwrapSecrets(lock *pinlock.Lock, pin string) (envelope.StaticSecrets, error) {
	secrets := envelope.StaticSecrets{}

	for _, wk := range i.Keys {
		jwk := &jose.JSONWebKey{}
		if err := lock.DecryptSecret(pin, wk.EncryptedKey, jwk); err != nil {
			return nil, fmt.Errorf("unwrap key %s: %w", wk.KID, err)
		}

		secrets[wk.KID] = jwk
	}

	return secrets, nil
}
