/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package peer

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"

	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
)

func testKey(t *testing.T, seed byte) *KeyMaterial {
	t.Helper()

	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))

	return &KeyMaterial{
		PublicKey:  priv.Public().(ed25519.PublicKey),
		PrivateKey: priv,
	}
}

func TestCreateMethod0(t *testing.T) {
	key := testKey(t, 1)

	ident, err := CreateMethod0(key)
	require.NoError(t, err)

	expected := "did:peer:0z" + base58.Encode(append([]byte{0xed, 0x01}, key.PublicKey...))
	require.Equal(t, expected, ident.DID)

	t.Run("deterministic", func(t *testing.T) {
		again, err := CreateMethod0(key)
		require.NoError(t, err)
		require.Equal(t, ident.DID, again.DID)
	})

	t.Run("document references its key", func(t *testing.T) {
		require.NoError(t, ident.Doc.Validate())
		require.Equal(t, ident.DID, ident.Doc.ID)
		require.Len(t, ident.Doc.VerificationMethod, 1)
	})

	t.Run("nil key rejected", func(t *testing.T) {
		_, err := CreateMethod0(nil)
		require.Error(t, err)
	})
}

func TestCreateMethod1(t *testing.T) {
	key := testKey(t, 2)

	ident, err := CreateMethod1(key)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ident.DID, "did:peer:1z"))
	require.NotEmpty(t, ident.GenesisDoc)

	t.Run("holder of the genesis document recomputes the hash", func(t *testing.T) {
		sum := sha256.Sum256(ident.GenesisDoc)
		require.Equal(t, "did:peer:1z"+base58.Encode(sum[:]), ident.DID)
	})

	t.Run("genesis references #id", func(t *testing.T) {
		var genesis map[string]interface{}
		require.NoError(t, json.Unmarshal(ident.GenesisDoc, &genesis))
		require.Equal(t, "#id", genesis["id"])
	})
}

func TestCreateMethod2(t *testing.T) {
	verKey := testKey(t, 3)
	encKey := testKey(t, 4)

	endpoint := diddoc.Endpoint{URI: "https://mediator.example.com", Accept: []string{"didcomm/v2"}}

	ident, err := CreateMethod2(verKey, encKey, []diddoc.Endpoint{endpoint})
	require.NoError(t, err)

	t.Run("keys precede services in fixed order", func(t *testing.T) {
		suffix := strings.TrimPrefix(ident.DID, "did:peer:2")
		segments := strings.Split(strings.TrimPrefix(suffix, "."), ".")
		require.Len(t, segments, 3)
		require.Equal(t, byte('V'), segments[0][0])
		require.Equal(t, byte('E'), segments[1][0])
		require.Equal(t, byte('S'), segments[2][0])
		require.Equal(t, "V"+verKey.Fingerprint(), segments[0])
		require.Equal(t, "E"+encKey.Fingerprint(), segments[1])
	})

	t.Run("service segment decodes to the abbreviated form", func(t *testing.T) {
		segments := strings.Split(ident.DID, ".")
		raw, err := base64.RawURLEncoding.DecodeString(segments[len(segments)-1][1:])
		require.NoError(t, err)

		var abbrev map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &abbrev))
		require.Equal(t, "dm", abbrev["t"])
		require.Equal(t, "https://mediator.example.com", abbrev["s"].(map[string]interface{})["uri"])
	})

	t.Run("document view maps keys and service", func(t *testing.T) {
		require.NoError(t, ident.Doc.Validate())
		require.Equal(t, "#key-1", ident.Doc.VerificationMethod[0].ID)
		require.Equal(t, verKey.Fingerprint(), ident.Doc.VerificationMethod[0].PublicKeyMultibase)
		require.Equal(t, "#key-2", ident.Doc.VerificationMethod[1].ID)
		require.Equal(t, encKey.Fingerprint(), ident.Doc.VerificationMethod[1].PublicKeyMultibase)
		require.Equal(t, "#didcommmessaging", ident.Doc.Service[0].ID)
	})

	t.Run("deterministic", func(t *testing.T) {
		again, err := CreateMethod2(verKey, encKey, []diddoc.Endpoint{endpoint})
		require.NoError(t, err)
		require.Equal(t, ident.DID, again.DID)
	})

	t.Run("missing encryption key rejected", func(t *testing.T) {
		_, err := CreateMethod2(verKey, nil, nil)
		require.Error(t, err)
	})
}

func TestCreateMethod2WithMediatorRoutingKey(t *testing.T) {
	ident, err := Create(Method2,
		WithVerificationKey(testKey(t, 5)),
		WithEncryptionKey(testKey(t, 6)),
		WithMediatorRoutingKey("https://mediator.example.com", "did:peer:2.Ez6Mmediator#key-2"),
	)
	require.NoError(t, err)

	require.Len(t, ident.Doc.Service, 1)
	require.Equal(t, []string{"did:peer:2.Ez6Mmediator#key-2"}, ident.Doc.Service[0].ServiceEndpoint.RoutingKeys)

	segments := strings.Split(ident.DID, ".")
	raw, err := base64.RawURLEncoding.DecodeString(segments[len(segments)-1][1:])
	require.NoError(t, err)
	require.Contains(t, string(raw), `"r":["did:peer:2.Ez6Mmediator#key-2"]`)
}

func TestCreateMethod3(t *testing.T) {
	verKey := testKey(t, 7)
	encKey := testKey(t, 8)

	ident, err := CreateMethod3(verKey, encKey, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ident.DID, "did:peer:3z"))

	t.Run("short form hashes the method 2 suffix", func(t *testing.T) {
		m2, err := CreateMethod2(verKey, encKey, nil)
		require.NoError(t, err)

		sum := sha256.Sum256([]byte(strings.TrimPrefix(m2.DID, "did:peer:2")))
		require.Equal(t, "did:peer:3z"+base58.Encode(sum[:]), ident.DID)
		require.Equal(t, m2.DID, ident.LongFormDID)
	})
}

func TestCreateMethod4(t *testing.T) {
	key1 := testKey(t, 9)
	key2 := testKey(t, 10)

	ident, err := CreateMethod4(key1, key2, []diddoc.Endpoint{{URI: "https://mediator.example.com"}})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(ident.DID, "did:peer:4z"))
	require.True(t, strings.HasPrefix(ident.LongFormDID, ident.DID+":"))

	t.Run("long form resolves back to the document", func(t *testing.T) {
		doc, err := ResolveDID(ident.LongFormDID)
		require.NoError(t, err)
		require.NotNil(t, doc)
		require.Equal(t, "#key-1", doc.VerificationMethod[0].ID)
		require.Equal(t, "#key-2", doc.VerificationMethod[1].ID)
		require.Equal(t, "https://mediator.example.com", doc.Service[0].ServiceEndpoint.URI)
	})

	t.Run("independent pairs", func(t *testing.T) {
		require.NotEqual(t,
			ident.Doc.VerificationMethod[0].PublicKeyMultibase,
			ident.Doc.VerificationMethod[1].PublicKeyMultibase)
	})
}

func TestCreateUnsupportedMethod(t *testing.T) {
	ident, err := Create(Method(9))
	require.Nil(t, ident)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnsupportedMethod))
}
