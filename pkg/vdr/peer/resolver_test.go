/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package peer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/require"

	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
)

func TestResolveDIDMethod0(t *testing.T) {
	ident, err := CreateMethod0(testKey(t, 11))
	require.NoError(t, err)

	doc, err := ResolveDID(ident.DID)
	require.NoError(t, err)
	require.NotNil(t, doc)
	require.Equal(t, ident.DID, doc.ID)
	require.Equal(t, ident.Doc.VerificationMethod[0].PublicKeyMultibase, doc.VerificationMethod[0].PublicKeyMultibase)
}

func TestResolveDIDMethod2RoundTrip(t *testing.T) {
	endpoint := diddoc.Endpoint{
		URI:         "https://mediator.example.com",
		Accept:      []string{"didcomm/v2"},
		RoutingKeys: []string{"did:peer:2.Ez6Mmediator#key-2"},
	}

	ident, err := CreateMethod2(testKey(t, 12), testKey(t, 13), []diddoc.Endpoint{endpoint})
	require.NoError(t, err)

	doc, err := ResolveDID(ident.DID)
	require.NoError(t, err)
	require.NotNil(t, doc)

	require.Equal(t, ident.Doc.VerificationMethod[0].PublicKeyMultibase, doc.VerificationMethod[0].PublicKeyMultibase)
	require.Equal(t, ident.Doc.VerificationMethod[1].PublicKeyMultibase, doc.VerificationMethod[1].PublicKeyMultibase)
	require.Equal(t, []string{"#key-1"}, doc.Authentication)
	require.Equal(t, []string{"#key-2"}, doc.KeyAgreement)

	require.Len(t, doc.Service, 1)
	require.Equal(t, diddoc.ServiceTypeDIDCommMessaging, doc.Service[0].Type)
	require.Equal(t, endpoint, doc.Service[0].ServiceEndpoint)
}

func TestResolveDIDUnsupported(t *testing.T) {
	t.Run("non peer method", func(t *testing.T) {
		doc, err := ResolveDID("did:web:example.com")
		require.NoError(t, err)
		require.Nil(t, doc)
	})

	t.Run("hash based methods resolve to nil", func(t *testing.T) {
		for _, did := range []string{"did:peer:1zQmValue", "did:peer:3zQmValue", "did:peer:4zQmValue"} {
			doc, err := ResolveDID(did)
			require.NoError(t, err)
			require.Nil(t, doc)
		}
	})

	t.Run("unknown numalgo fails", func(t *testing.T) {
		_, err := ResolveDID("did:peer:9zQmValue")
		require.ErrorIs(t, err, ErrUnsupportedMethod)
	})

	t.Run("empty identifier fails", func(t *testing.T) {
		_, err := ResolveDID("did:peer:")
		require.Error(t, err)
	})
}

func TestResolveDIDMethod2BadSegment(t *testing.T) {
	_, err := ResolveDID("did:peer:2.Xnope")
	require.Error(t, err)
}

func TestResolveDIDMethod4RejectsTampering(t *testing.T) {
	ident, err := CreateMethod4(testKey(t, 14), testKey(t, 15),
		[]diddoc.Endpoint{{URI: "https://mediator.example.com"}})
	require.NoError(t, err)

	doc, err := ResolveDID(ident.LongFormDID)
	require.NoError(t, err)
	require.NotNil(t, doc)

	suffix := strings.TrimPrefix(ident.LongFormDID, DIDMethod+"4")
	parts := strings.SplitN(suffix, ":", 2)
	hash, encodedDoc := parts[0], parts[1]

	t.Run("tampered document no longer matches the hash", func(t *testing.T) {
		tampered := []byte(encodedDoc)
		tampered[len(tampered)-1] ^= 1

		_, err := ResolveDID(DIDMethod + "4" + hash + ":" + string(tampered))
		require.Error(t, err)
		require.Contains(t, err.Error(), "hash does not match")
	})

	t.Run("hash from another identity is rejected", func(t *testing.T) {
		other, err := CreateMethod4(testKey(t, 16), testKey(t, 17), nil)
		require.NoError(t, err)

		otherHash := strings.SplitN(strings.TrimPrefix(other.LongFormDID, DIDMethod+"4"), ":", 2)[0]

		_, err = ResolveDID(DIDMethod + "4" + otherHash + ":" + encodedDoc)
		require.Error(t, err)
		require.Contains(t, err.Error(), "hash does not match")
	})

	t.Run("foreign multicodec prefix is rejected", func(t *testing.T) {
		docJSON, err := json.Marshal(ident.Doc)
		require.NoError(t, err)

		// Correctly hashed long form whose document bytes carry the ed25519
		// key codec instead of the json document codec.
		foreign := "z" + base58.Encode(append(multicodec(ed25519pub), docJSON...))

		_, err = ResolveDID(DIDMethod + "4" + method4Hash(foreign) + ":" + foreign)
		require.Error(t, err)
		require.Contains(t, err.Error(), "multicodec prefix")
	})
}
