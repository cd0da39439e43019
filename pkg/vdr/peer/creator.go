/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package peer builds and decodes did:peer identifiers (methods 0-4).
// All generators are deterministic given their key inputs: identical key
// material always yields a byte-identical DID string.
package peer

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"

	"github.com/trustbloc/walletcore/pkg/common/walleterror"
	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
)

const (
	// DIDMethod is the did:peer method prefix.
	DIDMethod = "did:peer:"

	ed25519VerificationKey2020 = "Ed25519VerificationKey2020"

	purposeVerification = "V"
	purposeEncryption   = "E"
	purposeService      = "S"

	serviceIDDIDComm = "#didcommmessaging"

	abbreviatedDIDCommType = "dm"

	// multihash sha2-256 header used by the method 3/4 short forms.
	sha2_256Code   = 0x12
	sha2_256Length = 0x20
)

// ErrUnsupportedMethod is returned when an unknown did:peer method variant is
// requested. No partial identifier is ever returned alongside it.
var ErrUnsupportedMethod = walleterror.NewValidation("unsupported did:peer method")

// Method selects a did:peer generation algorithm.
type Method int

// Supported did:peer methods.
const (
	Method0 Method = iota
	Method1
	Method2
	Method3
	Method4
)

// Identity is the result of building a peer DID: the identifier, its local
// document view, and the key material backing it. The private halves are the
// caller's to wrap and discard.
type Identity struct {
	DID string
	Doc *diddoc.Doc

	// VerificationKey backs #key-1 (methods 2-4) or the single key (0/1).
	VerificationKey *KeyMaterial
	// EncryptionKey backs #key-2; nil for methods 0 and 1.
	EncryptionKey *KeyMaterial

	// GenesisDoc is the serialized genesis document hashed into a method 1
	// DID. Consumers holding it can recompute the identifier byte-for-byte.
	GenesisDoc []byte

	// LongFormDID is the self-contained method 4 long form.
	LongFormDID string
}

type createOptions struct {
	endpoints       []diddoc.Endpoint
	verificationKey *KeyMaterial
	encryptionKey   *KeyMaterial
}

// Option configures Create.
type Option func(*createOptions)

// WithEndpoint adds a DIDCommMessaging service endpoint (methods 2-4).
func WithEndpoint(endpoint diddoc.Endpoint) Option {
	return func(o *createOptions) {
		o.endpoints = append(o.endpoints, endpoint)
	}
}

// WithMediatorRoutingKey adds an endpoint whose routing_keys carry the
// mediator's routing key instead of a self-reference.
func WithMediatorRoutingKey(uri, routingKey string) Option {
	return func(o *createOptions) {
		o.endpoints = append(o.endpoints, diddoc.Endpoint{
			URI:         uri,
			Accept:      []string{"didcomm/v2"},
			RoutingKeys: []string{routingKey},
		})
	}
}

// WithVerificationKey supplies the verification key pair instead of
// generating one.
func WithVerificationKey(k *KeyMaterial) Option {
	return func(o *createOptions) {
		o.verificationKey = k
	}
}

// WithEncryptionKey supplies the encryption key pair instead of generating
// one.
func WithEncryptionKey(k *KeyMaterial) Option {
	return func(o *createOptions) {
		o.encryptionKey = k
	}
}

// Create builds a peer DID identity for the requested method, generating any
// key material not supplied through options.
func Create(method Method, opts ...Option) (*Identity, error) {
	o := &createOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if o.verificationKey == nil {
		k, err := GenerateKeyMaterial()
		if err != nil {
			return nil, err
		}

		o.verificationKey = k
	}

	if o.encryptionKey == nil && method >= Method2 && method <= Method4 {
		k, err := GenerateKeyMaterial()
		if err != nil {
			return nil, err
		}

		o.encryptionKey = k
	}

	switch method {
	case Method0:
		return CreateMethod0(o.verificationKey)
	case Method1:
		return CreateMethod1(o.verificationKey)
	case Method2:
		return CreateMethod2(o.verificationKey, o.encryptionKey, o.endpoints)
	case Method3:
		return CreateMethod3(o.verificationKey, o.encryptionKey, o.endpoints)
	case Method4:
		return CreateMethod4(o.verificationKey, o.encryptionKey, o.endpoints)
	default:
		return nil, fmt.Errorf("method %d: %w", method, ErrUnsupportedMethod)
	}
}

// CreateMethod0 derives the non-updatable method 0 identifier:
// did:peer:0z + base58(multicodec(ed25519-pub) || raw public key).
func CreateMethod0(key *KeyMaterial) (*Identity, error) {
	if key == nil {
		return nil, walleterror.NewValidation("method 0 requires key material")
	}

	id := DIDMethod + "0" + key.Fingerprint()

	doc := &diddoc.Doc{
		Context: []string{diddoc.ContextV1},
		ID:      id,
		VerificationMethod: []diddoc.VerificationMethod{{
			ID:                 id + "#" + key.Fingerprint(),
			Type:               ed25519VerificationKey2020,
			Controller:         id,
			PublicKeyMultibase: key.Fingerprint(),
		}},
		Authentication: []string{id + "#" + key.Fingerprint()},
	}

	return &Identity{DID: id, Doc: doc, VerificationKey: key}, nil
}

// genesisDoc is the minimal structure hashed into a method 1 identifier. The
// field order of this struct fixes the serialization, so every holder of the
// genesis bytes recomputes the same hash.
type genesisDoc struct {
	ID                 string                      `json:"id"`
	VerificationMethod []diddoc.VerificationMethod `json:"verificationMethod"`
}

// CreateMethod1 derives the method 1 identifier by hashing a genesis
// document: did:peer:1z + base58(sha256(genesis)).
func CreateMethod1(key *KeyMaterial) (*Identity, error) {
	if key == nil {
		return nil, walleterror.NewValidation("method 1 requires key material")
	}

	genesis := genesisDoc{
		ID: "#id",
		VerificationMethod: []diddoc.VerificationMethod{{
			ID:                 "#id",
			Type:               ed25519VerificationKey2020,
			PublicKeyMultibase: key.Fingerprint(),
		}},
	}

	genesisBytes, err := json.Marshal(genesis)
	if err != nil {
		return nil, fmt.Errorf("marshal genesis document: %w", err)
	}

	sum := sha256.Sum256(genesisBytes)
	id := DIDMethod + "1z" + base58.Encode(sum[:])

	doc := &diddoc.Doc{
		Context: []string{diddoc.ContextV1},
		ID:      id,
		VerificationMethod: []diddoc.VerificationMethod{{
			ID:                 id + "#id",
			Type:               ed25519VerificationKey2020,
			Controller:         id,
			PublicKeyMultibase: key.Fingerprint(),
		}},
		Authentication: []string{id + "#id"},
	}

	return &Identity{DID: id, Doc: doc, VerificationKey: key, GenesisDoc: genesisBytes}, nil
}

// abbreviatedService is the compact service form embedded in method 2/3
// identifiers, per the did:peer common abbreviations.
type abbreviatedService struct {
	T string              `json:"t"`
	S abbreviatedEndpoint `json:"s"`
}

type abbreviatedEndpoint struct {
	URI string   `json:"uri"`
	A   []string `json:"a,omitempty"`
	R   []string `json:"r,omitempty"`
}

// CreateMethod2 derives the method 2 identifier from a verification key, an
// encryption key and zero or more service endpoints. Key segments always
// precede service segments.
func CreateMethod2(verKey, encKey *KeyMaterial, endpoints []diddoc.Endpoint) (*Identity, error) {
	if verKey == nil || encKey == nil {
		return nil, walleterror.NewValidation("method 2 requires verification and encryption key material")
	}

	var b strings.Builder

	b.WriteString(DIDMethod + "2")
	b.WriteString("." + purposeVerification + verKey.Fingerprint())
	b.WriteString("." + purposeEncryption + encKey.Fingerprint())

	for i := range endpoints {
		seg, err := serviceSegment(&endpoints[i])
		if err != nil {
			return nil, err
		}

		b.WriteString(seg)
	}

	id := b.String()

	doc, err := method2Doc(id, verKey, encKey, endpoints)
	if err != nil {
		return nil, err
	}

	return &Identity{DID: id, Doc: doc, VerificationKey: verKey, EncryptionKey: encKey}, nil
}

func serviceSegment(endpoint *diddoc.Endpoint) (string, error) {
	abbrev := abbreviatedService{
		T: abbreviatedDIDCommType,
		S: abbreviatedEndpoint{
			URI: endpoint.URI,
			A:   endpoint.Accept,
			R:   endpoint.RoutingKeys,
		},
	}

	abbrevBytes, err := json.Marshal(abbrev)
	if err != nil {
		return "", fmt.Errorf("marshal abbreviated service: %w", err)
	}

	return "." + purposeService + base64.RawURLEncoding.EncodeToString(abbrevBytes), nil
}

func method2Doc(id string, verKey, encKey *KeyMaterial, endpoints []diddoc.Endpoint) (*diddoc.Doc, error) {
	doc := &diddoc.Doc{
		Context: []string{diddoc.ContextV1},
		ID:      id,
		VerificationMethod: []diddoc.VerificationMethod{
			{
				ID:                 "#key-1",
				Type:               ed25519VerificationKey2020,
				Controller:         id,
				PublicKeyMultibase: verKey.Fingerprint(),
			},
			{
				ID:                 "#key-2",
				Type:               ed25519VerificationKey2020,
				Controller:         id,
				PublicKeyMultibase: encKey.Fingerprint(),
			},
		},
		Authentication: []string{"#key-1"},
		KeyAgreement:   []string{"#key-2"},
	}

	for i, endpoint := range endpoints {
		svcID := serviceIDDIDComm
		if i > 0 {
			svcID = fmt.Sprintf("%s-%d", serviceIDDIDComm, i)
		}

		doc.Service = append(doc.Service, diddoc.Service{
			ID:              svcID,
			Type:            diddoc.ServiceTypeDIDCommMessaging,
			ServiceEndpoint: endpoint,
		})
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

// CreateMethod3 derives the hash-based short identifier referencing a method
// 2 document: did:peer:3z + base58(sha256(method-2 suffix)).
func CreateMethod3(verKey, encKey *KeyMaterial, endpoints []diddoc.Endpoint) (*Identity, error) {
	m2, err := CreateMethod2(verKey, encKey, endpoints)
	if err != nil {
		return nil, err
	}

	suffix := strings.TrimPrefix(m2.DID, DIDMethod+"2")
	sum := sha256.Sum256([]byte(suffix))
	id := DIDMethod + "3z" + base58.Encode(sum[:])

	doc := *m2.Doc
	doc.ID = id

	return &Identity{
		DID:             id,
		Doc:             &doc,
		VerificationKey: verKey,
		EncryptionKey:   encKey,
		LongFormDID:     m2.DID,
	}, nil
}

// method4Hash computes the multihash identifier segment of a method 4 DID:
// base58btc multibase of (sha2-256 header || sha256(encodedDoc)).
func method4Hash(encodedDoc string) string {
	sum := sha256.Sum256([]byte(encodedDoc))

	return "z" + base58.Encode(append([]byte{sha2_256Code, sha2_256Length}, sum[:]...))
}

// CreateMethod4 derives the method 4 long form did:peer:4<hash>:<encodedDoc>
// and its short form did:peer:4<hash>, with two independent key pairs as
// #key-1 and #key-2.
func CreateMethod4(key1, key2 *KeyMaterial, endpoints []diddoc.Endpoint) (*Identity, error) {
	if key1 == nil || key2 == nil {
		return nil, walleterror.NewValidation("method 4 requires two key pairs")
	}

	input := &diddoc.Doc{
		VerificationMethod: []diddoc.VerificationMethod{
			{ID: "#key-1", Type: ed25519VerificationKey2020, PublicKeyMultibase: key1.Fingerprint()},
			{ID: "#key-2", Type: ed25519VerificationKey2020, PublicKeyMultibase: key2.Fingerprint()},
		},
		Authentication: []string{"#key-1"},
		KeyAgreement:   []string{"#key-2"},
	}

	for i, endpoint := range endpoints {
		svcID := serviceIDDIDComm
		if i > 0 {
			svcID = fmt.Sprintf("%s-%d", serviceIDDIDComm, i)
		}

		input.Service = append(input.Service, diddoc.Service{
			ID:              svcID,
			Type:            diddoc.ServiceTypeDIDCommMessaging,
			ServiceEndpoint: endpoint,
		})
	}

	docBytes, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal method 4 document: %w", err)
	}

	prefixed := append(multicodec(jsonDocument), docBytes...)
	encodedDoc := "z" + base58.Encode(prefixed)

	shortForm := DIDMethod + "4" + method4Hash(encodedDoc)
	longForm := shortForm + ":" + encodedDoc

	doc := *input
	doc.Context = []string{diddoc.ContextV1}
	doc.ID = longForm

	return &Identity{
		DID:             shortForm,
		Doc:             &doc,
		VerificationKey: key1,
		EncryptionKey:   key2,
		LongFormDID:     longForm,
	}, nil
}
