/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package envelope defines the boundary to the external DIDComm crypto
// engine. The wallet core builds plaintext messages and hands them to a
// Packer for encryption into JWE envelopes; it never implements the envelope
// cryptography itself.
package envelope

import (
	"context"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/google/uuid"

	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
)

// MediaTypeEncrypted is the content type of packed DIDComm envelopes.
const MediaTypeEncrypted = "application/didcomm-encrypted+json"

// Message is a DIDComm v2 plaintext message.
type Message struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	From        string                 `json:"from,omitempty"`
	To          []string               `json:"to,omitempty"`
	ThreadID    string                 `json:"thid,omitempty"`
	CreatedTime int64                  `json:"created_time,omitempty"`
	Body        map[string]interface{} `json:"body,omitempty"`
	Attachments []Attachment           `json:"attachments,omitempty"`
	ReturnRoute string                 `json:"return_route,omitempty"`
}

// NewMessage builds a plaintext message of the given type with a fresh ID and
// creation timestamp.
func NewMessage(msgType, from string, to ...string) *Message {
	return &Message{
		ID:          uuid.New().String(),
		Type:        msgType,
		From:        from,
		To:          to,
		CreatedTime: time.Now().Unix(),
		Body:        map[string]interface{}{},
	}
}

// Attachment carries payload data on a plaintext message.
type Attachment struct {
	ID        string         `json:"id,omitempty"`
	MediaType string         `json:"media_type,omitempty"`
	Data      AttachmentData `json:"data"`
}

// AttachmentData is either an inline JSON value or base64-encoded bytes.
type AttachmentData struct {
	JSON   interface{} `json:"json,omitempty"`
	Base64 string      `json:"base64,omitempty"`
}

// Envelope is the JWE shape of a packed message. It must interoperate
// byte-for-byte with any spec-compliant DIDComm v2 peer.
type Envelope struct {
	Protected  string      `json:"protected"`
	Recipients []Recipient `json:"recipients"`
	IV         string      `json:"iv"`
	Ciphertext string      `json:"ciphertext"`
	Tag        string      `json:"tag"`
}

// Recipient is a per-recipient entry in a JWE envelope.
type Recipient struct {
	EncryptedKey string          `json:"encrypted_key"`
	Header       RecipientHeader `json:"header"`
}

// RecipientHeader identifies the key a recipient entry was encrypted to.
type RecipientHeader struct {
	KID string `json:"kid"`
}

// Metadata describes how an envelope was protected.
type Metadata struct {
	ToKIDs        string
	FromKID       string
	Authenticated bool
}

// DIDResolver resolves DIDs to documents for the crypto engine. A nil
// document with a nil error means the DID method is not supported.
type DIDResolver interface {
	Resolve(did string) (*diddoc.Doc, error)
}

// SecretsResolver hands decrypted private key material to the crypto engine.
// Implementations must not retain material beyond the call: decrypted keys
// exist only for the duration of a single protocol operation.
type SecretsResolver interface {
	GetSecret(kid string) (*jose.JSONWebKey, error)
}

// Packer is the external DIDComm crypto engine.
type Packer interface {
	// PackEncrypted encrypts msg to the given recipient, authenticated from
	// the sender, returning the serialized envelope.
	PackEncrypted(ctx context.Context, msg *Message, to, from string,
		didResolver DIDResolver, secrets SecretsResolver) (string, error)

	// Unpack decrypts a serialized envelope back into a plaintext message.
	Unpack(ctx context.Context, envelope []byte,
		didResolver DIDResolver, secrets SecretsResolver) (*Message, *Metadata, error)
}

// StaticSecrets is a SecretsResolver over key material decrypted for a single
// protocol call.
type StaticSecrets map[string]*jose.JSONWebKey

// GetSecret implements SecretsResolver.
func (s StaticSecrets) GetSecret(kid string) (*jose.JSONWebKey, error) {
	if k, ok := s[kid]; ok {
		return k, nil
	}

	return nil, ErrSecretNotFound
}
