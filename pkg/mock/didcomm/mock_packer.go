/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package didcomm provides crypto-engine test doubles. The real engine is an
// external collaborator; these mocks keep the wallet core's tests independent
// of it.
package didcomm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/trustbloc/walletcore/pkg/didcomm/envelope"
)

// MockPacker returns canned values.
type MockPacker struct {
	PackValue   string
	PackErr     error
	UnpackValue *envelope.Message
	UnpackErr   error
}

// PackEncrypted returns the canned envelope.
func (m *MockPacker) PackEncrypted(_ context.Context, _ *envelope.Message, _, _ string,
	_ envelope.DIDResolver, _ envelope.SecretsResolver) (string, error) {
	return m.PackValue, m.PackErr
}

// Unpack returns the canned message.
func (m *MockPacker) Unpack(_ context.Context, _ []byte,
	_ envelope.DIDResolver, _ envelope.SecretsResolver) (*envelope.Message, *envelope.Metadata, error) {
	return m.UnpackValue, &envelope.Metadata{}, m.UnpackErr
}

// JSONPacker is a round-trip packer without cryptography: the plaintext is
// base64-encoded into a JWE-shaped envelope and recovered on unpack. It lets
// test mediators build response envelopes the client actually decodes.
type JSONPacker struct{}

// PackEncrypted wraps msg in a mock JWE envelope addressed to recipient.
func (p *JSONPacker) PackEncrypted(_ context.Context, msg *envelope.Message, to, _ string,
	_ envelope.DIDResolver, _ envelope.SecretsResolver) (string, error) {
	plaintext, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	env := envelope.Envelope{
		Protected: "bW9jaw", // base64url("mock")
		Recipients: []envelope.Recipient{
			{EncryptedKey: "bW9jaw", Header: envelope.RecipientHeader{KID: to + "#key-2"}},
		},
		IV:         "bW9jaw",
		Ciphertext: base64.StdEncoding.EncodeToString(plaintext),
		Tag:        "bW9jaw",
	}

	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

// Unpack recovers the plaintext message from a mock envelope.
func (p *JSONPacker) Unpack(_ context.Context, raw []byte,
	_ envelope.DIDResolver, _ envelope.SecretsResolver) (*envelope.Message, *envelope.Metadata, error) {
	var env envelope.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("parse mock envelope: %w", err)
	}

	plaintext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("decode mock ciphertext: %w", err)
	}

	msg := &envelope.Message{}
	if err := json.Unmarshal(plaintext, msg); err != nil {
		return nil, nil, fmt.Errorf("parse mock plaintext: %w", err)
	}

	meta := &envelope.Metadata{Authenticated: msg.From != ""}

	if len(env.Recipients) > 0 {
		meta.ToKIDs = env.Recipients[0].Header.KID
	}

	return msg, meta, nil
}

// PackPlaintext is a helper for test servers that need to hand a message to a
// client in packed form.
func PackPlaintext(msg *envelope.Message) string {
	p := &JSONPacker{}

	packed, err := p.PackEncrypted(context.Background(), msg, firstTo(msg), msg.From, nil, nil)
	if err != nil {
		panic(err) // test helper, inputs are fixtures
	}

	return packed
}

func firstTo(msg *envelope.Message) string {
	if len(msg.To) > 0 {
		return msg.To[0]
	}

	return ""
}
