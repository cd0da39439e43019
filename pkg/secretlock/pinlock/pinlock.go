/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pinlock wraps private key material at rest under a user PIN.
// A 256-bit AES-GCM key is derived from the PIN with PBKDF2-HMAC-SHA256 and a
// per-secret random salt; the GCM tag is the sole access-control mechanism
// for the wrapped material. The lock has no network or protocol knowledge.
package pinlock

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/trustbloc/walletcore/pkg/common/walleterror"
)

const (
	// DefaultIterations is the PBKDF2 iteration count used unless overridden.
	DefaultIterations = 100_000

	saltSize  = 16
	nonceSize = 12
	keySize   = 32
)

// EncryptedSecret is the persisted form of a wrapped key component. It is
// never stored alongside the plaintext it protects.
type EncryptedSecret struct {
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
	Ciphertext string `json:"ciphertext"`
}

// Lock derives keys from PINs and wraps/unwraps secrets.
type Lock struct {
	iterations int
}

// Opt configures a Lock.
type Opt func(*Lock)

// WithIterations overrides the PBKDF2 iteration count.
func WithIterations(n int) Opt {
	return func(l *Lock) {
		l.iterations = n
	}
}

// New returns a Lock with the default KDF parameters.
func New(opts ...Opt) *Lock {
	l := &Lock{iterations: DefaultIterations}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Encrypt serializes secret to JSON and encrypts it under a key derived from
// pin with a fresh salt and nonce.
func (l *Lock) Encrypt(pin string, secret interface{}) (*EncryptedSecret, error) {
	plaintext, err := json.Marshal(secret)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.KindValidation, err, "serialize secret")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, walleterror.Wrap(walleterror.KindCrypto, err, "generate salt")
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, walleterror.Wrap(walleterror.KindCrypto, err, "generate iv")
	}

	aead, err := l.aead(pin, salt)
	if err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return &EncryptedSecret{
		Salt:       salt,
		IV:         nonce,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Decrypt re-derives the key from pin and salt and unwraps the secret into
// out. It fails with a crypto error when pin, salt or iv differ from
// encryption time (authentication-tag mismatch).
func (l *Lock) Decrypt(pin string, salt, iv []byte, ciphertext string, out interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return walleterror.Wrap(walleterror.KindValidation, err, "decode ciphertext")
	}

	aead, err := l.aead(pin, salt)
	if err != nil {
		return err
	}

	if len(iv) != aead.NonceSize() {
		return walleterror.NewCrypto(fmt.Sprintf("iv must be %d bytes", aead.NonceSize()))
	}

	plaintext, err := aead.Open(nil, iv, raw, nil)
	if err != nil {
		return walleterror.Wrap(walleterror.KindCrypto, err, "unwrap secret")
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return walleterror.Wrap(walleterror.KindValidation, err, "parse secret")
	}

	return nil
}

// DecryptSecret unwraps a stored EncryptedSecret record.
func (l *Lock) DecryptSecret(pin string, secret *EncryptedSecret, out interface{}) error {
	return l.Decrypt(pin, secret.Salt, secret.IV, secret.Ciphertext, out)
}

// aead derives the AES-GCM primitive for pin+salt. The KDF is deterministic:
// identical inputs always produce interchangeable keys.
func (l *Lock) aead(pin string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(pin), salt, l.iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.KindCrypto, err, "init cipher")
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.KindCrypto, err, "init gcm")
	}

	return aead, nil
}
