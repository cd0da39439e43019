/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package peer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

const (
	// source: https://github.com/multiformats/multicodec/blob/master/table.csv.
	ed25519pub   = 0xed   // Ed25519 public key
	jsonDocument = 0x0200 // JSON document (method 4 encoded doc)
)

// KeyFingerprint generates a multicodec fingerprint for raw public key bytes:
// base58btc multibase of the varint code followed by the key.
func KeyFingerprint(code uint64, pubKeyValue []byte) string {
	multicodecValue := multicodec(code)
	mcLength := len(multicodecValue)
	buf := make([]uint8, mcLength+len(pubKeyValue))
	copy(buf, multicodecValue)
	copy(buf[mcLength:], pubKeyValue)

	return fmt.Sprintf("z%s", base58.Encode(buf))
}

func multicodec(code uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, code)

	return buf[:n]
}

// PubKeyFromFingerprint extracts the raw Ed25519 public key from a multibase
// fingerprint produced by KeyFingerprint.
func PubKeyFromFingerprint(fingerprint string) ([]byte, error) {
	if len(fingerprint) < 2 || fingerprint[0] != 'z' {
		return nil, fmt.Errorf("unknown multibase prefix in fingerprint %q", fingerprint)
	}

	mc := base58.Decode(fingerprint[1:]) // skip leading "z"

	prefix := multicodec(ed25519pub)
	if len(mc) < len(prefix) || !bytes.Equal(prefix, mc[:len(prefix)]) {
		return nil, fmt.Errorf("pubKeyFromFingerprint: not supported public key (multicodec code: %#x)", mc[0])
	}

	return mc[len(prefix):], nil
}
