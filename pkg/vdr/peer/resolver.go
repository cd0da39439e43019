/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package peer

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"

	"github.com/trustbloc/walletcore/pkg/common/walleterror"
	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
)

// IsPeerDID reports whether the string is a did:peer identifier.
func IsPeerDID(did string) bool {
	return strings.HasPrefix(did, DIDMethod)
}

// ResolveDID reconstructs a DID document from a self-describing did:peer
// string. Methods 0, 2 and the method 4 long form carry enough material to
// rebuild the document; methods 1, 3 and the method 4 short form reference
// externally stored documents and resolve to nil here.
func ResolveDID(did string) (*diddoc.Doc, error) {
	if !IsPeerDID(did) {
		return nil, nil
	}

	suffix := strings.TrimPrefix(did, DIDMethod)
	if suffix == "" {
		return nil, walleterror.NewValidation("empty did:peer method identifier")
	}

	switch suffix[0] {
	case '0':
		return resolveMethod0(did, suffix[1:])
	case '2':
		return resolveMethod2(did, suffix[1:])
	case '4':
		return resolveMethod4(did, suffix[1:])
	case '1', '3':
		// Hash-based identifiers need the stored genesis/long-form document.
		return nil, nil
	default:
		return nil, fmt.Errorf("method %c: %w", suffix[0], ErrUnsupportedMethod)
	}
}

func resolveMethod0(did, fingerprint string) (*diddoc.Doc, error) {
	if _, err := PubKeyFromFingerprint(fingerprint); err != nil {
		return nil, walleterror.Wrap(walleterror.KindValidation, err, "decode method 0 key")
	}

	keyID := did + "#" + fingerprint

	return &diddoc.Doc{
		Context: []string{diddoc.ContextV1},
		ID:      did,
		VerificationMethod: []diddoc.VerificationMethod{{
			ID:                 keyID,
			Type:               ed25519VerificationKey2020,
			Controller:         did,
			PublicKeyMultibase: fingerprint,
		}},
		Authentication: []string{keyID},
	}, nil
}

//nolint:gocyclo
func resolveMethod2(did, suffix string) (*diddoc.Doc, error) {
	doc := &diddoc.Doc{
		Context: []string{diddoc.ContextV1},
		ID:      did,
	}

	keyIndex := 0
	serviceIndex := 0

	for _, seg := range strings.Split(suffix, ".") {
		if seg == "" {
			continue
		}

		purpose, value := seg[:1], seg[1:]

		switch purpose {
		case purposeVerification, purposeEncryption:
			if _, _, err := multibase.Decode(value); err != nil {
				return nil, walleterror.Wrap(walleterror.KindValidation, err,
					fmt.Sprintf("decode method 2 key segment %q", seg))
			}

			keyIndex++
			keyID := fmt.Sprintf("#key-%d", keyIndex)

			doc.VerificationMethod = append(doc.VerificationMethod, diddoc.VerificationMethod{
				ID:                 keyID,
				Type:               ed25519VerificationKey2020,
				Controller:         did,
				PublicKeyMultibase: value,
			})

			if purpose == purposeVerification {
				doc.Authentication = append(doc.Authentication, keyID)
			} else {
				doc.KeyAgreement = append(doc.KeyAgreement, keyID)
			}
		case purposeService:
			svc, err := decodeServiceSegment(value, serviceIndex)
			if err != nil {
				return nil, err
			}

			doc.Service = append(doc.Service, *svc)
			serviceIndex++
		default:
			return nil, walleterror.NewValidation(fmt.Sprintf("unknown purpose code %q in %s", purpose, did))
		}
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return doc, nil
}

func decodeServiceSegment(encoded string, index int) (*diddoc.Service, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.KindValidation, err, "decode service segment")
	}

	var abbrev abbreviatedService
	if err := json.Unmarshal(raw, &abbrev); err != nil {
		return nil, walleterror.Wrap(walleterror.KindValidation, err, "parse abbreviated service")
	}

	svcID := serviceIDDIDComm
	if index > 0 {
		svcID = fmt.Sprintf("%s-%d", serviceIDDIDComm, index)
	}

	svcType := abbrev.T
	if svcType == abbreviatedDIDCommType {
		svcType = diddoc.ServiceTypeDIDCommMessaging
	}

	return &diddoc.Service{
		ID:   svcID,
		Type: svcType,
		ServiceEndpoint: diddoc.Endpoint{
			URI:         abbrev.S.URI,
			Accept:      abbrev.S.A,
			RoutingKeys: abbrev.S.R,
		},
	}, nil
}

func resolveMethod4(did, suffix string) (*diddoc.Doc, error) {
	parts := strings.SplitN(suffix, ":", 2)
	if len(parts) != 2 {
		// Short form: the encoded document lives with whoever stored it.
		return nil, nil
	}

	// The hash segment commits to the encoded document; a long form whose
	// document bytes do not hash back to it has been tampered with.
	if parts[0] != method4Hash(parts[1]) {
		return nil, walleterror.NewValidation("method 4 hash does not match encoded document")
	}

	_, decoded, err := multibase.Decode(parts[1])
	if err != nil {
		return nil, walleterror.Wrap(walleterror.KindValidation, err, "decode method 4 document")
	}

	prefix := multicodec(jsonDocument)
	if len(decoded) <= len(prefix) || !bytes.HasPrefix(decoded, prefix) {
		return nil, walleterror.NewValidation("method 4 document does not carry the json multicodec prefix")
	}

	var doc diddoc.Doc
	if err := json.Unmarshal(decoded[len(prefix):], &doc); err != nil {
		return nil, walleterror.Wrap(walleterror.KindValidation, err, "parse method 4 document")
	}

	doc.Context = []string{diddoc.ContextV1}
	doc.ID = did

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return &doc, nil
}
