/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package did provides the DID document model used across the wallet core.
// The JSON shapes are wire shapes: documents produced here must round-trip
// byte-for-byte against other peer-DID implementations.
package did

import (
	"encoding/json"
	"fmt"

	"github.com/trustbloc/walletcore/pkg/common/walleterror"
)

// ContextV1 is the base DID context.
const ContextV1 = "https://www.w3.org/ns/did/v1"

// ServiceTypeDIDCommMessaging identifies a DIDComm v2 messaging service.
const ServiceTypeDIDCommMessaging = "DIDCommMessaging"

// Doc is a DID document.
type Doc struct {
	Context            []string             `json:"@context,omitempty"`
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication     []string             `json:"authentication,omitempty"`
	KeyAgreement       []string             `json:"keyAgreement,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

// VerificationMethod is a public key entry in a DID document.
type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
	PublicKeyBase58    string `json:"publicKeyBase58,omitempty"`
}

// Service is a service entry in a DID document.
type Service struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	ServiceEndpoint Endpoint `json:"serviceEndpoint"`
}

// Endpoint is a normalized service endpoint. On the wire it may appear as an
// object, a legacy bare string, or an array of either; UnmarshalJSON
// autocorrects the legacy forms into the object shape.
type Endpoint struct {
	URI         string   `json:"uri"`
	Accept      []string `json:"accept,omitempty"`
	RoutingKeys []string `json:"routing_keys,omitempty"`
}

type endpointAlias Endpoint

// UnmarshalJSON reduces endpoint arrays to their first element and wraps a
// legacy bare-string endpoint as {uri: <string>}. A non-string, non-object
// element cannot be corrected and fails resolution.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if arr, ok := raw.([]interface{}); ok {
		if len(arr) == 0 {
			*e = Endpoint{}
			return nil
		}

		first, err := json.Marshal(arr[0])
		if err != nil {
			return err
		}

		return e.UnmarshalJSON(first)
	}

	switch v := raw.(type) {
	case string:
		*e = Endpoint{URI: v}
		return nil
	case map[string]interface{}:
		var alias endpointAlias
		if err := json.Unmarshal(data, &alias); err != nil {
			return err
		}

		*e = Endpoint(alias)

		return nil
	default:
		return walleterror.NewResolution(
			fmt.Sprintf("failed to autocorrect malformed service endpoint of type %T", raw))
	}
}

// IsValid reports whether the endpoint survived normalization with a usable URI.
func (e *Endpoint) IsValid() bool {
	return e.URI != ""
}

// Validate checks the internal reference invariant: every id listed under
// authentication or keyAgreement must resolve to a verificationMethod entry.
func (d *Doc) Validate() error {
	known := make(map[string]struct{}, len(d.VerificationMethod))
	for _, vm := range d.VerificationMethod {
		known[vm.ID] = struct{}{}
		known[absoluteKeyID(d.ID, vm.ID)] = struct{}{}
	}

	for _, ref := range append(append([]string{}, d.Authentication...), d.KeyAgreement...) {
		if _, ok := known[ref]; ok {
			continue
		}

		if _, ok := known[absoluteKeyID(d.ID, ref)]; ok {
			continue
		}

		return walleterror.NewValidation(fmt.Sprintf("key reference %s has no verification method", ref))
	}

	return nil
}

// DIDCommServices returns the document's DIDCommMessaging services with
// usable endpoints, in document order.
func (d *Doc) DIDCommServices() []Service {
	var out []Service

	for _, svc := range d.Service {
		if svc.Type == ServiceTypeDIDCommMessaging && svc.ServiceEndpoint.IsValid() {
			out = append(out, svc)
		}
	}

	return out
}

// VerificationMethodByID returns the verification method matching id in
// either relative or absolute form.
func (d *Doc) VerificationMethodByID(id string) *VerificationMethod {
	for i := range d.VerificationMethod {
		vm := &d.VerificationMethod[i]
		if vm.ID == id || absoluteKeyID(d.ID, vm.ID) == id {
			return vm
		}
	}

	return nil
}

func absoluteKeyID(did, ref string) string {
	if len(ref) > 0 && ref[0] == '#' {
		return did + ref
	}

	return ref
}
