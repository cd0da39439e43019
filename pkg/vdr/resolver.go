/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package vdr resolves DID strings to normalized DID documents. Raw did:peer
// decoding is delegated to the peer package; this layer normalizes service
// endpoints and reconciles vendor-specific key-ID conventions so documents
// for the same party stay consistent across resolutions.
package vdr

import (
	"fmt"
	"strings"

	"github.com/bluele/gcache"
	"github.com/btcsuite/btcutil/base58"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/walletcore/pkg/common/walleterror"
	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
	"github.com/trustbloc/walletcore/pkg/vdr/peer"
)

var logger = log.New("walletcore/vdr")

// Profile names a key-ID convention observed in the wild.
type Profile int

const (
	// ProfileDefault uses {did}#key-{n} identifiers, relative then absolutized.
	ProfileDefault Profile = iota
	// ProfileFingerprint uses {did}#{base58-of-raw-key} identifiers, a vendor
	// convention detected by marker strings in service endpoint URIs.
	ProfileFingerprint
)

const (
	defaultMaxDepth     = 5
	profileCacheSize    = 64
	defaultVendorMarker = "mediator.rootsid"
)

// Resolver resolves DIDs to normalized documents.
type Resolver struct {
	maxDepth int
	markers  []string
	profiles gcache.Cache

	pinned    Profile
	pinnedSet bool
}

// Opt configures a Resolver.
type Opt func(*Resolver)

// WithMaxDepth bounds recursive dereferencing of service endpoints that are
// themselves DIDs.
func WithMaxDepth(depth int) Opt {
	return func(r *Resolver) {
		r.maxDepth = depth
	}
}

// WithProfileMarkers replaces the vendor marker strings scanned for during
// profile detection.
func WithProfileMarkers(markers ...string) Opt {
	return func(r *Resolver) {
		r.markers = markers
	}
}

// WithProfile pins the resolver to a fixed key-ID profile, disabling
// detection.
func WithProfile(p Profile) Opt {
	return func(r *Resolver) {
		r.pinned = p
		r.pinnedSet = true
	}
}

// New creates a resolver.
func New(opts ...Opt) *Resolver {
	r := &Resolver{
		maxDepth: defaultMaxDepth,
		markers:  []string{defaultVendorMarker},
		profiles: gcache.New(profileCacheSize).LRU().Build(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the normalized document for did, or (nil, nil) when the
// DID method is unsupported or the identifier carries no resolvable
// document. It never fails for mere unsupportedness.
func (r *Resolver) Resolve(did string) (*diddoc.Doc, error) {
	doc, err := peer.ResolveDID(did)
	if err != nil {
		return nil, err
	}

	if doc == nil {
		return nil, nil
	}

	profile := r.pinned
	if !r.pinnedSet {
		profile = r.detectProfile(did, doc, 0, map[string]struct{}{did: {}})
	}

	return applyProfile(doc, profile)
}

// EnforceProfileForParty resolves did, detects its key-ID profile and returns
// a resolver pinned to it, so later resolutions of messages to or from the
// same party stay consistent.
func (r *Resolver) EnforceProfileForParty(did string) (*Resolver, error) {
	doc, err := peer.ResolveDID(did)
	if err != nil {
		return nil, err
	}

	if doc == nil {
		return nil, walleterror.NewResolution(fmt.Sprintf("cannot determine profile for unresolvable DID %s", did))
	}

	profile := r.detectProfile(did, doc, 0, map[string]struct{}{did: {}})

	pinned := &Resolver{
		maxDepth:  r.maxDepth,
		markers:   r.markers,
		profiles:  r.profiles,
		pinned:    profile,
		pinnedSet: true,
	}

	return pinned, nil
}

// detectProfile scans the party's service endpoints for a vendor marker and,
// failing a direct match, dereferences endpoint URIs that are themselves DIDs
// and inherits the first non-default profile found. Recursion is depth
// bounded and cycle guarded: past the bound the chain is treated as
// unresolved and the default profile wins.
//
// Only depth-zero results are cached. A walk entered at depth n sees n fewer
// levels of the chain than a direct resolution of the same DID would, so its
// truncated default must not shadow the profile a full detection yields.
func (r *Resolver) detectProfile(did string, doc *diddoc.Doc, depth int, visited map[string]struct{}) Profile {
	if cached, err := r.profiles.Get(did); err == nil {
		return cached.(Profile)
	}

	profile := r.detect(doc, depth, visited)

	if depth == 0 {
		if err := r.profiles.Set(did, profile); err != nil {
			logger.Warnf("cache profile for %s: %v", did, err)
		}
	}

	return profile
}

func (r *Resolver) detect(doc *diddoc.Doc, depth int, visited map[string]struct{}) Profile {
	for _, svc := range doc.Service {
		uri := svc.ServiceEndpoint.URI
		for _, marker := range r.markers {
			if strings.Contains(uri, marker) {
				return ProfileFingerprint
			}
		}
	}

	if depth >= r.maxDepth {
		return ProfileDefault
	}

	for _, svc := range doc.Service {
		uri := svc.ServiceEndpoint.URI
		if !peer.IsPeerDID(uri) {
			continue
		}

		if _, seen := visited[uri]; seen {
			continue
		}

		visited[uri] = struct{}{}

		next, err := peer.ResolveDID(uri)
		if err != nil || next == nil {
			continue
		}

		if p := r.detectProfile(uri, next, depth+1, visited); p != ProfileDefault {
			return p
		}
	}

	return ProfileDefault
}

// applyProfile rewrites the document's key identifiers to the given profile,
// keeping the reference invariant intact.
func applyProfile(doc *diddoc.Doc, profile Profile) (*diddoc.Doc, error) {
	if profile == ProfileDefault {
		absolutizeKeyIDs(doc)
		return doc, nil
	}

	rename := make(map[string]string, len(doc.VerificationMethod))

	for i := range doc.VerificationMethod {
		vm := &doc.VerificationMethod[i]

		raw, err := peer.PubKeyFromFingerprint(vm.PublicKeyMultibase)
		if err != nil {
			return nil, walleterror.Wrap(walleterror.KindResolution, err,
				fmt.Sprintf("derive fingerprint key ID for %s", vm.ID))
		}

		newID := doc.ID + "#" + base58.Encode(raw)
		rename[vm.ID] = newID
		vm.ID = newID
	}

	renameRefs(doc.Authentication, rename)
	renameRefs(doc.KeyAgreement, rename)

	return doc, nil
}

func absolutizeKeyIDs(doc *diddoc.Doc) {
	rename := make(map[string]string, len(doc.VerificationMethod))

	for i := range doc.VerificationMethod {
		vm := &doc.VerificationMethod[i]
		if strings.HasPrefix(vm.ID, "#") {
			rename[vm.ID] = doc.ID + vm.ID
			vm.ID = doc.ID + vm.ID
		}
	}

	renameRefs(doc.Authentication, rename)
	renameRefs(doc.KeyAgreement, rename)
}

func renameRefs(refs []string, rename map[string]string) {
	for i, ref := range refs {
		if newID, ok := rename[ref]; ok {
			refs[i] = newID
		}
	}
}
