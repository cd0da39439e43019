/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package route forwards encrypted basic messages to a recipient's mediator.
// Candidate endpoints are discovered from the recipient's DID document and
// tried strictly sequentially; the first HTTP 202 wins and later candidates
// are never attempted. Delivery is at-least-once with no deduplication beyond
// the message ID, so callers own any retry policy and must not assume
// idempotence.
package route

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/walletcore/pkg/common/notifier"
	"github.com/trustbloc/walletcore/pkg/common/walleterror"
	"github.com/trustbloc/walletcore/pkg/didcomm/envelope"
	"github.com/trustbloc/walletcore/pkg/didcomm/transport"
	"github.com/trustbloc/walletcore/pkg/secretlock/pinlock"
	"github.com/trustbloc/walletcore/pkg/store"
	"github.com/trustbloc/walletcore/pkg/vdr"
	"github.com/trustbloc/walletcore/pkg/vdr/peer"
)

var logger = log.New("walletcore/route")

const (
	// BasicMessageType is the basicmessage 2.0 message type.
	BasicMessageType = "https://didcomm.org/basicmessage/2.0/message"

	// ForwardMsgType is the routing 2.0 forward message type. The router does
	// not wrap outgoing messages in a forward envelope itself: the mediator
	// is expected to unwrap the encrypted message directly.
	ForwardMsgType = "https://didcomm.org/routing/2.0/forward"

	// Topic is the notifier topic routing results are published on.
	Topic = "route"

	maxEndpointDepth = 5
)

// ErrCouldNotRoute is returned when no candidate endpoint accepted the
// message.
var ErrCouldNotRoute = walleterror.NewNetwork("message could not be routed")

type provider interface {
	DIDResolver() *vdr.Resolver
	Packer() envelope.Packer
	Outbound() *transport.OutboundClient
	Store() *store.Provider
	SecretLock() *pinlock.Lock
	Notifier() *notifier.Notifier
}

// Router builds and forwards encrypted messages through mediators.
type Router struct {
	resolver *vdr.Resolver
	packer   envelope.Packer
	outbound *transport.OutboundClient
	stores   *store.Provider
	lock     *pinlock.Lock
	notifier *notifier.Notifier
}

// New returns a forward router.
func New(prov provider) *Router {
	return &Router{
		resolver: prov.DIDResolver(),
		packer:   prov.Packer(),
		outbound: prov.Outbound(),
		stores:   prov.Store(),
		lock:     prov.SecretLock(),
		notifier: prov.Notifier(),
	}
}

// RouteForwardMessage sends text from senderDID to recipientDID through the
// recipient's mediator and persists the sent message on success. Every
// failure, not just delivery rejection, is published on the notifier.
func (r *Router) RouteForwardMessage(ctx context.Context, pin, text, recipientDID, senderDID string) (*store.Message, error) {
	sent, err := r.routeForward(ctx, pin, text, recipientDID, senderDID)
	if err != nil {
		r.reportError(err)
		return nil, err
	}

	r.report(sent)

	return sent, nil
}

func (r *Router) routeForward(ctx context.Context, pin, text, recipientDID, senderDID string) (*store.Message, error) {
	msg := envelope.NewMessage(BasicMessageType, senderDID, recipientDID)
	msg.Body = map[string]interface{}{"content": text}

	ident, err := r.stores.Identities().Get(senderDID)
	if err != nil {
		return nil, fmt.Errorf("load sender identity %s: %w", senderDID, err)
	}

	secrets, err := ident.UnwrapSecrets(r.lock, pin)
	if err != nil {
		return nil, err
	}

	resolver, err := r.resolver.EnforceProfileForParty(recipientDID)
	if err != nil {
		return nil, err
	}

	candidates, err := r.discoverEndpoints(recipientDID)
	if err != nil {
		return nil, err
	}

	packed, err := r.packer.PackEncrypted(ctx, msg, recipientDID, senderDID, resolver, secrets)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.KindCrypto, err, "pack basic message")
	}

	if err := r.deliver(ctx, packed, candidates); err != nil {
		return nil, err
	}

	sent := &store.Message{
		ID:        msg.ID,
		Text:      text,
		Sender:    senderDID,
		ContactID: recipientDID,
		Timestamp: time.Now().UTC(),
		Direction: store.DirectionOutbound,
	}

	if err := r.stores.Messages().Save(sent); err != nil {
		return nil, fmt.Errorf("persist sent message: %w", err)
	}

	return sent, nil
}

// deliver tries candidates in resolution order, stopping at the first 202.
func (r *Router) deliver(ctx context.Context, packed string, candidates []string) error {
	for _, url := range candidates {
		err := r.outbound.SendExpectAccepted(ctx, packed, url)
		if err == nil {
			logger.Debugf("message accepted by [%s]", url)
			return nil
		}

		logger.Warnf("candidate [%s] rejected message: %v", url, err)
	}

	return ErrCouldNotRoute
}

// discoverEndpoints resolves the recipient's DIDCommMessaging services into
// HTTP(S) candidate URLs. An endpoint URI that is itself a DID is resolved
// recursively until an HTTP(S) URL is reached or the chain is exhausted;
// other schemes are silently dropped. Recursion is depth bounded and cycle
// guarded.
func (r *Router) discoverEndpoints(recipientDID string) ([]string, error) {
	visited := map[string]struct{}{}

	candidates, err := r.collectEndpoints(recipientDID, 0, visited)
	if err != nil {
		return nil, err
	}

	return candidates, nil
}

func (r *Router) collectEndpoints(did string, depth int, visited map[string]struct{}) ([]string, error) {
	if depth > maxEndpointDepth {
		return nil, nil
	}

	if _, seen := visited[did]; seen {
		return nil, nil
	}

	visited[did] = struct{}{}

	doc, err := r.resolver.Resolve(did)
	if err != nil {
		return nil, err
	}

	if doc == nil {
		if depth == 0 {
			return nil, walleterror.NewResolution(fmt.Sprintf("recipient DID %s did not resolve", did))
		}

		return nil, nil
	}

	var candidates []string

	for _, svc := range doc.DIDCommServices() {
		uri := svc.ServiceEndpoint.URI

		switch {
		case isHTTPURL(uri):
			candidates = append(candidates, uri)
		case peer.IsPeerDID(uri):
			nested, err := r.collectEndpoints(uri, depth+1, visited)
			if err != nil {
				return nil, err
			}

			candidates = append(candidates, nested...)
		default:
			// Not routable over this transport (e.g. ftp or ws).
			logger.Debugf("dropping non-HTTP endpoint [%s]", uri)
		}
	}

	return candidates, nil
}

func isHTTPURL(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

func (r *Router) report(m *store.Message) {
	if r.notifier == nil {
		return
	}

	if err := r.notifier.Publish(Topic, m); err != nil {
		logger.Warnf("publish routed message: %v", err)
	}
}

func (r *Router) reportError(err error) {
	if r.notifier == nil {
		return
	}

	if e := r.notifier.PublishError(Topic, err.Error()); e != nil {
		logger.Warnf("publish route error: %v", e)
	}
}
