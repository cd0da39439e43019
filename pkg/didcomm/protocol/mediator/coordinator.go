/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mediator executes the coordinate-mediation handshake against a
// resolved mediator: mediate-request/grant followed by keylist updates
// registering the DIDs the mediator will forward for. There is no implicit
// retry; any HTTP failure, non-2xx status or mismatched response field aborts
// the exchange immediately.
package mediator

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/walletcore/pkg/common/notifier"
	"github.com/trustbloc/walletcore/pkg/common/walleterror"
	"github.com/trustbloc/walletcore/pkg/didcomm/envelope"
	"github.com/trustbloc/walletcore/pkg/didcomm/transport"
	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
	"github.com/trustbloc/walletcore/pkg/secretlock/pinlock"
	"github.com/trustbloc/walletcore/pkg/store"
	"github.com/trustbloc/walletcore/pkg/vdr"
)

var logger = log.New("walletcore/mediator")

const (
	// CoordinationSpec is the coordinate-mediation protocol URI prefix.
	CoordinationSpec = "https://didcomm.org/coordinate-mediation/2.0/"

	// RequestMsgType is the mediate-request message type.
	RequestMsgType = CoordinationSpec + "mediate-request"
	// GrantMsgType is the mediate-grant message type.
	GrantMsgType = CoordinationSpec + "mediate-grant"
	// DenyMsgType is the mediate-deny message type.
	DenyMsgType = CoordinationSpec + "mediate-deny"
	// KeylistUpdateMsgType is the keylist-update message type.
	KeylistUpdateMsgType = CoordinationSpec + "keylist-update"
	// KeylistUpdateResponseMsgType is the keylist-update-response message type.
	KeylistUpdateResponseMsgType = CoordinationSpec + "keylist-update-response"

	updateActionAdd     = "add"
	updateResultSuccess = "success"

	// Topic is the notifier topic mediation results are published on.
	Topic = "mediation"
)

// Handshake states recorded on the mediation record.
const (
	StateRequestSent       = "request-sent"
	StateGranted           = "granted"
	StateKeylistUpdateSent = "keylist-update-sent"
	StateKeylistConfirmed  = "keylist-confirmed"
)

type provider interface {
	DIDResolver() *vdr.Resolver
	Packer() envelope.Packer
	Outbound() *transport.OutboundClient
	Store() *store.Provider
	SecretLock() *pinlock.Lock
	Notifier() *notifier.Notifier
}

// Coordinator drives the mediation handshake for a wallet identity.
type Coordinator struct {
	resolver *vdr.Resolver
	packer   envelope.Packer
	outbound *transport.OutboundClient
	stores   *store.Provider
	lock     *pinlock.Lock
	notifier *notifier.Notifier
}

// New returns a mediation coordinator.
func New(prov provider) *Coordinator {
	return &Coordinator{
		resolver: prov.DIDResolver(),
		packer:   prov.Packer(),
		outbound: prov.Outbound(),
		stores:   prov.Store(),
		lock:     prov.SecretLock(),
		notifier: prov.Notifier(),
	}
}

type grantBody struct {
	RoutingDID []string `mapstructure:"routing_did"`
}

type keylistUpdated struct {
	RecipientDID string `mapstructure:"recipient_did"`
	Action       string `mapstructure:"action"`
	Result       string `mapstructure:"result"`
}

type keylistUpdateResponseBody struct {
	Updated []keylistUpdated `mapstructure:"updated"`
}

// RequestMediation executes mediate-request against mediatorDID on behalf of
// ownDID and persists the granted routing DID and the mediator's assigned DID
// for the relationship.
func (c *Coordinator) RequestMediation(ctx context.Context, pin, mediatorDID, ownDID string) (*store.MediationRecord, error) {
	record := &store.MediationRecord{
		OwnDID:      ownDID,
		MediatorDID: mediatorDID,
		State:       StateRequestSent,
	}

	msg := envelope.NewMessage(RequestMsgType, ownDID, mediatorDID)
	msg.ReturnRoute = "all"

	resp, err := c.exchange(ctx, pin, msg, mediatorDID, ownDID)
	if err != nil {
		c.reportError(err)
		return nil, err
	}

	if resp.Type != GrantMsgType {
		err := walleterror.NewProtocol(
			fmt.Sprintf("expected message type %s, got %s", GrantMsgType, resp.Type))
		c.reportError(err)

		return nil, err
	}

	var grant grantBody
	if err := decodeBody(resp.Body, &grant); err != nil {
		c.reportError(err)
		return nil, err
	}

	if len(grant.RoutingDID) == 0 || grant.RoutingDID[0] == "" {
		err := walleterror.NewProtocol("mediate-grant carries no routing DID")
		c.reportError(err)

		return nil, err
	}

	record.RoutingDID = grant.RoutingDID[0]
	record.State = StateGranted

	// The mediator's assigned DID for this relationship is the grant sender.
	if resp.From != "" {
		record.MediatorDID = resp.From
	}

	if err := c.stores.Mediations().Save(record); err != nil {
		return nil, fmt.Errorf("persist mediation record: %w", err)
	}

	c.report(record)

	return record, nil
}

// KeylistUpdate asks the mediator to add newRecipientDID to the keylist it
// forwards for. The response must confirm action "add" with result "success"
// for exactly the requested DID.
func (c *Coordinator) KeylistUpdate(ctx context.Context, pin, mediatorDID, ownDID, newRecipientDID string) error {
	msg := envelope.NewMessage(KeylistUpdateMsgType, ownDID, mediatorDID)
	msg.ReturnRoute = "all"
	msg.Body = map[string]interface{}{
		"updates": []interface{}{
			map[string]interface{}{
				"recipient_did": newRecipientDID,
				"action":        updateActionAdd,
			},
		},
	}

	if err := c.markState(ownDID, StateKeylistUpdateSent); err != nil {
		return err
	}

	resp, err := c.exchange(ctx, pin, msg, mediatorDID, ownDID)
	if err != nil {
		c.reportError(err)
		return err
	}

	if resp.Type != KeylistUpdateResponseMsgType {
		err := walleterror.NewProtocol(
			fmt.Sprintf("expected message type %s, got %s", KeylistUpdateResponseMsgType, resp.Type))
		c.reportError(err)

		return err
	}

	var body keylistUpdateResponseBody
	if err := decodeBody(resp.Body, &body); err != nil {
		c.reportError(err)
		return err
	}

	if err := verifyKeylistUpdated(body.Updated, newRecipientDID); err != nil {
		c.reportError(err)
		return err
	}

	if err := c.markState(ownDID, StateKeylistConfirmed); err != nil {
		return err
	}

	logger.Debugf("keylist update confirmed for %s", newRecipientDID)

	return nil
}

func verifyKeylistUpdated(updated []keylistUpdated, recipientDID string) error {
	if len(updated) != 1 {
		return walleterror.NewProtocol(
			fmt.Sprintf("expected exactly one keylist update result, got %d", len(updated)))
	}

	u := updated[0]

	if u.RecipientDID != recipientDID {
		return walleterror.NewProtocol(
			fmt.Sprintf("keylist update confirmed %s, requested %s", u.RecipientDID, recipientDID))
	}

	if u.Action != updateActionAdd {
		return walleterror.NewProtocol(fmt.Sprintf("keylist update action is %q, expected %q", u.Action, updateActionAdd))
	}

	if u.Result != updateResultSuccess {
		return walleterror.NewProtocol(fmt.Sprintf("keylist update result is %q, expected %q", u.Result, updateResultSuccess))
	}

	return nil
}

// exchange packs msg for the mediator, posts it to the mediator's primary
// DIDComm endpoint and unpacks the response body.
func (c *Coordinator) exchange(ctx context.Context, pin string, msg *envelope.Message,
	mediatorDID, ownDID string) (*envelope.Message, error) {
	endpoint, err := c.mediatorEndpoint(mediatorDID)
	if err != nil {
		return nil, err
	}

	ident, err := c.stores.Identities().Get(ownDID)
	if err != nil {
		return nil, fmt.Errorf("load identity %s: %w", ownDID, err)
	}

	secrets, err := ident.UnwrapSecrets(c.lock, pin)
	if err != nil {
		return nil, err
	}

	// Pin the resolver to the mediator's key-ID profile so pack and unpack
	// see the same key identifiers.
	resolver, err := c.resolver.EnforceProfileForParty(mediatorDID)
	if err != nil {
		return nil, err
	}

	packed, err := c.packer.PackEncrypted(ctx, msg, mediatorDID, ownDID, resolver, secrets)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.KindCrypto, err, "pack message")
	}

	respBody, err := c.outbound.Send(ctx, packed, endpoint.URI)
	if err != nil {
		return nil, err
	}

	if respBody == "" {
		return nil, walleterror.NewProtocol("mediator returned an empty response body")
	}

	resp, _, err := c.packer.Unpack(ctx, []byte(respBody), resolver, secrets)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.KindCrypto, err, "unpack mediator response")
	}

	return resp, nil
}

func (c *Coordinator) mediatorEndpoint(mediatorDID string) (*diddoc.Endpoint, error) {
	doc, err := c.resolver.Resolve(mediatorDID)
	if err != nil {
		return nil, err
	}

	if doc == nil {
		return nil, walleterror.NewResolution(fmt.Sprintf("mediator DID %s did not resolve", mediatorDID))
	}

	services := doc.DIDCommServices()
	if len(services) == 0 {
		return nil, walleterror.NewResolution(
			fmt.Sprintf("mediator %s has no usable DIDCommMessaging endpoint", mediatorDID))
	}

	return &services[0].ServiceEndpoint, nil
}

func (c *Coordinator) markState(ownDID, state string) error {
	record, err := c.stores.Mediations().Get(ownDID)
	if err != nil {
		return fmt.Errorf("load mediation record for %s: %w", ownDID, err)
	}

	record.State = state

	return c.stores.Mediations().Save(record)
}

func (c *Coordinator) report(record *store.MediationRecord) {
	if c.notifier == nil {
		return
	}

	if err := c.notifier.Publish(Topic, record); err != nil {
		logger.Warnf("publish mediation result: %v", err)
	}
}

func (c *Coordinator) reportError(err error) {
	if c.notifier == nil {
		return
	}

	if e := c.notifier.PublishError(Topic, err.Error()); e != nil {
		logger.Warnf("publish mediation error: %v", e)
	}
}

// decodeBody maps an unpacked message body onto a typed struct. Weak typing
// tolerates mediators that send a bare string where a list is expected.
func decodeBody(body map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return walleterror.Wrap(walleterror.KindValidation, err, "build body decoder")
	}

	if err := dec.Decode(body); err != nil {
		return walleterror.Wrap(walleterror.KindValidation, err, "decode message body")
	}

	return nil
}
