/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package messagepickup polls a mediator for queued messages and retrieves
// them. Callers should request the queue status first and only issue a
// delivery request when the reported count is positive, avoiding a wasted
// round trip.
package messagepickup

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
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

var logger = log.New("walletcore/messagepickup")

const (
	// PickupSpec is the messagepickup protocol URI prefix.
	PickupSpec = "https://didcomm.org/messagepickup/3.0/"

	// StatusRequestMsgType requests the queued-message status.
	StatusRequestMsgType = PickupSpec + "status-request"
	// StatusMsgType carries the queued-message status.
	StatusMsgType = PickupSpec + "status"
	// DeliveryRequestMsgType requests delivery of queued messages.
	DeliveryRequestMsgType = PickupSpec + "delivery-request"
	// DeliveryMsgType carries delivered messages as attachments.
	DeliveryMsgType = PickupSpec + "delivery"
	// MessagesReceivedMsgType acknowledges delivered messages.
	MessagesReceivedMsgType = PickupSpec + "messages-received"

	// StatusMessagesStored reports that delivered messages were persisted.
	StatusMessagesStored = "messages retrieved and stored"
	// StatusNoMessages reports an empty delivery.
	StatusNoMessages = "no messages retrieved"

	// Topic is the notifier topic pickup results are published on.
	Topic = "messagepickup"

	deliveryLimit = 1
)

type provider interface {
	DIDResolver() *vdr.Resolver
	Packer() envelope.Packer
	Outbound() *transport.OutboundClient
	Store() *store.Provider
	SecretLock() *pinlock.Lock
	Notifier() *notifier.Notifier
}

// Client retrieves queued messages from a mediator.
type Client struct {
	resolver *vdr.Resolver
	packer   envelope.Packer
	outbound *transport.OutboundClient
	stores   *store.Provider
	lock     *pinlock.Lock
	notifier *notifier.Notifier
}

// New returns a pickup client.
func New(prov provider) *Client {
	return &Client{
		resolver: prov.DIDResolver(),
		packer:   prov.Packer(),
		outbound: prov.Outbound(),
		stores:   prov.Store(),
		lock:     prov.SecretLock(),
		notifier: prov.Notifier(),
	}
}

type statusBody struct {
	MessageCount int `mapstructure:"message_count"`
}

// ProcessStatusRequest asks the mediator how many messages are queued for
// ownDID. It issues no delivery request itself. Failures are published on the
// notifier.
func (c *Client) ProcessStatusRequest(ctx context.Context, pin, mediatorDID, ownDID string) (int, error) {
	count, err := c.statusRequest(ctx, pin, mediatorDID, ownDID)
	if err != nil {
		c.reportError(err)
		return 0, err
	}

	return count, nil
}

func (c *Client) statusRequest(ctx context.Context, pin, mediatorDID, ownDID string) (int, error) {
	msg := envelope.NewMessage(StatusRequestMsgType, ownDID, mediatorDID)
	msg.ReturnRoute = "all"

	resp, _, err := c.exchange(ctx, pin, msg, mediatorDID, ownDID)
	if err != nil {
		return 0, err
	}

	if resp.Type != StatusMsgType {
		return 0, walleterror.NewProtocol(
			fmt.Sprintf("expected message type %s, got %s", StatusMsgType, resp.Type))
	}

	var status statusBody
	if err := decodeBody(resp.Body, &status); err != nil {
		return 0, err
	}

	return status.MessageCount, nil
}

// ProcessDeliveryRequest retrieves up to one queued message, persists every
// decoded message and acknowledges the delivery. The returned status is
// human readable. Failures are published on the notifier.
func (c *Client) ProcessDeliveryRequest(ctx context.Context, pin, mediatorDID, ownDID string) (string, error) {
	status, err := c.deliveryRequest(ctx, pin, mediatorDID, ownDID)
	if err != nil {
		c.reportError(err)
		return "", err
	}

	return status, nil
}

func (c *Client) deliveryRequest(ctx context.Context, pin, mediatorDID, ownDID string) (string, error) {
	msg := envelope.NewMessage(DeliveryRequestMsgType, ownDID, mediatorDID)
	msg.ReturnRoute = "all"
	msg.Body = map[string]interface{}{"limit": deliveryLimit}

	resp, callState, err := c.exchange(ctx, pin, msg, mediatorDID, ownDID)
	if err != nil {
		return "", err
	}

	// An empty queue may come back as a plain status instead of a delivery.
	if resp.Type == StatusMsgType {
		return StatusNoMessages, nil
	}

	if resp.Type != DeliveryMsgType {
		return "", walleterror.NewProtocol(
			fmt.Sprintf("expected message type %s, got %s", DeliveryMsgType, resp.Type))
	}

	if len(resp.Attachments) == 0 {
		return StatusNoMessages, nil
	}

	var receivedIDs []string

	for i := range resp.Attachments {
		stored, err := c.storeAttachment(ctx, &resp.Attachments[i], resp, callState)
		if err != nil {
			return "", err
		}

		receivedIDs = append(receivedIDs, stored.ID)
		c.report(stored)
	}

	c.acknowledge(ctx, callState, mediatorDID, ownDID, receivedIDs)

	return StatusMessagesStored, nil
}

// pickupCall carries the per-call resolver and decrypted secrets. The secrets
// exist only for the duration of a single protocol call.
type pickupCall struct {
	resolver *vdr.Resolver
	secrets  envelope.StaticSecrets
	endpoint *diddoc.Endpoint
}

// storeAttachment decodes one delivery attachment into a stored message. An
// attachment is either a plain string body or a base64-wrapped nested DIDComm
// envelope requiring a further unpack. The persisted sender is the innermost
// available from field: the nested message's from when there is one, otherwise
// the delivery message's from.
func (c *Client) storeAttachment(ctx context.Context, att *envelope.Attachment,
	delivery *envelope.Message, state *pickupCall) (*store.Message, error) {
	var (
		text   string
		sender string
		msgID  string
	)

	switch {
	case att.Data.Base64 != "":
		raw, err := base64.StdEncoding.DecodeString(att.Data.Base64)
		if err != nil {
			return nil, walleterror.Wrap(walleterror.KindValidation, err, "decode delivery attachment")
		}

		inner, _, err := c.packer.Unpack(ctx, raw, state.resolver, state.secrets)
		if err != nil {
			return nil, walleterror.Wrap(walleterror.KindCrypto, err, "unpack nested delivery envelope")
		}

		text = bodyContent(inner.Body)
		sender = inner.From
		msgID = inner.ID
	case att.Data.JSON != nil:
		s, ok := att.Data.JSON.(string)
		if !ok {
			return nil, walleterror.NewValidation(
				fmt.Sprintf("unsupported delivery attachment payload of type %T", att.Data.JSON))
		}

		text = s
		sender = delivery.From
		msgID = att.ID
	default:
		return nil, walleterror.NewValidation("delivery attachment carries no data")
	}

	if msgID == "" {
		msgID = uuid.New().String()
	}

	stored := &store.Message{
		ID:        msgID,
		Text:      text,
		Sender:    sender,
		ContactID: sender,
		Timestamp: time.Now().UTC(),
		Direction: store.DirectionInbound,
	}

	if err := c.stores.Messages().Save(stored); err != nil {
		return nil, fmt.Errorf("persist picked up message: %w", err)
	}

	return stored, nil
}

// acknowledge sends messages-received for the stored message IDs. The
// messages are already durable, so an acknowledgement failure is reported but
// does not fail the pickup.
func (c *Client) acknowledge(ctx context.Context, state *pickupCall, mediatorDID, ownDID string, ids []string) {
	ack := envelope.NewMessage(MessagesReceivedMsgType, ownDID, mediatorDID)
	ack.Body = map[string]interface{}{"message_id_list": ids}

	packed, err := c.packer.PackEncrypted(ctx, ack, mediatorDID, ownDID, state.resolver, state.secrets)
	if err != nil {
		logger.Warnf("pack messages-received ack: %v", err)
		return
	}

	if _, err := c.outbound.Send(ctx, packed, state.endpoint.URI); err != nil {
		logger.Warnf("send messages-received ack: %v", err)
	}
}

// exchange packs msg, posts it to the mediator's single primary endpoint and
// unpacks the response body.
func (c *Client) exchange(ctx context.Context, pin string, msg *envelope.Message,
	mediatorDID, ownDID string) (*envelope.Message, *pickupCall, error) {
	doc, err := c.resolver.Resolve(mediatorDID)
	if err != nil {
		return nil, nil, err
	}

	if doc == nil {
		return nil, nil, walleterror.NewResolution(fmt.Sprintf("mediator DID %s did not resolve", mediatorDID))
	}

	services := doc.DIDCommServices()
	if len(services) == 0 {
		return nil, nil, walleterror.NewResolution(
			fmt.Sprintf("mediator %s has no usable DIDCommMessaging endpoint", mediatorDID))
	}

	ident, err := c.stores.Identities().Get(ownDID)
	if err != nil {
		return nil, nil, fmt.Errorf("load identity %s: %w", ownDID, err)
	}

	secrets, err := ident.UnwrapSecrets(c.lock, pin)
	if err != nil {
		return nil, nil, err
	}

	resolver, err := c.resolver.EnforceProfileForParty(mediatorDID)
	if err != nil {
		return nil, nil, err
	}

	state := &pickupCall{
		resolver: resolver,
		secrets:  secrets,
		endpoint: &services[0].ServiceEndpoint,
	}

	packed, err := c.packer.PackEncrypted(ctx, msg, mediatorDID, ownDID, resolver, secrets)
	if err != nil {
		return nil, nil, walleterror.Wrap(walleterror.KindCrypto, err, "pack pickup message")
	}

	respBody, err := c.outbound.Send(ctx, packed, state.endpoint.URI)
	if err != nil {
		return nil, nil, err
	}

	if respBody == "" {
		return nil, nil, walleterror.NewProtocol("mediator returned an empty response body")
	}

	resp, _, err := c.packer.Unpack(ctx, []byte(respBody), resolver, secrets)
	if err != nil {
		return nil, nil, walleterror.Wrap(walleterror.KindCrypto, err, "unpack pickup response")
	}

	return resp, state, nil
}

func (c *Client) report(m *store.Message) {
	if c.notifier == nil {
		return
	}

	if err := c.notifier.Publish(Topic, m); err != nil {
		logger.Warnf("publish picked up message: %v", err)
	}
}

func (c *Client) reportError(err error) {
	if c.notifier == nil {
		return
	}

	if e := c.notifier.PublishError(Topic, err.Error()); e != nil {
		logger.Warnf("publish pickup error: %v", e)
	}
}

func bodyContent(body map[string]interface{}) string {
	if body == nil {
		return ""
	}

	if s, ok := body["content"].(string); ok {
		return s
	}

	return ""
}

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
