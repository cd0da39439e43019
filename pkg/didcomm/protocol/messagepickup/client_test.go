/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/trustbloc/walletcore/pkg/common/notifier"
	"github.com/trustbloc/walletcore/pkg/common/walleterror"
	"github.com/trustbloc/walletcore/pkg/didcomm/envelope"
	"github.com/trustbloc/walletcore/pkg/didcomm/transport"
	diddoc "github.com/trustbloc/walletcore/pkg/doc/did"
	frameworkctx "github.com/trustbloc/walletcore/pkg/framework/context"
	mockdidcomm "github.com/trustbloc/walletcore/pkg/mock/didcomm"
	"github.com/trustbloc/walletcore/pkg/secretlock/pinlock"
	"github.com/trustbloc/walletcore/pkg/store"
	"github.com/trustbloc/walletcore/pkg/vdr"
	"github.com/trustbloc/walletcore/pkg/vdr/peer"
)

const testPIN = "1234"

// fakeQueue is a mediator stub serving status and delivery responses.
type fakeQueue struct {
	t       *testing.T
	packer  *mockdidcomm.JSONPacker
	respond func(req *envelope.Message) *envelope.Message

	requests []*envelope.Message
}

func (q *fakeQueue) handle(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	require.NoError(q.t, err)

	req, _, err := q.packer.Unpack(r.Context(), raw, nil, nil)
	require.NoError(q.t, err)

	q.requests = append(q.requests, req)

	resp := q.respond(req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	packed, err := q.packer.PackEncrypted(r.Context(), resp, req.From, resp.From, nil, nil)
	require.NoError(q.t, err)

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(packed))
}

func (q *fakeQueue) typesSeen() []string {
	var types []string
	for _, req := range q.requests {
		types = append(types, req.Type)
	}

	return types
}

type pickupFixture struct {
	client      *Client
	queue       *fakeQueue
	mediatorDID string
	ownDID      string
	stores      *store.Provider
	events      <-chan notifier.Event
}

func setup(t *testing.T, respond func(req *envelope.Message) *envelope.Message) *pickupFixture {
	t.Helper()

	queue := &fakeQueue{t: t, packer: &mockdidcomm.JSONPacker{}, respond: respond}

	router := mux.NewRouter()
	router.HandleFunc("/didcomm", queue.handle).Methods(http.MethodPost)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	mediatorIdent, err := peer.Create(peer.Method2, peer.WithEndpoint(diddoc.Endpoint{
		URI: srv.URL + "/didcomm",
	}))
	require.NoError(t, err)

	ownIdent, err := peer.Create(peer.Method2, peer.WithEndpoint(diddoc.Endpoint{
		URI: "https://wallet.example.com",
	}))
	require.NoError(t, err)

	lock := pinlock.New(pinlock.WithIterations(1000))

	stores, err := store.NewProvider(mem.NewProvider())
	require.NoError(t, err)

	record, err := store.WrapIdentity(lock, testPIN, ownIdent)
	require.NoError(t, err)
	require.NoError(t, stores.Identities().Save(record))

	bus := notifier.New()
	events, cancel := bus.Subscribe(Topic)
	t.Cleanup(cancel)

	prov := frameworkctx.New(
		frameworkctx.WithDIDResolver(vdr.New()),
		frameworkctx.WithPacker(queue.packer),
		frameworkctx.WithOutbound(transport.NewOutbound()),
		frameworkctx.WithStore(stores),
		frameworkctx.WithSecretLock(lock),
		frameworkctx.WithNotifier(bus),
	)

	return &pickupFixture{
		client:      New(prov),
		queue:       queue,
		mediatorDID: mediatorIdent.DID,
		ownDID:      ownIdent.DID,
		stores:      stores,
		events:      events,
	}
}

func statusResponse(req *envelope.Message, count int) *envelope.Message {
	resp := envelope.NewMessage(StatusMsgType, "", req.From)
	resp.ThreadID = req.ID
	resp.Body = map[string]interface{}{"message_count": count}

	return resp
}

func TestProcessStatusRequest(t *testing.T) {
	f := setup(t, func(req *envelope.Message) *envelope.Message {
		return statusResponse(req, 3)
	})

	count, err := f.client.ProcessStatusRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	// Asking for the status never triggers a delivery.
	require.Equal(t, []string{StatusRequestMsgType}, f.queue.typesSeen())
}

func TestProcessStatusRequestStringCount(t *testing.T) {
	f := setup(t, func(req *envelope.Message) *envelope.Message {
		resp := envelope.NewMessage(StatusMsgType, "", req.From)
		resp.Body = map[string]interface{}{"message_count": "2"}

		return resp
	})

	count, err := f.client.ProcessStatusRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestProcessStatusRequestUnexpectedType(t *testing.T) {
	f := setup(t, func(req *envelope.Message) *envelope.Message {
		return envelope.NewMessage(DeliveryMsgType, "", req.From)
	})

	_, err := f.client.ProcessStatusRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
	require.Error(t, err)
	require.True(t, walleterror.IsKind(err, walleterror.KindProtocol))

	// Protocol failures are published alongside successful pickups.
	evt := <-f.events
	require.False(t, evt.Success)
	require.NotEmpty(t, evt.Message)
}

func TestProcessDeliveryRequest(t *testing.T) {
	const senderDID = "did:peer:2.Vz6sender"

	inner := envelope.NewMessage("https://didcomm.org/basicmessage/2.0/message", senderDID)
	inner.Body = map[string]interface{}{"content": "hello from the queue"}

	nested := mockdidcomm.PackPlaintext(inner)

	f := setup(t, func(req *envelope.Message) *envelope.Message {
		if req.Type != DeliveryRequestMsgType {
			return nil
		}

		resp := envelope.NewMessage(DeliveryMsgType, "", req.From)
		resp.Attachments = []envelope.Attachment{{
			ID: "att-1",
			Data: envelope.AttachmentData{
				Base64: base64.StdEncoding.EncodeToString([]byte(nested)),
			},
		}}

		return resp
	})

	status, err := f.client.ProcessDeliveryRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
	require.NoError(t, err)
	require.Equal(t, StatusMessagesStored, status)

	t.Run("message persisted with inner sender", func(t *testing.T) {
		stored, err := f.stores.Messages().Get(inner.ID)
		require.NoError(t, err)
		require.Equal(t, "hello from the queue", stored.Text)
		require.Equal(t, senderDID, stored.Sender)
		require.Equal(t, store.DirectionInbound, stored.Direction)
	})

	t.Run("delivery acknowledged", func(t *testing.T) {
		require.Equal(t, []string{DeliveryRequestMsgType, MessagesReceivedMsgType}, f.queue.typesSeen())

		ack := f.queue.requests[1]
		ids := ack.Body["message_id_list"].([]interface{})
		require.Len(t, ids, 1)
		require.Equal(t, inner.ID, ids[0])
	})

	t.Run("pickup published", func(t *testing.T) {
		evt := <-f.events
		require.True(t, evt.Success)
	})
}

func TestProcessDeliveryRequestPlainAttachment(t *testing.T) {
	const mediatorFrom = "did:peer:2.Ez6mediatorassigned"

	f := setup(t, func(req *envelope.Message) *envelope.Message {
		if req.Type != DeliveryRequestMsgType {
			return nil
		}

		resp := envelope.NewMessage(DeliveryMsgType, mediatorFrom, req.From)
		resp.Attachments = []envelope.Attachment{{
			ID:   "plain-1",
			Data: envelope.AttachmentData{JSON: "plaintext relay"},
		}}

		return resp
	})

	status, err := f.client.ProcessDeliveryRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
	require.NoError(t, err)
	require.Equal(t, StatusMessagesStored, status)

	stored, err := f.stores.Messages().Get("plain-1")
	require.NoError(t, err)
	require.Equal(t, "plaintext relay", stored.Text)

	// A bare string attachment has no inner envelope; the delivery sender is
	// the closest available from.
	require.Equal(t, mediatorFrom, stored.Sender)
}

func TestProcessDeliveryRequestEmptyQueue(t *testing.T) {
	t.Run("status response", func(t *testing.T) {
		f := setup(t, func(req *envelope.Message) *envelope.Message {
			return statusResponse(req, 0)
		})

		status, err := f.client.ProcessDeliveryRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
		require.NoError(t, err)
		require.Equal(t, StatusNoMessages, status)
	})

	t.Run("delivery without attachments", func(t *testing.T) {
		f := setup(t, func(req *envelope.Message) *envelope.Message {
			return envelope.NewMessage(DeliveryMsgType, "", req.From)
		})

		status, err := f.client.ProcessDeliveryRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
		require.NoError(t, err)
		require.Equal(t, StatusNoMessages, status)
	})
}

func TestProcessDeliveryRequestUnexpectedType(t *testing.T) {
	f := setup(t, func(req *envelope.Message) *envelope.Message {
		return envelope.NewMessage(MessagesReceivedMsgType, "", req.From)
	})

	_, err := f.client.ProcessDeliveryRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
	require.Error(t, err)
	require.True(t, walleterror.IsKind(err, walleterror.KindProtocol))
}

func TestProcessDeliveryRequestAttachmentWithoutData(t *testing.T) {
	f := setup(t, func(req *envelope.Message) *envelope.Message {
		resp := envelope.NewMessage(DeliveryMsgType, "", req.From)
		resp.Attachments = []envelope.Attachment{{ID: "empty"}}

		return resp
	})

	_, err := f.client.ProcessDeliveryRequest(context.Background(), testPIN, f.mediatorDID, f.ownDID)
	require.Error(t, err)
	require.True(t, walleterror.IsKind(err, walleterror.KindValidation))
}

func TestProcessStatusRequestWrongPIN(t *testing.T) {
	f := setup(t, func(req *envelope.Message) *envelope.Message {
		return statusResponse(req, 0)
	})

	_, err := f.client.ProcessStatusRequest(context.Background(), "0000", f.mediatorDID, f.ownDID)
	require.Error(t, err)
	require.True(t, walleterror.IsKind(err, walleterror.KindCrypto))

	evt := <-f.events
	require.False(t, evt.Success)
}
