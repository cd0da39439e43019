/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/trustbloc/walletcore/pkg/common/walleterror"
	"github.com/trustbloc/walletcore/pkg/didcomm/envelope"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	router := mux.NewRouter()

	router.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, envelope.MediaTypeEncrypted, r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body) // echo
	}).Methods(http.MethodPost)

	router.HandleFunc("/accepted", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	router.HandleFunc("/fail", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}).Methods(http.MethodPost)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return srv
}

func TestSend(t *testing.T) {
	srv := testServer(t)
	client := NewOutbound(WithOutboundTimeout(5 * time.Second))

	t.Run("200 returns body", func(t *testing.T) {
		resp, err := client.Send(context.Background(), "payload", srv.URL+"/ok")
		require.NoError(t, err)
		require.Equal(t, "payload", resp)
	})

	t.Run("202 returns empty ack", func(t *testing.T) {
		resp, err := client.Send(context.Background(), "payload", srv.URL+"/accepted")
		require.NoError(t, err)
		require.Empty(t, resp)
	})

	t.Run("500 is a network error", func(t *testing.T) {
		_, err := client.Send(context.Background(), "payload", srv.URL+"/fail")
		require.Error(t, err)
		require.True(t, walleterror.IsKind(err, walleterror.KindNetwork))
	})

	t.Run("connection failure is a network error", func(t *testing.T) {
		_, err := client.Send(context.Background(), "payload", "http://127.0.0.1:1/nope")
		require.Error(t, err)
		require.True(t, walleterror.IsKind(err, walleterror.KindNetwork))
	})
}

func TestSendExpectAccepted(t *testing.T) {
	srv := testServer(t)
	client := NewOutbound(WithOutboundHTTPClient(&http.Client{}))

	t.Run("202 succeeds", func(t *testing.T) {
		require.NoError(t, client.SendExpectAccepted(context.Background(), "payload", srv.URL+"/accepted"))
	})

	t.Run("200 is not an ack", func(t *testing.T) {
		err := client.SendExpectAccepted(context.Background(), "payload", srv.URL+"/ok")
		require.Error(t, err)
		require.True(t, walleterror.IsKind(err, walleterror.KindNetwork))
	})
}
