/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport posts packed DIDComm envelopes to mediator endpoints.
// Nothing here retries: a failed call surfaces immediately and retry policy
// belongs to the caller.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trustbloc/edge-core/pkg/log"

	"github.com/trustbloc/walletcore/pkg/common/walleterror"
	"github.com/trustbloc/walletcore/pkg/didcomm/envelope"
)

var logger = log.New("walletcore/transport")

type outboundOpts struct {
	client *http.Client
}

// OutboundOpt configures the outbound client.
type OutboundOpt func(opts *outboundOpts)

// WithOutboundHTTPClient uses the given http.Client instance.
func WithOutboundHTTPClient(client *http.Client) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client = client
	}
}

// WithOutboundTimeout sets the per-request timeout on the underlying client.
func WithOutboundTimeout(timeout time.Duration) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client.Timeout = timeout
	}
}

// WithOutboundTLSConfig uses a client with the given TLS configuration.
func WithOutboundTLSConfig(tlsConfig *tls.Config) OutboundOpt {
	return func(opts *outboundOpts) {
		opts.client = &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: tlsConfig,
			},
		}
	}
}

// OutboundClient posts packed envelopes to DIDComm service endpoints.
type OutboundClient struct {
	client *http.Client
}

// NewOutbound creates an outbound client. Uses a default http.Client unless
// one is supplied through options.
func NewOutbound(opts ...OutboundOpt) *OutboundClient {
	clOpts := &outboundOpts{client: &http.Client{}}

	for _, opt := range opts {
		opt(clOpts)
	}

	return &OutboundClient{client: clOpts.client}
}

// Send posts a packed envelope to url. A 200 response returns the body (a
// packed envelope for status/delivery requests); a 202 returns an empty ack.
// Anything else is a network error.
func (c *OutboundClient) Send(ctx context.Context, packedEnvelope, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(packedEnvelope))
	if err != nil {
		return "", walleterror.Wrap(walleterror.KindValidation, err, "build request")
	}

	req.Header.Set("Content-Type", envelope.MediaTypeEncrypted)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", walleterror.Wrap(walleterror.KindNetwork, err, fmt.Sprintf("post envelope to [%s]", url))
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Errorf("close response body from [%s]: %v", url, e)
		}
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", walleterror.NewNetwork(
			fmt.Sprintf("non success POST status from [%s]: %s", url, resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", walleterror.Wrap(walleterror.KindNetwork, err, fmt.Sprintf("read response from [%s]", url))
	}

	return string(body), nil
}

// SendExpectAccepted posts a packed envelope and reports success only on
// HTTP 202, the acknowledgement status for forwarded messages.
func (c *OutboundClient) SendExpectAccepted(ctx context.Context, packedEnvelope, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(packedEnvelope))
	if err != nil {
		return walleterror.Wrap(walleterror.KindValidation, err, "build request")
	}

	req.Header.Set("Content-Type", envelope.MediaTypeEncrypted)

	resp, err := c.client.Do(req)
	if err != nil {
		return walleterror.Wrap(walleterror.KindNetwork, err, fmt.Sprintf("post envelope to [%s]", url))
	}

	defer func() {
		if e := resp.Body.Close(); e != nil {
			logger.Errorf("close response body from [%s]: %v", url, e)
		}
	}()

	if resp.StatusCode != http.StatusAccepted {
		return walleterror.NewNetwork(
			fmt.Sprintf("expected 202 from [%s], got %s", url, resp.Status))
	}

	return nil
}
