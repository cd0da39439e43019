/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package context assembles the wallet core's collaborators into a provider
// consumed by the protocol packages. It is constructed once at process start
// and passed by reference into each component; nothing here is global.
package context

import (
	"github.com/trustbloc/walletcore/pkg/common/notifier"
	"github.com/trustbloc/walletcore/pkg/didcomm/envelope"
	"github.com/trustbloc/walletcore/pkg/didcomm/transport"
	"github.com/trustbloc/walletcore/pkg/secretlock/pinlock"
	"github.com/trustbloc/walletcore/pkg/store"
	"github.com/trustbloc/walletcore/pkg/vdr"
)

// Provider supplies the shared collaborators.
type Provider struct {
	resolver *vdr.Resolver
	packer   envelope.Packer
	outbound *transport.OutboundClient
	stores   *store.Provider
	lock     *pinlock.Lock
	notifier *notifier.Notifier
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithDIDResolver sets the DID resolver.
func WithDIDResolver(r *vdr.Resolver) ProviderOption {
	return func(p *Provider) { p.resolver = r }
}

// WithPacker sets the external DIDComm crypto engine.
func WithPacker(packer envelope.Packer) ProviderOption {
	return func(p *Provider) { p.packer = packer }
}

// WithOutbound sets the outbound transport.
func WithOutbound(out *transport.OutboundClient) ProviderOption {
	return func(p *Provider) { p.outbound = out }
}

// WithStore sets the persistence provider.
func WithStore(s *store.Provider) ProviderOption {
	return func(p *Provider) { p.stores = s }
}

// WithSecretLock sets the PIN lock.
func WithSecretLock(l *pinlock.Lock) ProviderOption {
	return func(p *Provider) { p.lock = l }
}

// WithNotifier sets the event notifier.
func WithNotifier(n *notifier.Notifier) ProviderOption {
	return func(p *Provider) { p.notifier = n }
}

// New builds a provider from options.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// DIDResolver returns the DID resolver.
func (p *Provider) DIDResolver() *vdr.Resolver { return p.resolver }

// Packer returns the external crypto engine.
func (p *Provider) Packer() envelope.Packer { return p.packer }

// Outbound returns the outbound transport.
func (p *Provider) Outbound() *transport.OutboundClient { return p.outbound }

// Store returns the persistence provider.
func (p *Provider) Store() *store.Provider { return p.stores }

// SecretLock returns the PIN lock.
func (p *Provider) SecretLock() *pinlock.Lock { return p.lock }

// Notifier returns the event notifier.
func (p *Provider) Notifier() *notifier.Notifier { return p.notifier }
