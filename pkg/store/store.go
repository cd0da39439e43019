/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package store persists identities, contacts, messages and mediation records
// for the wallet core. It is plain CRUD over an spi storage provider; the
// core relies on the provider's consistency guarantees but implements none of
// its own.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"
)

const (
	identityNamespace  = "identity"
	contactNamespace   = "contact"
	messageNamespace   = "message"
	mediationNamespace = "mediation"
)

// Direction of a stored message relative to this wallet.
type Direction string

// Message directions.
const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Contact is a known remote party.
type Contact struct {
	ID    string `json:"id"`
	DID   string `json:"did"`
	Label string `json:"label,omitempty"`
}

// Message is a stored basic message.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	ContactID string    `json:"contactId"`
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
}

// MediationRecord is the durable outcome of a completed mediation handshake:
// the granted routing DID and the mediator DID for the relationship.
// Endpoint URIs are resolved transiently and never persisted.
type MediationRecord struct {
	OwnDID      string `json:"ownDid"`
	MediatorDID string `json:"mediatorDid"`
	RoutingDID  string `json:"routingDid"`
	State       string `json:"state"`
}

// Provider opens the wallet core's typed stores.
type Provider struct {
	identities *IdentityStore
	contacts   *ContactStore
	messages   *MessageStore
	mediations *MediationStore
}

// NewProvider opens all wallet stores on the given storage provider.
func NewProvider(sp storage.Provider) (*Provider, error) {
	identStore, err := sp.OpenStore(identityNamespace)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}

	contactStore, err := sp.OpenStore(contactNamespace)
	if err != nil {
		return nil, fmt.Errorf("open contact store: %w", err)
	}

	msgStore, err := sp.OpenStore(messageNamespace)
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}

	mediationStore, err := sp.OpenStore(mediationNamespace)
	if err != nil {
		return nil, fmt.Errorf("open mediation store: %w", err)
	}

	return &Provider{
		identities: &IdentityStore{store: identStore},
		contacts:   &ContactStore{store: contactStore},
		messages:   &MessageStore{store: msgStore},
		mediations: &MediationStore{store: mediationStore},
	}, nil
}

// Identities returns the identity store.
func (p *Provider) Identities() *IdentityStore { return p.identities }

// Contacts returns the contact store.
func (p *Provider) Contacts() *ContactStore { return p.contacts }

// Messages returns the message store.
func (p *Provider) Messages() *MessageStore { return p.messages }

// Mediations returns the mediation store.
func (p *Provider) Mediations() *MediationStore { return p.mediations }

// ContactStore persists contacts keyed by ID.
type ContactStore struct {
	store storage.Store
}

// Save stores the contact.
func (s *ContactStore) Save(c *Contact) error {
	return put(s.store, c.ID, c)
}

// Get loads a contact by ID.
func (s *ContactStore) Get(id string) (*Contact, error) {
	c := &Contact{}
	if err := get(s.store, id, c); err != nil {
		return nil, err
	}

	return c, nil
}

// MessageStore persists sent and received messages keyed by message ID.
type MessageStore struct {
	store storage.Store
}

// Save stores the message.
func (s *MessageStore) Save(m *Message) error {
	return put(s.store, m.ID, m)
}

// Get loads a message by ID.
func (s *MessageStore) Get(id string) (*Message, error) {
	m := &Message{}
	if err := get(s.store, id, m); err != nil {
		return nil, err
	}

	return m, nil
}

// MediationStore persists mediation records keyed by the wallet's own DID.
type MediationStore struct {
	store storage.Store
}

// Save stores the mediation record.
func (s *MediationStore) Save(r *MediationRecord) error {
	return put(s.store, r.OwnDID, r)
}

// Get loads the mediation record for ownDID.
func (s *MediationStore) Get(ownDID string) (*MediationRecord, error) {
	r := &MediationRecord{}
	if err := get(s.store, ownDID, r); err != nil {
		return nil, err
	}

	return r, nil
}

func put(s storage.Store, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", key, err)
	}

	return s.Put(key, raw)
}

func get(s storage.Store, key string, out interface{}) error {
	raw, err := s.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrDataNotFound) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}

		return fmt.Errorf("get record %s: %w", key, err)
	}

	return json.Unmarshal(raw, out)
}
