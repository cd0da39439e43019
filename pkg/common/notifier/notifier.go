/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package notifier is the process-wide publish/subscribe handle used to
// report protocol results to UI layers. It is constructed once at startup and
// passed by reference into each component; there is no implicit global state.
// Payloads are deep-copied at the send boundary, so no subscriber can observe
// another's mutation.
package notifier

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/trustbloc/edge-core/pkg/log"
)

var logger = log.New("walletcore/notifier")

const subscriberBuffer = 8

// Event is a tagged result delivered to subscribers. Data is a private JSON
// copy of the published payload.
type Event struct {
	Topic   string
	Success bool
	Message string
	Data    json.RawMessage
}

// Notifier fans events out to topic subscribers over channels.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

// New creates an empty notifier.
func New() *Notifier {
	return &Notifier{subscribers: map[string][]chan Event{}}
}

// Subscribe registers for events on topic. The returned cancel func removes
// the subscription and closes the channel.
func (n *Notifier) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	n.mu.Lock()
	n.subscribers[topic] = append(n.subscribers[topic], ch)
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		subs := n.subscribers[topic]
		for i, sub := range subs {
			if sub == ch {
				n.subscribers[topic] = append(subs[:i], subs[i+1:]...)
				close(ch)

				return
			}
		}
	}

	return ch, cancel
}

// Publish delivers a success event carrying a deep copy of payload to every
// subscriber of topic.
func (n *Notifier) Publish(topic string, payload interface{}) error {
	return n.emit(topic, true, "", payload)
}

// PublishError delivers a failure event to every subscriber of topic, so
// failures are observable rather than silently dropped.
func (n *Notifier) PublishError(topic, message string) error {
	return n.emit(topic, false, message, nil)
}

func (n *Notifier) emit(topic string, success bool, message string, payload interface{}) error {
	var data json.RawMessage

	if payload != nil {
		// The JSON round trip is the clone boundary: subscribers never alias
		// the publisher's object graph.
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("clone payload for topic %s: %w", topic, err)
		}

		data = raw
	}

	// Sends stay under the read lock so a concurrent cancel, which closes the
	// channel under the write lock, can never race a send on it. The sends are
	// non-blocking, so the lock is held only briefly.
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subscribers[topic] {
		evt := Event{Topic: topic, Success: success, Message: message}
		if data != nil {
			evt.Data = append(json.RawMessage{}, data...)
		}

		select {
		case ch <- evt:
		default:
			logger.Warnf("subscriber buffer full, dropping event on topic %s", topic)
		}
	}

	return nil
}
