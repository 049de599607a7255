// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package transport

import (
	"bytes"
	"context"
	"sync"
)

// Message is a published topic and payload.
type Message struct {
	Topic   string
	Payload []byte
}

type subscription struct {
	filter  string
	handler Handler
}

// Mock is an in-process transport which records published messages and
// delivers injected messages to subscribers.
type Mock struct {
	sync.RWMutex
	Connected    bool
	Closed       bool
	ConnectErr   error
	SubscribeErr error
	OnPublish    func(m Message) // called outside of the lock for each publish
	published    []Message
	subs         []subscription
}

// Connect marks the mock as connected.
func (m *Mock) Connect(ctx context.Context) error {
	if m.ConnectErr != nil {
		return m.ConnectErr
	}

	m.Lock()
	defer m.Unlock()
	m.Connected = true
	return nil
}

// Subscribe adds a handler for the filters.
func (m *Mock) Subscribe(filters []string, handler Handler) error {
	if m.SubscribeErr != nil {
		return m.SubscribeErr
	}

	m.Lock()
	defer m.Unlock()
	for _, f := range filters {
		m.subs = append(m.subs, subscription{filter: f, handler: handler})
	}
	return nil
}

// Filters returns the subscribed filters in order.
func (m *Mock) Filters() []string {
	m.RLock()
	defer m.RUnlock()
	out := make([]string, len(m.subs))
	for i, s := range m.subs {
		out[i] = s.filter
	}
	return out
}

// Publish records a message.
func (m *Mock) Publish(topic string, payload []byte) error {
	m.Lock()
	if !m.Connected {
		m.Unlock()
		return ErrNotConnected
	}

	msg := Message{Topic: topic, Payload: bytes.Clone(payload)}
	m.published = append(m.published, msg)
	fn := m.OnPublish
	m.Unlock()

	if fn != nil {
		fn(msg)
	}
	return nil
}

// Inject delivers a message to every matching subscription, as if it had
// arrived from the broker.
func (m *Mock) Inject(topic string, payload []byte) {
	m.RLock()
	var handlers []Handler
	for _, s := range m.subs {
		if Match(s.filter, topic) {
			handlers = append(handlers, s.handler)
		}
	}
	m.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

// Published returns a copy of all messages published so far.
func (m *Mock) Published() []Message {
	m.RLock()
	defer m.RUnlock()
	return append([]Message(nil), m.published...)
}

// PublishedTo returns the payloads published to a topic, in order.
func (m *Mock) PublishedTo(topic string) [][]byte {
	m.RLock()
	defer m.RUnlock()
	var out [][]byte
	for _, msg := range m.published {
		if msg.Topic == topic {
			out = append(out, msg.Payload)
		}
	}
	return out
}

// Reset drops the recorded messages.
func (m *Mock) Reset() {
	m.Lock()
	defer m.Unlock()
	m.published = nil
}

// Close marks the mock as closed.
func (m *Mock) Close() error {
	m.Lock()
	defer m.Unlock()
	m.Connected = false
	m.Closed = true
	return nil
}
