// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package inline runs an embedded mqtt broker and talks to it through the
// broker's inline client, so no network round trip is needed for the
// server's own traffic.
package inline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mochi-mqtt/fixeddata/transport"
	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
)

const defaultListenerID = "fixeddata-tcp"

// Options contains configuration settings for the embedded broker.
type Options struct {
	Address    string `yaml:"address" json:"address" toml:"address"` // tcp address devices connect to; empty disables the listener
	ListenerID string `yaml:"listener_id" json:"listener_id" toml:"listener_id"`
}

// Transport is a transport backed by an embedded mochi mqtt broker.
type Transport struct {
	Log    *slog.Logger
	opts   Options
	mu     sync.Mutex
	server *mqtt.Server
	nextID int
}

// New returns an unconnected embedded broker transport.
func New(opts Options, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}

	if opts.ListenerID == "" {
		opts.ListenerID = defaultListenerID
	}

	return &Transport{
		Log:  log,
		opts: opts,
	}
}

// Connect starts the embedded broker and its listener.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	server := mqtt.New(&mqtt.Options{
		InlineClient: true,
		Logger:       t.Log,
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return err
	}

	if t.opts.Address != "" {
		tcp := listeners.NewTCP(listeners.Config{
			ID:      t.opts.ListenerID,
			Address: t.opts.Address,
		})
		if err := server.AddListener(tcp); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := server.Serve(); err != nil {
		return err
	}

	t.server = server
	t.Log.Info("embedded broker started", "address", t.opts.Address)
	return nil
}

// Server returns the embedded broker, or nil if not connected.
func (t *Transport) Server() *mqtt.Server {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.server
}

// Subscribe registers an inline subscription for each filter.
func (t *Transport) Subscribe(filters []string, handler transport.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.server == nil {
		return transport.ErrNotConnected
	}

	for _, filter := range filters {
		t.nextID++
		err := t.server.Subscribe(filter, t.nextID, func(cl *mqtt.Client, sub packets.Subscription, pk packets.Packet) {
			handler(pk.TopicName, pk.Payload)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Publish publishes a message from the inline client.
func (t *Transport) Publish(topic string, payload []byte) error {
	t.mu.Lock()
	server := t.server
	t.mu.Unlock()

	if server == nil {
		return transport.ErrNotConnected
	}

	return server.Publish(topic, payload, false, 0)
}

// Close stops the embedded broker.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.server == nil {
		return nil
	}

	err := t.server.Close()
	t.server = nil
	return err
}
