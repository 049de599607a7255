// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package paho connects to a remote mqtt broker as a regular client.
package paho

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mochi-mqtt/fixeddata/transport"
	"github.com/rs/xid"
)

const (
	defaultKeepAlive  = 30 * time.Second
	defaultDisconnect = 250 // milliseconds to wait for in-flight work on close
)

var ErrConnectTimeout = errors.New("timed out connecting to broker")

// Options contains configuration settings for the broker connection.
type Options struct {
	Broker   string `yaml:"broker" json:"broker" toml:"broker"` // e.g. tcp://localhost:1883
	ClientID string `yaml:"client_id" json:"client_id" toml:"client_id"`
	Username string `yaml:"username" json:"username" toml:"username"`
	Password string `yaml:"password" json:"password" toml:"password"`
}

type subscription struct {
	filters []string
	handler transport.Handler
}

// Transport is a transport over a paho mqtt client connection.
type Transport struct {
	Log    *slog.Logger
	opts   Options
	client pahomqtt.Client
	mu     sync.Mutex
	subs   []subscription
}

// New returns an unconnected transport. An empty client id is replaced by a
// unique one.
func New(opts Options, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}

	if opts.ClientID == "" {
		opts.ClientID = "fixeddata-" + xid.New().String()
	}

	return &Transport{
		Log:  log,
		opts: opts,
	}
}

// Connect dials the broker and waits until the connection is established
// or ctx is done. Subscriptions are restored after every reconnect.
func (t *Transport) Connect(ctx context.Context) error {
	co := pahomqtt.NewClientOptions().
		AddBroker(t.opts.Broker).
		SetClientID(t.opts.ClientID).
		SetUsername(t.opts.Username).
		SetPassword(t.opts.Password).
		SetKeepAlive(defaultKeepAlive).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(func(c pahomqtt.Client) {
			t.Log.Info("connected to broker", "broker", t.opts.Broker, "client", t.opts.ClientID)
			t.resubscribe(c)
		}).
		SetConnectionLostHandler(func(c pahomqtt.Client, err error) {
			t.Log.Warn("connection to broker lost", "error", err)
		}).
		SetReconnectingHandler(func(c pahomqtt.Client, o *pahomqtt.ClientOptions) {
			t.Log.Info("reconnecting to broker", "broker", t.opts.Broker)
		})

	client := pahomqtt.NewClient(co)
	token := client.Connect()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return err
		}
	case <-ctx.Done():
		client.Disconnect(0)
		return errors.Join(ErrConnectTimeout, ctx.Err())
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	return nil
}

func (t *Transport) resubscribe(c pahomqtt.Client) {
	t.mu.Lock()
	subs := append([]subscription(nil), t.subs...)
	t.mu.Unlock()

	for _, s := range subs {
		if err := t.subscribe(c, s); err != nil {
			t.Log.Error("failed to restore subscription", "error", err, "filters", s.filters)
		}
	}
}

func (t *Transport) subscribe(c pahomqtt.Client, s subscription) error {
	filters := make(map[string]byte, len(s.filters))
	for _, f := range s.filters {
		filters[f] = 0
	}

	token := c.SubscribeMultiple(filters, func(_ pahomqtt.Client, m pahomqtt.Message) {
		s.handler(m.Topic(), m.Payload())
	})
	token.Wait()
	return token.Error()
}

// Subscribe subscribes to the filters and remembers them for reconnects.
func (t *Transport) Subscribe(filters []string, handler transport.Handler) error {
	t.mu.Lock()
	client := t.client
	s := subscription{filters: filters, handler: handler}
	t.subs = append(t.subs, s)
	t.mu.Unlock()

	if client == nil {
		return transport.ErrNotConnected
	}

	return t.subscribe(client, s)
}

// Publish sends a message at qos 0 without waiting for delivery.
func (t *Transport) Publish(topic string, payload []byte) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return transport.ErrNotConnected
	}

	return client.Publish(topic, 0, false, payload).Error()
}

// Close disconnects from the broker.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		t.client.Disconnect(defaultDisconnect)
		t.client = nil
	}
	return nil
}
