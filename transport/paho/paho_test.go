// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package paho

import (
	"context"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mochi-mqtt/fixeddata/transport"
	"github.com/mochi-mqtt/fixeddata/transport/inline"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func freeAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().String()
}

func TestNewDefaults(t *testing.T) {
	tr := New(Options{}, nil)
	require.True(t, strings.HasPrefix(tr.opts.ClientID, "fixeddata-"))
	require.NotNil(t, tr.Log)
}

func TestNotConnected(t *testing.T) {
	tr := New(Options{Broker: "tcp://127.0.0.1:1"}, logger)
	require.ErrorIs(t, tr.Publish("t/a/hi", nil), transport.ErrNotConnected)
	require.ErrorIs(t, tr.Subscribe([]string{"f/#"}, func(string, []byte) {}), transport.ErrNotConnected)
	require.NoError(t, tr.Close())
}

func TestConnectRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tr := New(Options{Broker: "tcp://" + freeAddr(t)}, logger)
	require.Error(t, tr.Connect(ctx))
}

func TestAgainstEmbeddedBroker(t *testing.T) {
	addr := freeAddr(t)
	broker := inline.New(inline.Options{Address: addr}, logger)
	require.NoError(t, broker.Connect(context.Background()))
	defer broker.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr := New(Options{Broker: "tcp://" + addr, Username: "server", Password: "x"}, logger)
	require.NoError(t, tr.Connect(ctx))
	defer tr.Close()

	var mu sync.Mutex
	var got []string
	require.NoError(t, tr.Subscribe([]string{"f/+/hi"}, func(topic string, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, topic+":"+string(payload))
	}))

	require.NoError(t, broker.Publish("f/client-1/hi", []byte("a")))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	received := make(chan []byte, 1)
	require.NoError(t, broker.Subscribe([]string{"t/+/hi"}, func(topic string, payload []byte) {
		received <- payload
	}))
	require.NoError(t, tr.Publish("t/client-1/hi", []byte{1}))

	select {
	case pl := <-received:
		require.Equal(t, []byte{1}, pl)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered to broker")
	}
}
