// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package transport defines the publish/subscribe connection the server
// exchanges messages with clients over.
package transport

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotConnected = errors.New("transport not connected")
)

// Handler receives every message matching a subscribed filter.
type Handler func(topic string, payload []byte)

// Transport is a connection to a publish/subscribe broker. Publish is fire
// and forget; Handler may be called from any goroutine.
type Transport interface {
	Connect(ctx context.Context) error
	Subscribe(filters []string, handler Handler) error
	Publish(topic string, payload []byte) error
	Close() error
}

// Match returns true if an mqtt topic filter matches a topic name.
func Match(filter, topic string) bool {
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")

	for i, p := range fp {
		if p == "#" {
			return true
		}

		if i >= len(tp) {
			return false
		}

		if p != "+" && p != tp[i] {
			return false
		}
	}

	return len(fp) == len(tp)
}
