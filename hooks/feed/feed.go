// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package feed forwards transfer progress updates to a live subscriber,
// such as the http stats listener's websocket feed.
package feed

import (
	"errors"

	"github.com/mochi-mqtt/fixeddata"
	"github.com/mochi-mqtt/fixeddata/storage"
)

// ErrNoTarget indicates the hook was initialised without a broadcast target.
var ErrNoTarget = errors.New("feed hook requires a broadcast target")

// Broadcaster receives progress updates.
type Broadcaster interface {
	Broadcast(clientID string, progress []storage.Progress)
}

// Options contains configuration settings for the feed hook.
type Options struct {
	Target Broadcaster // where progress updates are sent
}

// Hook is a hook which forwards every progress update to a Broadcaster.
type Hook struct {
	fixeddata.HookBase
	config *Options
}

// ID returns the ID of the hook.
func (h *Hook) ID() string {
	return "progress-feed"
}

// Provides indicates which hook methods this hook provides.
func (h *Hook) Provides(b byte) bool {
	return b == fixeddata.OnProgress
}

// Init initializes the hook with a broadcast target.
func (h *Hook) Init(config any) error {
	opts, ok := config.(*Options)
	if !ok {
		return fixeddata.ErrInvalidConfigType
	}

	if opts == nil || opts.Target == nil {
		return ErrNoTarget
	}

	h.config = opts
	return nil
}

// OnProgress forwards a client's progress to the target.
func (h *Hook) OnProgress(clientID string, progress []storage.Progress) {
	h.config.Target.Broadcast(clientID, progress)
}
