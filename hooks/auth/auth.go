// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package auth provides a hook which accepts or denies device hi requests
// against a ledger of rules.
package auth

import (
	"log/slog"

	"github.com/mochi-mqtt/fixeddata"
)

// Options contains the configuration/rules data for the auth ledger.
type Options struct {
	Data   []byte
	Ledger *Ledger
}

// Hook is an access hook which implements an auth ledger.
type Hook struct {
	fixeddata.HookBase
	config *Options
	ledger *Ledger
}

// ID returns the ID of the hook.
func (h *Hook) ID() string {
	return "auth-ledger"
}

// Provides indicates which hook methods this hook provides.
func (h *Hook) Provides(b byte) bool {
	return b == fixeddata.OnHi
}

// Init configures the hook with the auth ledger to be used for checking.
func (h *Hook) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return fixeddata.ErrInvalidConfigType
	}

	h.config, _ = config.(*Options)
	if h.config == nil {
		h.config = new(Options)
	}

	if h.Log == nil {
		h.Log = slog.Default()
	}

	var err error
	if h.config.Ledger != nil {
		h.ledger = h.config.Ledger
	} else if len(h.config.Data) > 0 {
		h.ledger = new(Ledger)
		err = h.ledger.Unmarshal(h.config.Data)
	}
	if err != nil {
		return err
	}

	if h.ledger == nil {
		h.ledger = &Ledger{
			Hi: HiRules{},
		}
	}

	h.Log.Info("loaded auth rules", "users", len(h.ledger.Users), "hi", len(h.ledger.Hi))

	return nil
}

// OnHi returns true if the ledger allows the user to say hi.
func (h *Hook) OnHi(username string, wantsOffline bool) bool {
	if _, ok := h.ledger.HiOk(username, wantsOffline); ok {
		return true
	}

	h.Log.Info("client failed hi check", "username", username, "offline", wantsOffline)
	return false
}
