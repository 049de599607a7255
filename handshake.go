// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package fixeddata

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/mochi-mqtt/fixeddata/credentials"
	"github.com/mochi-mqtt/fixeddata/packets"
	"github.com/mochi-mqtt/fixeddata/storage"
)

// ErrUsernameTaken indicates no free username was found for a registering device.
var ErrUsernameTaken = errors.New("no unused username found")

// generateLogin issues the credentials offered to a registering device.
var generateLogin = credentials.NewLogin

const (
	errInvalidRequest    = "invalid request"
	errAlreadyRegistered = "already registered"
	errInternal          = "internal error"

	// usernameAttempts bounds the retries for a username which is already taken.
	usernameAttempts = 3
)

// registerError is the reply sent to a device which cannot be registered.
type registerError struct {
	Error string `json:"error"`
}

// handleRegister issues new broker credentials to a device connecting with
// the anonymous register client id. A device which registered but never
// verified may register again.
func (s *Server) handleRegister(w *Worker, path string, payload []byte) {
	clientID := w.ID
	reply := packets.OutboundTopic(clientID, PathRegister)

	if !strings.HasPrefix(clientID, s.Options.ClientIDPrefix) {
		w.Log.Warn("register with invalid client id", "prefix", s.Options.ClientIDPrefix)
		s.replyJSON(reply, registerError{Error: errInvalidRequest})
		return
	}

	existing, err := s.store.ClientByID(clientID)
	switch {
	case err == nil && existing.Verified:
		w.Log.Warn("client already registered", "username", existing.Username)
		s.replyJSON(reply, registerError{Error: errAlreadyRegistered})
		return
	case err == nil:
		n, err := s.store.DeleteClients(func(cl storage.Client) bool {
			return cl.ClientID == clientID && !cl.Verified
		})
		if err != nil {
			w.Log.Error("failed to remove unverified client", "error", err)
			s.replyJSON(reply, registerError{Error: errInternal})
			return
		}
		w.Log.Info("removed unverified registration", "count", n)
	case !storage.IsNotFound(err):
		w.Log.Error("failed to look up client", "error", err)
		s.replyJSON(reply, registerError{Error: errInternal})
		return
	}

	login, err := s.newLogin()
	if err != nil {
		w.Log.Error("failed to generate login", "error", err)
		s.replyJSON(reply, registerError{Error: errInternal})
		return
	}

	hash, err := credentials.Hash(login.Password, s.Options.HashIterations)
	if err != nil {
		w.Log.Error("failed to hash password", "error", err)
		s.replyJSON(reply, registerError{Error: errInternal})
		return
	}

	err = s.store.InsertClient(storage.Client{
		Username: login.Username,
		ClientID: clientID,
		Password: hash,
		Role:     storage.RoleSensor,
	})
	if err != nil {
		w.Log.Error("failed to store client", "error", err)
		s.replyJSON(reply, registerError{Error: errInternal})
		return
	}

	w.Log.Info("client registered", "username", login.Username)
	s.hooks.OnRegister(login.Username, clientID)
	s.replyJSON(reply, login)
}

// newLogin generates credentials with a username not already in use.
func (s *Server) newLogin() (credentials.Login, error) {
	var login credentials.Login
	var err error
	for i := 0; i < usernameAttempts; i++ {
		login, err = generateLogin()
		if err != nil {
			return login, err
		}

		if _, err = s.store.Client(login.Username); storage.IsNotFound(err) {
			return login, nil
		} else if err != nil {
			return login, err
		}
	}

	return credentials.Login{}, ErrUsernameTaken
}

// handleVerify marks a device's credentials as confirmed. The device
// connects with its issued username as its client id.
func (s *Server) handleVerify(w *Worker, path string, payload []byte) {
	username := w.ID
	cl, err := s.store.Client(username)
	if err != nil {
		w.Log.Error("verify for unknown client", "error", err)
		return
	}

	if err := s.store.SetVerified(username); err != nil {
		w.Log.Error("failed to verify client", "error", err)
		return
	}

	s.publish(packets.OutboundTopic(username, PathVerify), []byte{})
	w.Log.Info("client verified", "client_id", cl.ClientID)
	s.hooks.OnVerify(username, cl.ClientID)
}

// handleHi answers whether a device may go offline. The first payload byte
// is zero if the device wants to go offline. The reply is 1 only if every
// outbound transfer to the device is finished and the hooks agree.
func (s *Server) handleHi(w *Worker, path string, payload []byte) {
	if len(payload) == 0 {
		return
	}

	wantsOffline := payload[0] == 0
	allowed := w.AllTransfersFinished() && s.hooks.OnHi(w.ID, wantsOffline)

	var b byte
	if allowed {
		b = 1
	}

	s.publish(packets.OutboundTopic(w.ID, PathHi), []byte{b})
}

// handleBye forwards a device's goodbye to the hooks.
func (s *Server) handleBye(w *Worker, path string, payload []byte) {
	w.Log.Info("client said bye")
	s.hooks.OnBye(w.ID, payload)
}

// replyJSON publishes v encoded as json.
func (s *Server) replyJSON(topic string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.Log.Error("failed to encode reply", "error", err, "topic", topic)
		return
	}

	s.publish(topic, b)
}
