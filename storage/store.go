// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// clientKey returns a primary key for a client.
func clientKey(username string) string {
	return ClientKey + "_" + username
}

// progressKey returns a primary key for the progress of a client topic.
func progressKey(clientID, topic string) string {
	return ProgressKey + "_" + clientID + ":" + topic
}

// Store persists client credentials and transfer progress in a backend.
type Store struct {
	Log     *slog.Logger
	backend Backend
	mu      sync.Mutex // serialises read-modify-write operations
}

// New initialises a backend with config and returns a store using it.
func New(backend Backend, config any, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	backend.SetLogger(log)
	if err := backend.Init(config); err != nil {
		return nil, fmt.Errorf("init %s: %w", backend.ID(), err)
	}

	log.Info("storage backend ready", "backend", backend.ID())
	return &Store{
		Log:     log,
		backend: backend,
	}, nil
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Client returns the credentials stored for a username.
func (s *Store) Client(username string) (Client, error) {
	var cl Client
	err := s.backend.Get(clientKey(username), &cl)
	return cl, err
}

// ClientByID returns the first credentials registered with clientID.
func (s *Store) ClientByID(clientID string) (Client, error) {
	var found *Client
	err := s.backend.Iterate(ClientKey+"_", func(data []byte) error {
		if found != nil {
			return nil
		}

		var cl Client
		if err := cl.UnmarshalBinary(data); err != nil {
			return err
		}

		if cl.ClientID == clientID {
			found = &cl
		}
		return nil
	})

	if err != nil {
		return Client{}, err
	}

	if found == nil {
		return Client{}, ErrNotFound
	}

	return *found, nil
}

// Clients returns all stored credentials.
func (s *Store) Clients() ([]Client, error) {
	var out []Client
	err := s.backend.Iterate(ClientKey+"_", func(data []byte) error {
		var cl Client
		if err := cl.UnmarshalBinary(data); err != nil {
			return err
		}
		out = append(out, cl)
		return nil
	})
	return out, err
}

// InsertClient writes credentials, replacing any stored under the same username.
func (s *Store) InsertClient(cl Client) error {
	cl.T = ClientKey
	return s.backend.Set(clientKey(cl.Username), &cl)
}

// DeleteClient removes the credentials for a username.
func (s *Store) DeleteClient(username string) error {
	return s.backend.Delete(clientKey(username))
}

// DeleteClients removes every stored client matching fn and returns how many were removed.
func (s *Store) DeleteClients(fn func(Client) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients, err := s.Clients()
	if err != nil {
		return 0, err
	}

	var n int
	for _, cl := range clients {
		if !fn(cl) {
			continue
		}

		if err := s.backend.Delete(clientKey(cl.Username)); err != nil {
			return n, err
		}
		n++
	}

	return n, nil
}

// SetVerified marks the credentials for a username as verified.
func (s *Store) SetVerified(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl, err := s.Client(username)
	if err != nil {
		return err
	}

	if cl.Verified {
		return nil
	}

	cl.Verified = true
	return s.backend.Set(clientKey(username), &cl)
}

// SetProgress writes the progress record of a client topic.
func (s *Store) SetProgress(p Progress) error {
	p.T = ProgressKey
	return s.backend.Set(progressKey(p.ClientID, p.Topic), &p)
}

// Progress returns all progress records stored for a client.
func (s *Store) Progress(clientID string) ([]Progress, error) {
	var out []Progress
	err := s.backend.Iterate(ProgressKey+"_"+clientID+":", func(data []byte) error {
		var p Progress
		if err := p.UnmarshalBinary(data); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// Close stops the backend.
func (s *Store) Close() error {
	return s.backend.Stop()
}

// IsNotFound returns true if err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
