// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package storage

import (
	"encoding/json"
	"errors"
	"log/slog"
)

const (
	ClientKey   = "CL" // unique key to denote client credentials in a store
	ProgressKey = "PR" // unique key to denote transfer progress in a store
)

const (
	RoleSensor = "sensor" // devices registered through the handshake
	RoleServer = "server" // the server's own broker login
)

var (
	// ErrDBFileNotOpen indicates that the file database (e.g. bolt/badger) wasn't open for reading.
	ErrDBFileNotOpen = errors.New("db file not open")

	// ErrNotFound indicates that no value is stored under a key.
	ErrNotFound = errors.New("key not found")

	// ErrInvalidConfigType indicates a backend was initialised with the wrong options type.
	ErrInvalidConfigType = errors.New("invalid config type provided")
)

// Serializable is an interface for objects that can be serialized and deserialized.
type Serializable interface {
	UnmarshalBinary([]byte) error
	MarshalBinary() (data []byte, err error)
}

// Backend is a key/value store which records are persisted in.
type Backend interface {
	ID() string
	Init(config any) error
	SetLogger(l *slog.Logger)
	Set(key string, v Serializable) error
	Get(key string, v Serializable) error
	Delete(key string) error
	Iterate(prefix string, visit func([]byte) error) error
	Stop() error
}

// BackendBase provides the logger shared by all backends.
type BackendBase struct {
	Log *slog.Logger
}

// SetLogger sets the logger used by the backend.
func (b *BackendBase) SetLogger(l *slog.Logger) {
	b.Log = l
}

// Client is a storable set of login credentials for a device.
type Client struct {
	Username string `json:"username"` // the broker username and storage key
	ClientID string `json:"clientId"` // the id the device registered with
	Password string `json:"password"` // the encoded password hash
	Role     string `json:"role"`     // the kind of login
	T        string `json:"t"`        // the data type (client)
	Verified bool   `json:"verified"` // the device has confirmed its credentials
}

// MarshalBinary encodes the values into a json string.
func (d Client) MarshalBinary() (data []byte, err error) {
	return json.Marshal(d)
}

// UnmarshalBinary decodes a json string into a struct.
func (d *Client) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, d)
}

// Progress is a storable record of the last known progress of a transfer.
type Progress struct {
	ClientID string `json:"clientId"` // the client the transfer belongs to
	Topic    string `json:"topic"`    // the topic path of the transfer
	T        string `json:"t"`        // the data type (progress)
	Progress int    `json:"progress"` // packets reported by the receiver
	Total    int    `json:"total"`    // packets in the transfer, -1 if unknown
	Updated  int64  `json:"updated"`  // unix time of the last update
}

// MarshalBinary encodes the values into a json string.
func (d Progress) MarshalBinary() (data []byte, err error) {
	return json.Marshal(d)
}

// UnmarshalBinary decodes a json string into a struct.
func (d *Progress) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, d)
}
