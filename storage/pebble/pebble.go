// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: werbenhu

package pebble

import (
	"errors"
	"strings"

	pebbledb "github.com/cockroachdb/pebble"
	"github.com/mochi-mqtt/fixeddata/storage"
)

const (
	// defaultDbFile is the default file path for the pebble db file.
	defaultDbFile = ".pebble"
)

// keyUpperBound returns the upper bound for a given byte slice by incrementing the last byte.
// It returns nil if all bytes are incremented and equal to 0.
func keyUpperBound(b []byte) []byte {
	end := make([]byte, len(b))
	copy(end, b)
	for i := len(end) - 1; i >= 0; i-- {
		end[i] = end[i] + 1
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

const (
	NoSync = "NoSync" // NoSync specifies the default write options for writes which do not synchronize to disk.
	Sync   = "Sync"   // Sync specifies the default write options for writes which synchronize to disk.
)

// Options contains configuration settings for the pebble DB instance.
type Options struct {
	Options *pebbledb.Options `yaml:"-" json:"-"`
	Mode    string            `yaml:"mode" json:"mode" toml:"mode"`
	Path    string            `yaml:"path" json:"path" toml:"path"`
}

// Backend is a storage backend using pebble.
type Backend struct {
	storage.BackendBase
	config *Options               // options for configuring the pebble DB instance.
	db     *pebbledb.DB           // the pebble DB instance
	mode   *pebbledb.WriteOptions // mode holds the optional per-query parameters for Set and Delete operations
}

// ID returns the id of the backend.
func (b *Backend) ID() string {
	return "pebble-db"
}

// Init initializes and opens the pebble instance.
func (b *Backend) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return storage.ErrInvalidConfigType
	}

	b.config, _ = config.(*Options)
	if b.config == nil {
		b.config = new(Options)
	}

	if len(b.config.Path) == 0 {
		b.config.Path = defaultDbFile
	}

	if b.config.Options == nil {
		b.config.Options = &pebbledb.Options{}
	}

	b.mode = pebbledb.NoSync
	if strings.EqualFold(b.config.Mode, Sync) {
		b.mode = pebbledb.Sync
	}

	var err error
	b.db, err = pebbledb.Open(b.config.Path, b.config.Options)
	return err
}

// Stop closes the pebble instance.
func (b *Backend) Stop() error {
	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	return err
}

// Set stores a key-value pair in the database.
func (b *Backend) Set(k string, v storage.Serializable) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	bs, err := v.MarshalBinary()
	if err != nil {
		return err
	}

	err = b.db.Set([]byte(k), bs, b.mode)
	if err != nil {
		b.Log.Error("failed to update data", "error", err, "key", k)
	}
	return err
}

// Delete deletes a key-value pair from the database.
func (b *Backend) Delete(k string) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := b.db.Delete([]byte(k), b.mode)
	if err != nil {
		b.Log.Error("failed to delete data", "error", err, "key", k)
	}
	return err
}

// Get retrieves the value associated with a key from the database.
func (b *Backend) Get(k string, v storage.Serializable) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	value, closer, err := b.db.Get([]byte(k))
	if errors.Is(err, pebbledb.ErrNotFound) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}

	defer func() {
		if closer != nil {
			closer.Close()
		}
	}()
	return v.UnmarshalBinary(value)
}

// Iterate visits every value whose key has the prefix.
func (b *Backend) Iterate(prefix string, visit func([]byte) error) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	iter, err := b.db.NewIter(&pebbledb.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: keyUpperBound([]byte(prefix)),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		if err := visit(value); err != nil {
			b.Log.Error("failed to find data", "error", err, "prefix", prefix)
			return err
		}
	}

	return iter.Error()
}
