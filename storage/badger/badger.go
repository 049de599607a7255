// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, gsagula, werbenhu

package badger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/mochi-mqtt/fixeddata/storage"
)

const (
	// defaultDbFile is the default file path for the badger db file.
	defaultDbFile         = ".badger"
	defaultGcInterval     = 5 * 60 // gc interval in seconds
	defaultGcDiscardRatio = 0.5
)

// Options contains configuration settings for the BadgerDB instance.
type Options struct {
	Options *badgerdb.Options `yaml:"-" json:"-"`
	Path    string            `yaml:"path" json:"path" toml:"path"`
	// GcDiscardRatio specifies the ratio of log discard compared to the maximum possible log discard.
	// discardRatio must be in the range (0.0, 1.0), both endpoints excluded, otherwise, it will be set to the default value of 0.5.
	GcDiscardRatio float64 `yaml:"gc_discard_ratio" json:"gc_discard_ratio" toml:"gc_discard_ratio"`
	GcInterval     int64   `yaml:"gc_interval" json:"gc_interval" toml:"gc_interval"`
}

// Backend is a storage backend using BadgerDB.
type Backend struct {
	storage.BackendBase
	config   *Options     // options for configuring the BadgerDB instance.
	gcTicker *time.Ticker // Ticker for BadgerDB garbage collection.
	db       *badgerdb.DB // the BadgerDB instance.
}

// ID returns the id of the backend.
func (b *Backend) ID() string {
	return "badger-db"
}

// gcLoop periodically reclaims space in the value log files.
func (b *Backend) gcLoop() {
	for range b.gcTicker.C {
	again:
		err := b.db.RunValueLogGC(b.config.GcDiscardRatio)
		if err == nil {
			goto again
		}
	}
}

// Init initializes and opens the badger instance.
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

	if b.config.GcInterval == 0 {
		b.config.GcInterval = defaultGcInterval
	}

	if b.config.GcDiscardRatio <= 0.0 || b.config.GcDiscardRatio >= 1.0 {
		b.config.GcDiscardRatio = defaultGcDiscardRatio
	}

	if b.config.Options == nil {
		defaultOpts := badgerdb.DefaultOptions(b.config.Path)
		b.config.Options = &defaultOpts
	}
	b.config.Options.Logger = b

	var err error
	b.db, err = badgerdb.Open(*b.config.Options)
	if err != nil {
		return err
	}

	b.gcTicker = time.NewTicker(time.Duration(b.config.GcInterval) * time.Second)
	go b.gcLoop()

	return nil
}

// Stop closes the badger instance.
func (b *Backend) Stop() error {
	if b.gcTicker != nil {
		b.gcTicker.Stop()
	}

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

	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(k), data)
	})
	if err != nil {
		b.Log.Error("failed to upsert data", "error", err, "key", k)
	}
	return err
}

// Delete deletes a key-value pair from the database.
func (b *Backend) Delete(k string) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete([]byte(k))
	})
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

	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return v.UnmarshalBinary(value)
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// Iterate visits every value whose key has the prefix.
func (b *Backend) Iterate(prefix string, visit func([]byte) error) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := b.db.View(func(txn *badgerdb.Txn) error {
		iterator := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer iterator.Close()

		for iterator.Seek([]byte(prefix)); iterator.ValidForPrefix([]byte(prefix)); iterator.Next() {
			value, err := iterator.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			if err := visit(value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		b.Log.Error("failed to find data", "error", err, "prefix", prefix)
	}
	return err
}

// Errorf satisfies the badger interface for an error logger.
func (b *Backend) Errorf(m string, v ...any) {
	b.Log.Error(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Warningf satisfies the badger interface for a warning logger.
func (b *Backend) Warningf(m string, v ...any) {
	b.Log.Warn(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Infof satisfies the badger interface for an info logger.
func (b *Backend) Infof(m string, v ...any) {
	b.Log.Info(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}

// Debugf satisfies the badger interface for a debug logger.
func (b *Backend) Debugf(m string, v ...any) {
	b.Log.Debug(fmt.Sprintf(strings.ToLower(strings.Trim(m, "\n")), v...), "v", v)
}
