// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, werbenhu

// Package bolt stores records in a single boltdb file.
package bolt

import (
	"bytes"
	"errors"
	"time"

	"github.com/mochi-mqtt/fixeddata/storage"
	"go.etcd.io/bbolt"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
)

const (
	// defaultDbFile is the default file path for the boltdb file.
	defaultDbFile = ".bolt"

	// defaultTimeout is the default time to hold a connection to the file.
	defaultTimeout = 250 * time.Millisecond

	defaultBucket = "fixeddata"
)

// Options contains configuration settings for the bolt instance.
type Options struct {
	Options *bbolt.Options `yaml:"-" json:"-"`
	Bucket  string         `yaml:"bucket" json:"bucket" toml:"bucket"`
	Path    string         `yaml:"path" json:"path" toml:"path"`
}

// Backend is a storage backend using a boltdb file.
type Backend struct {
	storage.BackendBase
	config *Options  // options for configuring the boltdb instance.
	db     *bbolt.DB // the boltdb instance.
}

// ID returns the id of the backend.
func (b *Backend) ID() string {
	return "bolt-db"
}

// Init opens the boltdb file and creates the bucket.
func (b *Backend) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return storage.ErrInvalidConfigType
	}

	b.config, _ = config.(*Options)
	if b.config == nil {
		b.config = new(Options)
	}
	if b.config.Options == nil {
		b.config.Options = &bbolt.Options{
			Timeout: defaultTimeout,
		}
	}
	if len(b.config.Path) == 0 {
		b.config.Path = defaultDbFile
	}

	if len(b.config.Bucket) == 0 {
		b.config.Bucket = defaultBucket
	}

	var err error
	b.db, err = bbolt.Open(b.config.Path, 0600, b.config.Options)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(b.config.Bucket))
		return err
	})
}

// Stop closes the boltdb instance.
func (b *Backend) Stop() error {
	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	b.db = nil
	return err
}

// Set stores a key-value pair in the bucket.
func (b *Backend) Set(k string, v storage.Serializable) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(b.config.Bucket))
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.Put([]byte(k), data)
	})
	if err != nil {
		b.Log.Error("failed to upsert data", "error", err, "key", k)
	}
	return err
}

// Get retrieves the value associated with a key.
func (b *Backend) Get(k string, v storage.Serializable) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	return b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(b.config.Bucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		value := bucket.Get([]byte(k))
		if value == nil {
			return storage.ErrNotFound
		}

		return v.UnmarshalBinary(bytes.Clone(value))
	})
}

// Delete removes a key from the bucket.
func (b *Backend) Delete(k string) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(b.config.Bucket))
		if bucket == nil {
			return ErrBucketNotFound
		}
		return bucket.Delete([]byte(k))
	})
	if err != nil {
		b.Log.Error("failed to delete data", "error", err, "key", k)
	}
	return err
}

// Iterate visits every value whose key has the prefix.
func (b *Backend) Iterate(prefix string, visit func([]byte) error) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(b.config.Bucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		c := bucket.Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := visit(bytes.Clone(v)); err != nil {
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
