// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-co
// SPDX-FileContributor: mochi-co

package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	redis "github.com/go-redis/redis/v8"
	"github.com/mochi-mqtt/fixeddata/storage"
)

// defaultAddr is the default address to the redis service.
const defaultAddr = "localhost:6379"

// defaultHPrefix is a prefix to better identify hsets created by fixeddata.
const defaultHPrefix = "fixeddata-"

// Options contains configuration settings for the redis instance.
type Options struct {
	HPrefix string         `yaml:"h_prefix" json:"h_prefix" toml:"h_prefix"`
	Address string         `yaml:"address" json:"address" toml:"address"`
	Options *redis.Options `yaml:"-" json:"-"`
}

// Backend is a storage backend keeping one redis hash per record type.
type Backend struct {
	storage.BackendBase
	config *Options        // options for connecting to the Redis instance.
	db     *redis.Client   // the Redis instance
	ctx    context.Context // a context for the connection
}

// ID returns the id of the backend.
func (b *Backend) ID() string {
	return "redis-db"
}

// hKey returns a hash set key with a unique prefix.
func (b *Backend) hKey(s string) string {
	return b.config.HPrefix + s
}

// split separates a record key into its hash and field. A key CL_abc is
// stored in the hash {prefix}CL under the field abc.
func (b *Backend) split(k string) (hash, field string) {
	t, field, _ := strings.Cut(k, "_")
	return b.hKey(t), field
}

// Init initializes and connects to the redis service.
func (b *Backend) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return storage.ErrInvalidConfigType
	}

	b.ctx = context.Background()

	b.config, _ = config.(*Options)
	if b.config == nil {
		b.config = new(Options)
	}
	if b.config.Options == nil {
		b.config.Options = &redis.Options{
			Addr: b.config.Address,
		}
	}

	if b.config.Options.Addr == "" {
		b.config.Options.Addr = defaultAddr
	}

	if b.config.HPrefix == "" {
		b.config.HPrefix = defaultHPrefix
	}

	b.Log.Info("connecting to redis service",
		"address", b.config.Options.Addr,
		"username", b.config.Options.Username,
		"password-len", len(b.config.Options.Password),
		"db", b.config.Options.DB)

	b.db = redis.NewClient(b.config.Options)
	_, err := b.db.Ping(b.ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping service: %w", err)
	}

	b.Log.Info("connected to redis service")

	return nil
}

// Stop closes the redis connection.
func (b *Backend) Stop() error {
	if b.db == nil {
		return nil
	}

	b.Log.Info("disconnecting from redis service")
	err := b.db.Close()
	b.db = nil
	return err
}

// Set stores a record in its hash.
func (b *Backend) Set(k string, v storage.Serializable) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}

	hash, field := b.split(k)
	err = b.db.HSet(b.ctx, hash, field, data).Err()
	if err != nil {
		b.Log.Error("failed to hset data", "error", err, "key", k)
	}
	return err
}

// Get retrieves a record from its hash.
func (b *Backend) Get(k string, v storage.Serializable) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	hash, field := b.split(k)
	data, err := b.db.HGet(b.ctx, hash, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return storage.ErrNotFound
	}
	if err != nil {
		return err
	}

	return v.UnmarshalBinary(data)
}

// Delete removes a record from its hash.
func (b *Backend) Delete(k string) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	hash, field := b.split(k)
	err := b.db.HDel(b.ctx, hash, field).Err()
	if err != nil {
		b.Log.Error("failed to delete data", "error", err, "key", k)
	}
	return err
}

// Iterate visits every record whose key has the prefix, in key order.
func (b *Backend) Iterate(prefix string, visit func([]byte) error) error {
	if b.db == nil {
		return storage.ErrDBFileNotOpen
	}

	hash, fieldPrefix := b.split(prefix)
	rows, err := b.db.HGetAll(b.ctx, hash).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		b.Log.Error("failed to HGetAll data", "error", err, "prefix", prefix)
		return err
	}

	fields := make([]string, 0, len(rows))
	for f := range rows {
		if strings.HasPrefix(f, fieldPrefix) {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)

	for _, f := range fields {
		if err := visit([]byte(rows[f])); err != nil {
			return err
		}
	}
	return nil
}
