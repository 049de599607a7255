// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package etcd stores records in an etcd cluster, allowing several servers
// to share the same credentials.
package etcd

import (
	"context"
	"fmt"
	"time"

	"github.com/mochi-mqtt/fixeddata/storage"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	defaultEndpoint    = "localhost:2379"
	defaultKeyPrefix   = "/fixeddata/v1/"
	defaultDialTimeout = 5 * time.Second
	requestTimeout     = 5 * time.Second
)

// Options contains configuration settings for the etcd client.
type Options struct {
	Endpoints   []string      `yaml:"endpoints" json:"endpoints" toml:"endpoints"`
	KeyPrefix   string        `yaml:"key_prefix" json:"key_prefix" toml:"key_prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout" toml:"dial_timeout"`
}

// Backend is a storage backend using etcd.
type Backend struct {
	storage.BackendBase
	config *Options
	client *clientv3.Client
}

// ID returns the id of the backend.
func (b *Backend) ID() string {
	return "etcd"
}

func (b *Backend) key(k string) string {
	return b.config.KeyPrefix + k
}

// Init dials the etcd cluster.
func (b *Backend) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return storage.ErrInvalidConfigType
	}

	b.config, _ = config.(*Options)
	if b.config == nil {
		b.config = new(Options)
	}
	if len(b.config.Endpoints) == 0 {
		b.config.Endpoints = []string{defaultEndpoint}
	}

	if b.config.KeyPrefix == "" {
		b.config.KeyPrefix = defaultKeyPrefix
	}

	if b.config.DialTimeout == 0 {
		b.config.DialTimeout = defaultDialTimeout
	}

	b.Log.Info("connecting to etcd", "endpoints", b.config.Endpoints)

	var err error
	b.client, err = clientv3.New(clientv3.Config{
		Endpoints:   b.config.Endpoints,
		DialTimeout: b.config.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("etcd dial: %w", err)
	}

	return nil
}

// Stop closes the etcd client.
func (b *Backend) Stop() error {
	if b.client == nil {
		return nil
	}

	err := b.client.Close()
	b.client = nil
	return err
}

// Set writes a record.
func (b *Backend) Set(k string, v storage.Serializable) error {
	if b.client == nil {
		return storage.ErrDBFileNotOpen
	}

	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := b.client.Put(ctx, b.key(k), string(data)); err != nil {
		b.Log.Error("failed to put data", "error", err, "key", k)
		return fmt.Errorf("etcd put %q: %w", k, err)
	}
	return nil
}

// Get reads a record.
func (b *Backend) Get(k string, v storage.Serializable) error {
	if b.client == nil {
		return storage.ErrDBFileNotOpen
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := b.client.Get(ctx, b.key(k))
	if err != nil {
		return fmt.Errorf("etcd get %q: %w", k, err)
	}

	if len(resp.Kvs) == 0 {
		return storage.ErrNotFound
	}

	return v.UnmarshalBinary(resp.Kvs[0].Value)
}

// Delete removes a record.
func (b *Backend) Delete(k string) error {
	if b.client == nil {
		return storage.ErrDBFileNotOpen
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := b.client.Delete(ctx, b.key(k)); err != nil {
		b.Log.Error("failed to delete data", "error", err, "key", k)
		return fmt.Errorf("etcd delete %q: %w", k, err)
	}
	return nil
}

// Iterate visits every record whose key has the prefix, in key order.
func (b *Backend) Iterate(prefix string, visit func([]byte) error) error {
	if b.client == nil {
		return storage.ErrDBFileNotOpen
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := b.client.Get(ctx, b.key(prefix), clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return fmt.Errorf("etcd list %q: %w", prefix, err)
	}

	for _, kv := range resp.Kvs {
		if err := visit(kv.Value); err != nil {
			return err
		}
	}
	return nil
}
