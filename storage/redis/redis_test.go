// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-co
// SPDX-FileContributor: mochi-co

package redis

import (
	"log/slog"
	"os"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/go-redis/redis/v8"
	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/storage/storetest"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func newBackend(t *testing.T, addr string) *Backend {
	b := new(Backend)
	b.SetLogger(logger)

	err := b.Init(&Options{
		Options: &redis.Options{
			Addr: addr,
		},
	})
	require.NoError(t, err)

	return b
}

func teardown(t *testing.T, b *Backend) {
	if b.db != nil {
		err := b.db.FlushAll(b.ctx).Err()
		require.NoError(t, err)
		b.Stop()
	}
}

func TestID(t *testing.T) {
	b := new(Backend)
	require.Equal(t, "redis-db", b.ID())
}

func TestSplit(t *testing.T) {
	b := &Backend{config: &Options{HPrefix: "x-"}}
	hash, field := b.split("PR_client-1:fw")
	require.Equal(t, "x-PR", hash)
	require.Equal(t, "client-1:fw", field)
}

func TestInitBadConfig(t *testing.T) {
	b := new(Backend)
	err := b.Init(map[string]any{})
	require.ErrorIs(t, err, storage.ErrInvalidConfigType)
}

func TestInitDefaults(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	b := newBackend(t, s.Addr())
	defer teardown(t, b)
	require.Equal(t, defaultHPrefix, b.config.HPrefix)
}

func TestInitBadAddr(t *testing.T) {
	b := new(Backend)
	b.SetLogger(logger)
	err := b.Init(&Options{
		Options: &redis.Options{
			Addr: "127.0.0.1:1",
		},
	})
	require.Error(t, err)
}

func TestStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := storage.New(new(Backend), &Options{Address: s.Addr()}, logger)
	require.NoError(t, err)
	defer teardown(t, store.Backend().(*Backend))
	storetest.Run(t, store)

	require.True(t, s.Exists(defaultHPrefix+storage.ProgressKey))
}

func TestNotOpen(t *testing.T) {
	b := new(Backend)
	var cl storage.Client
	require.ErrorIs(t, b.Get("CL_k", &cl), storage.ErrDBFileNotOpen)
	require.ErrorIs(t, b.Set("CL_k", &cl), storage.ErrDBFileNotOpen)
	require.ErrorIs(t, b.Delete("CL_k"), storage.ErrDBFileNotOpen)
	require.NoError(t, b.Stop())
}
