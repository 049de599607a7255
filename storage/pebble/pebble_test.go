// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: werbenhu

package pebble

import (
	"log/slog"
	"os"
	"testing"

	pebbledb "github.com/cockroachdb/pebble"
	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/storage/storetest"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func TestKeyUpperBound(t *testing.T) {
	require.Equal(t, []byte("CM"), keyUpperBound([]byte("CL")))
	require.Equal(t, []byte{0x01}, keyUpperBound([]byte{0x00, 0xFF}))
	require.Nil(t, keyUpperBound([]byte{0xFF, 0xFF}))
}

func TestID(t *testing.T) {
	b := new(Backend)
	require.Equal(t, "pebble-db", b.ID())
}

func TestInitBadConfig(t *testing.T) {
	b := new(Backend)
	err := b.Init(map[string]any{})
	require.ErrorIs(t, err, storage.ErrInvalidConfigType)
}

func TestInitSyncMode(t *testing.T) {
	b := new(Backend)
	b.SetLogger(logger)
	require.NoError(t, b.Init(&Options{Path: t.TempDir(), Mode: "sync"}))
	defer b.Stop()
	require.Equal(t, pebbledb.Sync, b.mode)
}

func TestStore(t *testing.T) {
	s, err := storage.New(new(Backend), &Options{Path: t.TempDir()}, logger)
	require.NoError(t, err)
	defer s.Close()
	storetest.Run(t, s)
}

func TestNotOpen(t *testing.T) {
	b := new(Backend)
	var cl storage.Client
	require.ErrorIs(t, b.Get("k", &cl), storage.ErrDBFileNotOpen)
	require.ErrorIs(t, b.Set("k", &cl), storage.ErrDBFileNotOpen)
	require.ErrorIs(t, b.Delete("k"), storage.ErrDBFileNotOpen)
	require.NoError(t, b.Stop())
}
