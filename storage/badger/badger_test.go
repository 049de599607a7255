// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, gsagula, werbenhu

package badger

import (
	"log/slog"
	"os"
	"testing"

	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/storage/storetest"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

func TestID(t *testing.T) {
	b := new(Backend)
	require.Equal(t, "badger-db", b.ID())
}

func TestInitBadConfig(t *testing.T) {
	b := new(Backend)
	err := b.Init(map[string]any{})
	require.ErrorIs(t, err, storage.ErrInvalidConfigType)
}

func TestInitDefaults(t *testing.T) {
	b := new(Backend)
	b.SetLogger(logger)
	opts := &Options{Path: t.TempDir(), GcDiscardRatio: 2}
	require.NoError(t, b.Init(opts))
	defer b.Stop()

	require.Equal(t, int64(defaultGcInterval), opts.GcInterval)
	require.Equal(t, defaultGcDiscardRatio, opts.GcDiscardRatio)
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

func TestLoggerShims(t *testing.T) {
	b := new(Backend)
	b.SetLogger(logger)
	b.Errorf("test %s\n", "error")
	b.Warningf("test %s", "warn")
	b.Infof("test %s", "info")
	b.Debugf("test %s", "debug")
}
