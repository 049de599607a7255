// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package storage_test

import (
	"log/slog"
	"os"
	"testing"

	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/storage/storetest"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := storage.New(new(storage.Memory), nil, log)
	require.NoError(t, err)
	require.Equal(t, "memory", s.Backend().ID())
	storetest.Run(t, s)
	require.NoError(t, s.Close())
}
