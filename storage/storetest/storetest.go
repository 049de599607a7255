// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package storetest contains conformance tests shared by the storage backends.
package storetest

import (
	"testing"

	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/stretchr/testify/require"
)

// Run exercises a backend through a Store. It is shared by the
// tests of every backend package.
func Run(t *testing.T, s *storage.Store) {
	t.Helper()

	_, err := s.Client("nobody")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.ClientByID("client-none")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.InsertClient(storage.Client{Username: "a1b2c3d4", ClientID: "client-1", Password: "x", Role: storage.RoleSensor}))
	require.NoError(t, s.InsertClient(storage.Client{Username: "e5f6a7b8", ClientID: "client-2", Password: "y", Role: storage.RoleSensor}))

	cl, err := s.Client("a1b2c3d4")
	require.NoError(t, err)
	require.Equal(t, "client-1", cl.ClientID)
	require.Equal(t, storage.ClientKey, cl.T)
	require.False(t, cl.Verified)

	cl, err = s.ClientByID("client-2")
	require.NoError(t, err)
	require.Equal(t, "e5f6a7b8", cl.Username)

	require.NoError(t, s.SetVerified("a1b2c3d4"))
	require.NoError(t, s.SetVerified("a1b2c3d4"))
	cl, err = s.Client("a1b2c3d4")
	require.NoError(t, err)
	require.True(t, cl.Verified)

	require.ErrorIs(t, s.SetVerified("nobody"), storage.ErrNotFound)

	clients, err := s.Clients()
	require.NoError(t, err)
	require.Len(t, clients, 2)

	require.NoError(t, s.SetProgress(storage.Progress{ClientID: "client-1", Topic: "fw", Progress: 3, Total: 7, Updated: 1}))
	require.NoError(t, s.SetProgress(storage.Progress{ClientID: "client-1", Topic: "fw", Progress: 5, Total: 7, Updated: 2}))
	require.NoError(t, s.SetProgress(storage.Progress{ClientID: "client-1", Topic: "log", Progress: 1, Total: 2, Updated: 2}))
	require.NoError(t, s.SetProgress(storage.Progress{ClientID: "client-10", Topic: "fw", Progress: 1, Total: 1, Updated: 2}))

	progress, err := s.Progress("client-1")
	require.NoError(t, err)
	require.Len(t, progress, 2)
	for _, p := range progress {
		require.Equal(t, "client-1", p.ClientID)
		if p.Topic == "fw" {
			require.Equal(t, 5, p.Progress)
		}
	}

	n, err := s.DeleteClients(func(cl storage.Client) bool { return cl.ClientID == "client-2" })
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.Client("e5f6a7b8")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.DeleteClient("a1b2c3d4"))
	clients, err = s.Clients()
	require.NoError(t, err)
	require.Empty(t, clients)
}
