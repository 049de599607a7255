// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/mochi-mqtt/fixeddata"
	"github.com/mochi-mqtt/fixeddata/config"
)

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	require.Equal(t, "fixeddata version "+fixeddata.Version+"\n", out.String())
}

func TestRootCmdSubcommands(t *testing.T) {
	root := newRootCmd()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.Contains(t, names, "serve")
	require.Contains(t, names, "version")
}

func parseServe(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fl := newServeCmd().Flags()
	require.NoError(t, fl.Parse(args))
	return fl
}

func TestLoadConfigDefaults(t *testing.T) {
	fl := parseServe(t)
	c, err := loadConfig(fl)
	require.NoError(t, err)
	require.Equal(t, config.Default(), c)
}

func TestLoadConfigFlags(t *testing.T) {
	fl := parseServe(t,
		"--broker", "tcp://broker:1883",
		"--stats", "",
		"--storage", "bolt",
		"--log-level", "DEBUG",
		"--max-packet-size", "256",
		"--max-retries", "2",
	)

	c, err := loadConfig(fl)
	require.NoError(t, err)
	require.Equal(t, "tcp://broker:1883", c.Broker.URL)
	require.Equal(t, "", c.Stats.Address)
	require.Equal(t, "bolt", c.Storage.Backend)
	require.Equal(t, "DEBUG", c.Logging.Level)
	require.Equal(t, 256, c.Server.MaxPacketSize)
	require.Equal(t, 2, c.Server.MaxRetries)
}

func TestLoadConfigFileWithOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixeddata.yml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  max_retries: 7\nbroker:\n  address: \":1999\"\n"), 0o600))

	fl := parseServe(t, "-c", path, "--address", ":2000")
	c, err := loadConfig(fl)
	require.NoError(t, err)
	require.Equal(t, 7, c.Server.MaxRetries)
	require.Equal(t, ":2000", c.Broker.Address)
}

func TestLoadConfigMissingFile(t *testing.T) {
	fl := parseServe(t, "-c", filepath.Join(t.TempDir(), "missing.yml"))
	_, err := loadConfig(fl)
	require.Error(t, err)
}

func TestServeEmbedded(t *testing.T) {
	c := config.Default()
	c.Broker.Address = ""
	c.Stats.Address = "127.0.0.1:0"
	c.Logging.Level = "ERROR"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, c)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServeUnknownBackend(t *testing.T) {
	c := config.Default()
	c.Storage.Backend = "mongo"
	require.ErrorIs(t, serve(context.Background(), c), config.ErrUnknownBackend)
}
