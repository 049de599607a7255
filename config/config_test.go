// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mochi-mqtt/fixeddata/hooks/auth"
	"github.com/mochi-mqtt/fixeddata/hooks/debug"
	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/storage/bolt"
	"github.com/mochi-mqtt/fixeddata/transport/inline"
	"github.com/mochi-mqtt/fixeddata/transport/paho"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

var (
	yamlBytes = []byte(`
server:
  max_packet_size: 512
  max_retries: 3
  client_id_prefix: "dev-"
broker:
  url: "tcp://localhost:1883"
storage:
  backend: bolt
  bolt:
    path: "fixeddata.db"
    bucket: "fd"
  etcd:
    endpoints: ["127.0.0.1:2379"]
    dial_timeout: 2s
logging:
  level: DEBUG
  output: JSON
hooks:
  auth:
    hi:
      - username: "ab*"
        allow: true
  debug:
    show_payloads: true
`)

	jsonBytes = []byte(`{
   "server": {
      "max_packet_size": 512,
      "max_retries": 3,
      "client_id_prefix": "dev-"
   },
   "broker": {
      "url": "tcp://localhost:1883"
   },
   "storage": {
      "backend": "bolt",
      "bolt": {
         "path": "fixeddata.db",
         "bucket": "fd"
      }
   },
   "logging": {
      "level": "DEBUG",
      "output": "JSON"
   },
   "hooks": {
      "auth": {
         "hi": [{"username": "ab*", "allow": true}]
      },
      "debug": {
         "show_payloads": true
      }
   }
}
`)

	tomlBytes = []byte(`
[server]
max_packet_size = 512
max_retries = 3
client_id_prefix = "dev-"

[broker]
url = "tcp://localhost:1883"

[storage]
backend = "bolt"

[storage.bolt]
path = "fixeddata.db"
bucket = "fd"

[logging]
level = "DEBUG"
output = "JSON"

[hooks.debug]
show_payloads = true

[[hooks.auth.hi]]
username = "ab*"
allow = true
`)
)

func requireParsed(t *testing.T, c *Config) {
	t.Helper()
	require.Equal(t, 512, c.Server.MaxPacketSize)
	require.Equal(t, 3, c.Server.MaxRetries)
	require.Equal(t, "dev-", c.Server.ClientIDPrefix)
	require.Equal(t, "tcp://localhost:1883", c.Broker.URL)
	require.Equal(t, defaultBrokerAddress, c.Broker.Address) // kept from defaults
	require.Equal(t, defaultStatsAddress, c.Stats.Address)
	require.Equal(t, BackendBolt, c.Storage.Backend)
	require.Equal(t, &bolt.Options{Path: "fixeddata.db", Bucket: "fd"}, c.Storage.Bolt)
	require.Equal(t, "DEBUG", c.Logging.Level)
	require.Equal(t, LoggingOutputJSON, c.Logging.Output)
	require.Equal(t, auth.HiRules{{Username: "ab*", Allow: true}}, c.Hooks.Auth.Hi)
	require.Equal(t, &debug.Options{ShowPayloads: true}, c.Hooks.Debug)
}

func TestFromBytesYAML(t *testing.T) {
	c, err := FromBytes(yamlBytes, FormatYAML)
	require.NoError(t, err)
	requireParsed(t, c)
	require.Equal(t, []string{"127.0.0.1:2379"}, c.Storage.Etcd.Endpoints)
	require.Equal(t, 2*time.Second, c.Storage.Etcd.DialTimeout)
}

func TestFromBytesJSON(t *testing.T) {
	c, err := FromBytes(jsonBytes, FormatJSON)
	require.NoError(t, err)
	requireParsed(t, c)
}

func TestFromBytesTOML(t *testing.T) {
	c, err := FromBytes(tomlBytes, FormatTOML)
	require.NoError(t, err)
	requireParsed(t, c)
}

func TestFromBytesDetect(t *testing.T) {
	c, err := FromBytes(jsonBytes, "")
	require.NoError(t, err)
	requireParsed(t, c)

	c, err = FromBytes(yamlBytes, "")
	require.NoError(t, err)
	requireParsed(t, c)
}

func TestFromBytesEmpty(t *testing.T) {
	c, err := FromBytes(nil, FormatYAML)
	require.NoError(t, err)
	require.Equal(t, Default(), c)
}

func TestFromBytesErrors(t *testing.T) {
	_, err := FromBytes([]byte("a"), "ini")
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = FromBytes([]byte(`{"server":`), FormatJSON)
	require.Error(t, err)

	_, err = FromBytes([]byte("server: [1, 2"), FormatYAML)
	require.Error(t, err)

	_, err = FromBytes([]byte("[server"), FormatTOML)
	require.Error(t, err)
}

func TestFormatOf(t *testing.T) {
	tt := map[string]string{
		"a.yml":       FormatYAML,
		"a.YAML":      FormatYAML,
		"conf/a.json": FormatJSON,
		"a.toml":      FormatTOML,
	}

	for path, want := range tt {
		got, err := FormatOf(path)
		require.NoError(t, err)
		require.Equal(t, want, got, path)
	}

	_, err := FormatOf("a.ini")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fixeddata.toml")
	require.NoError(t, os.WriteFile(path, tomlBytes, 0o600))

	c, err := FromFile(path)
	require.NoError(t, err)
	requireParsed(t, c)

	_, err = FromFile(filepath.Join(dir, "missing.yml"))
	require.Error(t, err)

	_, err = FromFile(filepath.Join(dir, "fixeddata.ini"))
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestToLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	c := Default()
	c.Logging = Logging{Output: "json", Level: "WARN"}

	log := c.ToLogger(buf)
	log.Info("hidden")
	log.Warn("shown", "k", "v")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	c.Logging = Logging{Output: "TEXT", Level: "nonsense"}
	log = c.ToLogger(buf)
	log.Debug("hidden")
	log.Info("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "msg=shown")
}

func TestToStoreMemory(t *testing.T) {
	s, err := Default().ToStore(logger)
	require.NoError(t, err)
	require.IsType(t, new(storage.Memory), s.Backend())
	require.NoError(t, s.Close())
}

func TestToStoreBolt(t *testing.T) {
	c := Default()
	c.Storage.Backend = BackendBolt
	c.Storage.Bolt = &bolt.Options{Path: filepath.Join(t.TempDir(), "fd.db")}

	s, err := c.ToStore(logger)
	require.NoError(t, err)
	require.Equal(t, "bolt-db", s.Backend().ID())
	require.NoError(t, s.InsertClient(storage.Client{Username: "abcd1234"}))
	require.NoError(t, s.Close())
}

func TestToStoreUnknown(t *testing.T) {
	c := Default()
	c.Storage.Backend = "mongo"
	_, err := c.ToStore(logger)
	require.ErrorIs(t, err, ErrUnknownBackend)
}

func TestToTransportEmbedded(t *testing.T) {
	c := Default()
	tr, err := c.ToTransport(logger)
	require.NoError(t, err)
	require.IsType(t, new(inline.Transport), tr)
	require.Len(t, c.Server.Password, serverPasswordLen*2)
}

func TestToTransportPaho(t *testing.T) {
	c := Default()
	c.Broker.URL = "tcp://localhost:1883"
	c.Server.Password = "secret"

	tr, err := c.ToTransport(logger)
	require.NoError(t, err)
	require.IsType(t, new(paho.Transport), tr)
	require.Equal(t, "secret", c.Server.Password)
}

func TestToTransportInvalid(t *testing.T) {
	c := Default()
	c.Broker.URL = "localhost:1883"
	_, err := c.ToTransport(logger)
	require.ErrorIs(t, err, ErrInvalidBroker)

	c.Broker.URL = "http://localhost"
	_, err = c.ToTransport(logger)
	require.ErrorIs(t, err, ErrInvalidBroker)
}

func TestToHooks(t *testing.T) {
	hc := HookConfigs{
		Auth: &HookAuthConfig{
			Hi: auth.HiRules{{Username: "*", Allow: true}},
		},
		Debug: &debug.Options{},
	}

	hooks := hc.ToHooks()
	require.Len(t, hooks, 2)
	require.IsType(t, new(auth.Hook), hooks[0].Hook)
	require.Equal(t, hc.Auth.Hi, hooks[0].Config.(*auth.Options).Ledger.Hi)
	require.IsType(t, new(debug.Hook), hooks[1].Hook)
	require.Same(t, hc.Debug, hooks[1].Config)

	require.Empty(t, HookConfigs{}.ToHooks())
}

func TestToOptions(t *testing.T) {
	c, err := FromBytes(yamlBytes, FormatYAML)
	require.NoError(t, err)

	o := c.ToOptions()
	require.Equal(t, 512, o.MaxPacketSize)
	require.Len(t, o.Hooks, 2)
	require.Empty(t, c.Server.Hooks)
}
