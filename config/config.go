// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package config loads server configuration from yaml, json or toml and
// builds the storage backend, broker transport and hooks it describes.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mochi-mqtt/fixeddata"
	"github.com/mochi-mqtt/fixeddata/credentials"
	"github.com/mochi-mqtt/fixeddata/hooks/auth"
	"github.com/mochi-mqtt/fixeddata/hooks/debug"
	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/storage/badger"
	"github.com/mochi-mqtt/fixeddata/storage/bolt"
	"github.com/mochi-mqtt/fixeddata/storage/etcd"
	"github.com/mochi-mqtt/fixeddata/storage/pebble"
	"github.com/mochi-mqtt/fixeddata/storage/redis"
	"github.com/mochi-mqtt/fixeddata/transport"
	"github.com/mochi-mqtt/fixeddata/transport/inline"
	"github.com/mochi-mqtt/fixeddata/transport/paho"
)

const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatTOML = "toml"

	LoggingOutputJSON = "JSON"
	LoggingOutputText = "TEXT"

	BrokerEmbedded = "embedded" // run an embedded broker instead of dialing one

	BackendMemory = "memory"
	BackendBolt   = "bolt"
	BackendBadger = "badger"
	BackendPebble = "pebble"
	BackendRedis  = "redis"
	BackendEtcd   = "etcd"

	defaultBrokerAddress = ":1883"
	defaultStatsAddress  = ":8080"
	serverPasswordLen    = 16
)

var (
	ErrUnknownFormat  = errors.New("unknown config format")
	ErrUnknownBackend = errors.New("unknown storage backend")
	ErrInvalidBroker  = errors.New("invalid broker url")
)

// Config defines the structure of configuration data to be parsed from a config source.
type Config struct {
	Server  fixeddata.Options `yaml:"server" json:"server" toml:"server"`
	Broker  Broker            `yaml:"broker" json:"broker" toml:"broker"`
	Storage Storage           `yaml:"storage" json:"storage" toml:"storage"`
	Stats   Stats             `yaml:"stats" json:"stats" toml:"stats"`
	Logging Logging           `yaml:"logging" json:"logging" toml:"logging"`
	Hooks   HookConfigs       `yaml:"hooks" json:"hooks" toml:"hooks"`
}

// Broker selects the mqtt broker the server talks through.
type Broker struct {
	URL      string `yaml:"url" json:"url" toml:"url"`                   // embedded, or a broker url such as tcp://host:1883
	Address  string `yaml:"address" json:"address" toml:"address"`       // listen address of the embedded broker
	ClientID string `yaml:"client_id" json:"client_id" toml:"client_id"` // client id used when dialing a broker
}

// Storage selects and configures the storage backend.
type Storage struct {
	Backend string          `yaml:"backend" json:"backend" toml:"backend"`
	Bolt    *bolt.Options   `yaml:"bolt" json:"bolt" toml:"bolt"`
	Badger  *badger.Options `yaml:"badger" json:"badger" toml:"badger"`
	Pebble  *pebble.Options `yaml:"pebble" json:"pebble" toml:"pebble"`
	Redis   *redis.Options  `yaml:"redis" json:"redis" toml:"redis"`
	Etcd    *etcd.Options   `yaml:"etcd" json:"etcd" toml:"etcd"`
}

// Stats configures the http stats listener. An empty address disables it.
type Stats struct {
	Address string `yaml:"address" json:"address" toml:"address"`
}

// Logging configures the server logger.
type Logging struct {
	Output string `yaml:"output" json:"output" toml:"output"` // JSON or TEXT
	Level  string `yaml:"level" json:"level" toml:"level"`
}

// HookConfigs contains configurations to enable individual hooks.
type HookConfigs struct {
	Auth  *HookAuthConfig `yaml:"auth" json:"auth" toml:"auth"`
	Debug *debug.Options  `yaml:"debug" json:"debug" toml:"debug"`
}

// HookAuthConfig contains configurations for the auth hook.
type HookAuthConfig struct {
	Users auth.Users   `yaml:"users" json:"users" toml:"users"`
	Hi    auth.HiRules `yaml:"hi" json:"hi" toml:"hi"`
}

// Default returns the configuration used for any value a source leaves unset.
func Default() *Config {
	return &Config{
		Broker: Broker{
			URL:     BrokerEmbedded,
			Address: defaultBrokerAddress,
		},
		Storage: Storage{
			Backend: BackendMemory,
		},
		Stats: Stats{
			Address: defaultStatsAddress,
		},
		Logging: Logging{
			Output: LoggingOutputText,
			Level:  slog.LevelInfo.String(),
		},
	}
}

// FormatOf returns the config format implied by a file name's extension.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
}

// FromFile reads a config file, choosing the format by its extension.
func FromFile(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return FromBytes(b, format)
}

// FromBytes unmarshals config data over the defaults. An empty format is
// detected as json if the data begins with a brace, else yaml.
func FromBytes(b []byte, format string) (*Config, error) {
	c := Default()
	if len(b) == 0 {
		return c, nil
	}

	if format == "" {
		format = FormatYAML
		if b[0] == '{' {
			format = FormatJSON
		}
	}

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(b, c)
	case FormatJSON:
		err = json.Unmarshal(b, c)
	case FormatTOML:
		err = toml.Unmarshal(b, c)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}

	if err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}

	return c, nil
}

// ToLogger builds the logger described by the logging config, writing to w.
// An unrecognised level falls back to info.
func (c *Config) ToLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Logging.Output, LoggingOutputJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// ToStore opens the configured storage backend.
func (c *Config) ToStore(log *slog.Logger) (*storage.Store, error) {
	var backend storage.Backend
	var opts any

	switch strings.ToLower(c.Storage.Backend) {
	case "", BackendMemory:
		backend = new(storage.Memory)
	case BackendBolt:
		backend, opts = new(bolt.Backend), optional(c.Storage.Bolt)
	case BackendBadger:
		backend, opts = new(badger.Backend), optional(c.Storage.Badger)
	case BackendPebble:
		backend, opts = new(pebble.Backend), optional(c.Storage.Pebble)
	case BackendRedis:
		backend, opts = new(redis.Backend), optional(c.Storage.Redis)
	case BackendEtcd:
		backend, opts = new(etcd.Backend), optional(c.Storage.Etcd)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, c.Storage.Backend)
	}

	return storage.New(backend, opts, log)
}

// optional returns p as an untyped nil if it is nil, so backends apply their defaults.
func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return p
}

// ToTransport builds the broker transport. The server's broker credentials
// are shared with the transport, so a random password is set first if the
// config has none.
func (c *Config) ToTransport(log *slog.Logger) (transport.Transport, error) {
	if c.Server.Password == "" {
		p, err := credentials.RandomSecret(serverPasswordLen)
		if err != nil {
			return nil, err
		}
		c.Server.Password = p
	}

	url := c.Broker.URL
	if url == "" || url == BrokerEmbedded {
		return inline.New(inline.Options{
			Address: c.Broker.Address,
		}, log), nil
	}

	scheme, _, ok := strings.Cut(url, "://")
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBroker, url)
	}

	switch scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %s", ErrInvalidBroker, scheme)
	}

	username := c.Server.Username
	if username == "" {
		username = "server"
	}

	return paho.New(paho.Options{
		Broker:   url,
		ClientID: c.Broker.ClientID,
		Username: username,
		Password: c.Server.Password,
	}, log), nil
}

// ToHooks converts hook configurations into hooks to be added to the server.
func (hc HookConfigs) ToHooks() []fixeddata.HookLoadConfig {
	var hlc []fixeddata.HookLoadConfig

	if hc.Auth != nil {
		hlc = append(hlc, fixeddata.HookLoadConfig{
			Hook: new(auth.Hook),
			Config: &auth.Options{
				Ledger: &auth.Ledger{ // avoid copying sync.Locker
					Users: hc.Auth.Users,
					Hi:    hc.Auth.Hi,
				},
			},
		})
	}

	if hc.Debug != nil {
		hlc = append(hlc, fixeddata.HookLoadConfig{
			Hook:   new(debug.Hook),
			Config: hc.Debug,
		})
	}

	return hlc
}

// ToOptions returns the server options with the configured hooks attached.
// The transport, store and logger are left for the caller to set.
func (c *Config) ToOptions() *fixeddata.Options {
	o := c.Server
	o.Hooks = append(o.Hooks, c.Hooks.ToHooks()...)
	return &o
}
