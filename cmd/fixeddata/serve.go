// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mochi-mqtt/fixeddata"
	"github.com/mochi-mqtt/fixeddata/config"
	"github.com/mochi-mqtt/fixeddata/hooks/feed"
	"github.com/mochi-mqtt/fixeddata/listeners"
)

const connectTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the fixeddata server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), c)
		},
	}

	fl := cmd.Flags()
	fl.StringP("config", "c", "", "config file (.yml, .yaml, .json or .toml)")
	fl.String("broker", "", `broker url, or "embedded" to run a broker in process`)
	fl.String("address", "", "listen address of the embedded broker")
	fl.String("stats", "", "listen address of the http stats listener, empty to disable")
	fl.String("storage", "", "storage backend: memory, bolt, badger, pebble, redis or etcd")
	fl.String("log-level", "", "logging level: DEBUG, INFO, WARN or ERROR")
	fl.Int("max-packet-size", 0, "payload bytes per fixed data packet")
	fl.Int("max-retries", 0, "retry budget of each transfer")
	return cmd
}

// loadConfig reads the config file, if any, and applies any flags which were set.
func loadConfig(fl *pflag.FlagSet) (*config.Config, error) {
	c := config.Default()
	if path, _ := fl.GetString("config"); path != "" {
		var err error
		c, err = config.FromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	strs := map[string]*string{
		"broker":    &c.Broker.URL,
		"address":   &c.Broker.Address,
		"stats":     &c.Stats.Address,
		"storage":   &c.Storage.Backend,
		"log-level": &c.Logging.Level,
	}
	for name, v := range strs {
		if fl.Changed(name) {
			*v, _ = fl.GetString(name)
		}
	}

	ints := map[string]*int{
		"max-packet-size": &c.Server.MaxPacketSize,
		"max-retries":     &c.Server.MaxRetries,
	}
	for name, v := range ints {
		if fl.Changed(name) {
			*v, _ = fl.GetInt(name)
		}
	}

	return c, nil
}

// serve runs a server built from c until ctx is done or a signal is caught.
func serve(ctx context.Context, c *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log := c.ToLogger(os.Stdout)

	store, err := c.ToStore(log)
	if err != nil {
		return err
	}

	tr, err := c.ToTransport(log)
	if err != nil {
		_ = store.Close()
		return err
	}

	opts := c.ToOptions()
	opts.Transport = tr
	opts.Store = store
	opts.Logger = log
	server := fixeddata.New(opts)

	lns := listeners.New()
	if c.Stats.Address != "" {
		registry := prometheus.NewRegistry()
		server.Info.RegisterPrometheusMetrics(registry)

		stats := listeners.NewHTTPStats(listeners.Config{
			ID:      "stats",
			Address: c.Stats.Address,
		}, server.Info, server, registry)
		if err := stats.Init(log); err != nil {
			_ = server.Close()
			return err
		}
		lns.Add(stats)

		if err := server.AddHook(new(feed.Hook), &feed.Options{Target: stats}); err != nil {
			_ = server.Close()
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	err = server.Serve(connectCtx)
	cancel()
	if err != nil {
		_ = server.Close()
		return err
	}

	lns.ServeAll()

	<-ctx.Done()
	log.Warn("caught signal, stopping...")
	lns.CloseAll()
	return server.Close()
}
