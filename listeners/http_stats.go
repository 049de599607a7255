// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package listeners

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/system"
)

const feedBuffer = 64 // progress updates held per feed before they are dropped

// ProgressSource provides a snapshot of transfer progress for all clients.
type ProgressSource interface {
	AllProgress() map[string][]storage.Progress
}

// ProgressUpdate is a message sent on the live progress feed.
type ProgressUpdate struct {
	ClientID string             `json:"clientId"`
	Progress []storage.Progress `json:"progress"`
}

// feed is a single websocket subscriber to progress updates.
type feed struct {
	conn *websocket.Conn
	out  chan []byte
}

// HTTPStats is a listener presenting the server stats, transfer progress and
// prometheus metrics over http, with a websocket feed of progress updates.
type HTTPStats struct {
	sync.RWMutex
	config   Config               // configuration values for the listener
	listen   *http.Server         // the http server
	log      *slog.Logger         // server logger
	sysInfo  *system.Info         // pointers to the server data
	progress ProgressSource       // transfer progress of all clients
	registry *prometheus.Registry // metrics served on /metrics
	upgrader *websocket.Upgrader  // upgrades /progress/ws requests
	feeds    map[*feed]struct{}   // connected progress feeds
	end      uint32               // ensure the close methods are only called once
}

// NewHTTPStats initialises and returns a new HTTP stats listener. The progress
// source and registry may be nil, in which case their endpoints are not served.
func NewHTTPStats(config Config, sysInfo *system.Info, progress ProgressSource, registry *prometheus.Registry) *HTTPStats {
	return &HTTPStats{
		config:   config,
		log:      slog.Default(),
		sysInfo:  sysInfo,
		progress: progress,
		registry: registry,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		feeds: map[*feed]struct{}{},
	}
}

// ID returns the id of the listener.
func (l *HTTPStats) ID() string {
	return l.config.ID
}

// Address returns the address of the listener.
func (l *HTTPStats) Address() string {
	return l.config.Address
}

// Protocol returns the protocol of the listener.
func (l *HTTPStats) Protocol() string {
	if l.listen != nil && l.listen.TLSConfig != nil {
		return "https"
	}

	return "http"
}

// Init initializes the listener.
func (l *HTTPStats) Init(log *slog.Logger) error {
	if log != nil {
		l.log = log
	}
	l.listen = &http.Server{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		Addr:         l.config.Address,
		Handler:      l.Handler(),
	}

	if l.config.TLSConfig != nil {
		l.listen.TLSConfig = l.config.TLSConfig
	}

	return nil
}

// Handler returns the http handler serving the listener's endpoints.
func (l *HTTPStats) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.jsonHandler)
	mux.HandleFunc("/healthcheck", l.healthHandler)
	if l.progress != nil {
		mux.HandleFunc("/progress", l.progressHandler)
		mux.HandleFunc("/progress/ws", l.feedHandler)
	}

	if l.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(l.registry, promhttp.HandlerOpts{}))
	}

	return mux
}

// Serve starts listening for new connections and serving responses.
func (l *HTTPStats) Serve() {
	var err error
	if l.listen.TLSConfig != nil {
		err = l.listen.ListenAndServeTLS("", "")
	} else {
		err = l.listen.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		l.log.Error("http stats listener failed", "error", err, "listener", l.config.ID)
	}
}

// Close stops the http server and disconnects any progress feeds.
func (l *HTTPStats) Close() {
	if !atomic.CompareAndSwapUint32(&l.end, 0, 1) {
		return
	}

	if l.listen != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.listen.Shutdown(ctx)
	}

	l.RLock()
	defer l.RUnlock()
	for f := range l.feeds {
		_ = f.conn.Close()
	}
}

// Broadcast sends a client's progress to every connected feed. Feeds which
// have fallen behind miss the update.
func (l *HTTPStats) Broadcast(clientID string, progress []storage.Progress) {
	msg, err := json.Marshal(ProgressUpdate{ClientID: clientID, Progress: progress})
	if err != nil {
		return
	}

	l.RLock()
	defer l.RUnlock()
	for f := range l.feeds {
		select {
		case f.out <- msg:
		default:
			l.log.Debug("progress feed full, dropping update", "client", clientID, "remote", f.conn.RemoteAddr())
		}
	}
}

// Feeds returns the number of connected progress feeds.
func (l *HTTPStats) Feeds() int {
	l.RLock()
	defer l.RUnlock()
	return len(l.feeds)
}

// jsonHandler is an HTTP handler which outputs the server stats as JSON.
func (l *HTTPStats) jsonHandler(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		http.NotFound(w, req)
		return
	}

	writeJSON(w, l.sysInfo.Clone())
}

// healthHandler reports that the listener is up.
func (l *HTTPStats) healthHandler(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	_, _ = w.Write([]byte("ok"))
}

// progressHandler outputs the progress of all clients, or of a single client
// selected with the client query parameter.
func (l *HTTPStats) progressHandler(w http.ResponseWriter, req *http.Request) {
	all := l.progress.AllProgress()
	if id := req.URL.Query().Get("client"); id != "" {
		records, ok := all[id]
		if !ok {
			records = []storage.Progress{}
		}
		writeJSON(w, records)
		return
	}

	writeJSON(w, all)
}

// feedHandler upgrades a request to a websocket and streams progress updates,
// starting with a snapshot of every known client.
func (l *HTTPStats) feedHandler(w http.ResponseWriter, req *http.Request) {
	c, err := l.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	f := &feed{
		conn: c,
		out:  make(chan []byte, feedBuffer),
	}

	l.Lock()
	l.feeds[f] = struct{}{}
	l.Unlock()

	defer func() {
		l.Lock()
		delete(l.feeds, f)
		l.Unlock()
		_ = c.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.NextReader(); err != nil {
				return
			}
		}
	}()

	all := l.progress.AllProgress()
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := c.WriteJSON(ProgressUpdate{ClientID: id, Progress: all[id]}); err != nil {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case msg := <-f.out:
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// writeJSON writes v as indented json.
func writeJSON(w http.ResponseWriter, v any) {
	out, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}
