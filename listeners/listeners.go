// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package listeners provides the http surfaces of the server: json stats,
// transfer progress, prometheus metrics and a live progress feed.
package listeners

import (
	"crypto/tls"
	"log/slog"
	"sync"
)

// Config contains configuration values for a listener.
type Config struct {
	ID        string      // the id of the listener
	Address   string      // the network address to bind to
	TLSConfig *tls.Config // tls configuration, if any
}

// Listener is an interface for network listeners.
type Listener interface {
	Init(*slog.Logger) error // initialise the listener
	Serve()                  // start serving, blocking until closed
	ID() string              // return the id of the listener
	Address() string         // the address of the listener
	Protocol() string        // the protocol in use by the listener
	Close()                  // stop the listener
}

// Listeners contains the network listeners for the server.
type Listeners struct {
	wg       sync.WaitGroup
	internal map[string]Listener
	sync.RWMutex
}

// New returns a new instance of Listeners.
func New() *Listeners {
	return &Listeners{
		internal: map[string]Listener{},
	}
}

// Add adds a new listener to the listeners map, keyed on id.
func (l *Listeners) Add(val Listener) {
	l.Lock()
	defer l.Unlock()
	l.internal[val.ID()] = val
}

// Get returns the value of a listener if it exists.
func (l *Listeners) Get(id string) (Listener, bool) {
	l.RLock()
	defer l.RUnlock()
	val, ok := l.internal[id]
	return val, ok
}

// Len returns the length of the listeners map.
func (l *Listeners) Len() int {
	l.RLock()
	defer l.RUnlock()
	return len(l.internal)
}

// Delete removes a listener from the internal map.
func (l *Listeners) Delete(id string) {
	l.Lock()
	defer l.Unlock()
	delete(l.internal, id)
}

// Serve starts a listener serving from the internal map.
func (l *Listeners) Serve(id string) {
	l.RLock()
	defer l.RUnlock()
	listener, ok := l.internal[id]
	if !ok {
		return
	}

	l.wg.Add(1)
	go func(listener Listener) {
		defer l.wg.Done()
		listener.Serve()
	}(listener)
}

// ServeAll starts all listeners serving from the internal map.
func (l *Listeners) ServeAll() {
	l.RLock()
	i := 0
	ids := make([]string, len(l.internal))
	for id := range l.internal {
		ids[i] = id
		i++
	}
	l.RUnlock()

	for _, id := range ids {
		l.Serve(id)
	}
}

// Close stops a listener from the internal map.
func (l *Listeners) Close(id string) {
	l.RLock()
	defer l.RUnlock()
	if listener, ok := l.internal[id]; ok {
		listener.Close()
	}
}

// CloseAll iterates and closes all registered listeners, waiting for
// each to stop serving.
func (l *Listeners) CloseAll() {
	l.RLock()
	i := 0
	ids := make([]string, len(l.internal))
	for id := range l.internal {
		ids[i] = id
		i++
	}
	l.RUnlock()

	for _, id := range ids {
		l.Close(id)
	}
	l.wg.Wait()
}
