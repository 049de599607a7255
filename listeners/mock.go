// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package listeners

import (
	"fmt"
	"log/slog"
	"sync"
)

// MockListener is a mock listener for testing listener management.
type MockListener struct {
	sync.RWMutex
	id        string    // the id of the listener
	address   string    // the network address the listener binds to
	Config    *Config   // configuration for the listener
	done      chan bool // indicate the listener is done
	Serving   bool      // indicate the listener is serving
	Listening bool      // indicate the listener is listening
	ErrListen bool      // throw an error on init
	closeOnce sync.Once
}

// NewMockListener returns a new instance of MockListener.
func NewMockListener(id, address string) *MockListener {
	return &MockListener{
		id:      id,
		address: address,
		done:    make(chan bool),
	}
}

// Serve serves the mock listener until it is closed.
func (l *MockListener) Serve() {
	l.Lock()
	l.Serving = true
	l.Unlock()

	<-l.done
}

// Init initializes the listener.
func (l *MockListener) Init(log *slog.Logger) error {
	if l.ErrListen {
		return fmt.Errorf("listen failure")
	}

	l.Lock()
	defer l.Unlock()
	l.Listening = true
	return nil
}

// ID returns the id of the mock listener.
func (l *MockListener) ID() string {
	return l.id
}

// Address returns the address of the listener.
func (l *MockListener) Address() string {
	return l.address
}

// Protocol returns the protocol of the listener.
func (l *MockListener) Protocol() string {
	return "mock"
}

// Close closes the mock listener.
func (l *MockListener) Close() {
	l.Lock()
	defer l.Unlock()
	l.Serving = false
	l.closeOnce.Do(func() {
		close(l.done)
	})
}

// IsServing indicates whether the mock listener is serving.
func (l *MockListener) IsServing() bool {
	l.RLock()
	defer l.RUnlock()
	return l.Serving
}

// IsListening indicates whether the mock listener is listening.
func (l *MockListener) IsListening() bool {
	l.RLock()
	defer l.RUnlock()
	return l.Listening
}
