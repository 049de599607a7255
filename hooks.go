// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, thedevop, dgduncan

package fixeddata

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mochi-mqtt/fixeddata/selftest"
	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/system"
)

const (
	SetOptions byte = iota
	OnSysInfoTick
	OnStarted
	OnStopped
	OnRegister
	OnVerify
	OnHi
	OnBye
	OnProgress
	OnTransferReceived
	OnTransferSent
	OnSelfTest
)

var (
	// ErrInvalidConfigType indicates a different Type of config value was expected to what was received.
	ErrInvalidConfigType = errors.New("invalid config type provided")
)

// Hook provides an interface of handlers for different events which occur
// during the lifecycle of the server.
type Hook interface {
	ID() string
	Provides(b byte) bool
	Init(config any) error
	Stop() error
	SetOpts(l *slog.Logger, o *HookOptions)
	OnStarted()
	OnStopped()
	OnSysInfoTick(*system.Info)
	OnRegister(username, clientID string)
	OnVerify(username, clientID string)
	OnHi(username string, wantsOffline bool) bool
	OnBye(username string, payload []byte)
	OnProgress(clientID string, progress []storage.Progress)
	OnTransferReceived(clientID, path string, payload []byte)
	OnTransferSent(clientID, path string, err error)
	OnSelfTest(clientID string, passed bool, reports []selftest.Report)
}

// HookOptions contains values which are inherited from the server on initialisation.
type HookOptions struct {
	MaxPacketSize int
	MaxRetries    int
}

// Hooks is a slice of Hook interfaces to be called in sequence.
type Hooks struct {
	Log        *slog.Logger   // a logger for the hook (from the server)
	internal   atomic.Value   // a slice of []Hook
	wg         sync.WaitGroup // a waitgroup for syncing hook shutdown
	qty        int64          // the number of hooks in use
	sync.Mutex                // a mutex for locking when adding hooks
}

// Len returns the number of hooks added.
func (h *Hooks) Len() int64 {
	return atomic.LoadInt64(&h.qty)
}

// Provides returns true if any one hook provides any of the requested hook methods.
func (h *Hooks) Provides(b ...byte) bool {
	for _, hook := range h.GetAll() {
		for _, hb := range b {
			if hook.Provides(hb) {
				return true
			}
		}
	}

	return false
}

// Add adds and initializes a new hook.
func (h *Hooks) Add(hook Hook, config any) error {
	h.Lock()
	defer h.Unlock()

	err := hook.Init(config)
	if err != nil {
		return fmt.Errorf("failed initialising %s hook: %w", hook.ID(), err)
	}

	i, ok := h.internal.Load().([]Hook)
	if !ok {
		i = []Hook{}
	}

	i = append(i, hook)
	h.internal.Store(i)
	atomic.AddInt64(&h.qty, 1)
	h.wg.Add(1)

	return nil
}

// GetAll returns a slice of all the hooks.
func (h *Hooks) GetAll() []Hook {
	i, ok := h.internal.Load().([]Hook)
	if !ok {
		return []Hook{}
	}

	return i
}

// Stop indicates all attached hooks to gracefully end.
func (h *Hooks) Stop() {
	go func() {
		for _, hook := range h.GetAll() {
			h.Log.Info("stopping hook", "hook", hook.ID())
			if err := hook.Stop(); err != nil {
				h.Log.Debug("problem stopping hook", "error", err, "hook", hook.ID())
			}

			h.wg.Done()
		}
	}()

	h.wg.Wait()
}

// OnSysInfoTick is called when the server statistics are refreshed.
func (h *Hooks) OnSysInfoTick(sys *system.Info) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnSysInfoTick) {
			hook.OnSysInfoTick(sys)
		}
	}
}

// OnStarted is called when the server has successfully started.
func (h *Hooks) OnStarted() {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnStarted) {
			hook.OnStarted()
		}
	}
}

// OnStopped is called when the server has successfully stopped.
func (h *Hooks) OnStopped() {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnStopped) {
			hook.OnStopped()
		}
	}
}

// OnRegister is called when a device has been issued new credentials.
func (h *Hooks) OnRegister(username, clientID string) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnRegister) {
			hook.OnRegister(username, clientID)
		}
	}
}

// OnVerify is called when a device has confirmed receipt of its credentials.
func (h *Hooks) OnVerify(username, clientID string) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnVerify) {
			hook.OnVerify(username, clientID)
		}
	}
}

// OnHi is called when a device asks whether it may go offline. A device may go
// offline only if every hook providing OnHi agrees; with no such hooks it may.
func (h *Hooks) OnHi(username string, wantsOffline bool) bool {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnHi) {
			if ok := hook.OnHi(username, wantsOffline); !ok {
				return false
			}
		}
	}

	return true
}

// OnBye is called when a device announces it is going offline.
func (h *Hooks) OnBye(username string, payload []byte) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnBye) {
			hook.OnBye(username, payload)
		}
	}
}

// OnProgress is called with a snapshot of a client's transfer progress
// whenever a transfer starts, progresses, or completes.
func (h *Hooks) OnProgress(clientID string, progress []storage.Progress) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnProgress) {
			hook.OnProgress(clientID, progress)
		}
	}
}

// OnTransferReceived is called when an inbound fixed data payload has been reassembled.
func (h *Hooks) OnTransferReceived(clientID, path string, payload []byte) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnTransferReceived) {
			hook.OnTransferReceived(clientID, path, payload)
		}
	}
}

// OnTransferSent is called when an outbound transfer ends, with a nil error
// if every packet was acked.
func (h *Hooks) OnTransferSent(clientID, path string, err error) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnTransferSent) {
			hook.OnTransferSent(clientID, path, err)
		}
	}
}

// OnSelfTest is called when a self-test suite run against a device finishes.
func (h *Hooks) OnSelfTest(clientID string, passed bool, reports []selftest.Report) {
	for _, hook := range h.GetAll() {
		if hook.Provides(OnSelfTest) {
			hook.OnSelfTest(clientID, passed, reports)
		}
	}
}

// HookBase provides a set of default methods for each hook. It should be embedded in
// all hooks.
type HookBase struct {
	Hook
	Log  *slog.Logger
	Opts *HookOptions
}

// ID returns the ID of the hook.
func (h *HookBase) ID() string {
	return "base"
}

// Provides indicates which methods a hook provides. The default is none - this method
// should be overridden by the embedding hook.
func (h *HookBase) Provides(b byte) bool {
	return false
}

// Init performs any pre-start initializations for the hook, such as connecting to databases
// or opening files.
func (h *HookBase) Init(config any) error {
	return nil
}

// SetOpts is called by the server to propagate internal values and generally should
// not be called manually.
func (h *HookBase) SetOpts(l *slog.Logger, opts *HookOptions) {
	h.Log = l
	h.Opts = opts
}

// Stop is called to gracefully shut down the hook.
func (h *HookBase) Stop() error {
	return nil
}

// OnStarted is called when the server starts.
func (h *HookBase) OnStarted() {}

// OnStopped is called when the server stops.
func (h *HookBase) OnStopped() {}

// OnSysInfoTick is called when the server refreshes its statistics.
func (h *HookBase) OnSysInfoTick(*system.Info) {}

// OnRegister is called when a device registers.
func (h *HookBase) OnRegister(username, clientID string) {}

// OnVerify is called when a device verifies its credentials.
func (h *HookBase) OnVerify(username, clientID string) {}

// OnHi is called when a device asks to go offline.
func (h *HookBase) OnHi(username string, wantsOffline bool) bool {
	return true
}

// OnBye is called when a device says goodbye.
func (h *HookBase) OnBye(username string, payload []byte) {}

// OnProgress is called when transfer progress changes.
func (h *HookBase) OnProgress(clientID string, progress []storage.Progress) {}

// OnTransferReceived is called when an inbound transfer completes.
func (h *HookBase) OnTransferReceived(clientID, path string, payload []byte) {}

// OnTransferSent is called when an outbound transfer ends.
func (h *HookBase) OnTransferSent(clientID, path string, err error) {}

// OnSelfTest is called when a self-test suite finishes.
func (h *HookBase) OnSelfTest(clientID string, passed bool, reports []selftest.Report) {}
