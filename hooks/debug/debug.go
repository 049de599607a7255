// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package debug

import (
	"log/slog"

	"github.com/mochi-mqtt/fixeddata"
	"github.com/mochi-mqtt/fixeddata/selftest"
	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/system"
)

// Options contains configuration settings for the debug output.
type Options struct {
	ShowPayloads bool `yaml:"show_payloads" json:"show_payloads" toml:"show_payloads"` // include received payloads (default false)
	ShowSysInfo  bool `yaml:"show_sys_info" json:"show_sys_info" toml:"show_sys_info"` // log the stats on every tick (default false)
	ShowReports  bool `yaml:"show_reports" json:"show_reports" toml:"show_reports"`    // log each self-test case report (default false)
}

// Hook is a debugging hook which logs additional low-level information from the server.
type Hook struct {
	fixeddata.HookBase
	config *Options
	Log    *slog.Logger
}

// ID returns the ID of the hook.
func (h *Hook) ID() string {
	return "debug"
}

// Provides indicates that this hook provides all methods.
func (h *Hook) Provides(b byte) bool {
	return true
}

// Init is called when the hook is initialized.
func (h *Hook) Init(config any) error {
	if _, ok := config.(*Options); !ok && config != nil {
		return fixeddata.ErrInvalidConfigType
	}

	h.config, _ = config.(*Options)
	if h.config == nil {
		h.config = new(Options)
	}

	h.Log = slog.Default()

	return nil
}

// SetOpts is called when the hook receives inheritable server parameters.
func (h *Hook) SetOpts(l *slog.Logger, opts *fixeddata.HookOptions) {
	h.Log = l
	h.Log.Debug("", "method", "SetOpts", "max_packet_size", opts.MaxPacketSize, "max_retries", opts.MaxRetries)
}

// Stop is called when the hook is stopped.
func (h *Hook) Stop() error {
	h.Log.Debug("", "method", "Stop")
	return nil
}

// OnStarted is called when the server starts.
func (h *Hook) OnStarted() {
	h.Log.Debug("", "method", "OnStarted")
}

// OnStopped is called when the server stops.
func (h *Hook) OnStopped() {
	h.Log.Debug("", "method", "OnStopped")
}

// OnSysInfoTick is called when the server stats are refreshed.
func (h *Hook) OnSysInfoTick(info *system.Info) {
	if !h.config.ShowSysInfo {
		return
	}

	h.Log.Debug("sys info", "method", "OnSysInfoTick",
		"uptime", info.Uptime,
		"workers", info.Workers,
		"received", info.MessagesReceived,
		"sent", info.MessagesSent,
		"dropped", info.MessagesDropped)
}

// OnRegister is called when a device has been issued credentials.
func (h *Hook) OnRegister(username, clientID string) {
	h.Log.Debug("client registered", "method", "OnRegister", "username", username, "client", clientID)
}

// OnVerify is called when a device confirms its credentials.
func (h *Hook) OnVerify(username, clientID string) {
	h.Log.Debug("client verified", "method", "OnVerify", "username", username, "client", clientID)
}

// OnHi is called when a device announces itself. The debug hook never denies.
func (h *Hook) OnHi(username string, wantsOffline bool) bool {
	h.Log.Debug("client hi", "method", "OnHi", "username", username, "offline", wantsOffline)
	return true
}

// OnBye is called when a device announces it is leaving.
func (h *Hook) OnBye(username string, payload []byte) {
	h.Log.Debug("client bye", "method", "OnBye", "username", username, "payload", string(payload))
}

// OnProgress is called when the progress of a transfer changes.
func (h *Hook) OnProgress(clientID string, progress []storage.Progress) {
	for _, p := range progress {
		h.Log.Debug("transfer progress", "method", "OnProgress", "client", clientID, "topic", p.Topic, "progress", p.Progress, "total", p.Total)
	}
}

// OnTransferReceived is called when a fixed data transfer has been reassembled.
func (h *Hook) OnTransferReceived(clientID, path string, payload []byte) {
	if h.config.ShowPayloads {
		h.Log.Debug("transfer received", "method", "OnTransferReceived", "client", clientID, "path", path, "bytes", len(payload), "payload", string(payload))
		return
	}

	h.Log.Debug("transfer received", "method", "OnTransferReceived", "client", clientID, "path", path, "bytes", len(payload))
}

// OnTransferSent is called when an outbound transfer ends.
func (h *Hook) OnTransferSent(clientID, path string, err error) {
	if err != nil {
		h.Log.Debug("transfer failed", "method", "OnTransferSent", "client", clientID, "path", path, "error", err)
		return
	}

	h.Log.Debug("transfer sent", "method", "OnTransferSent", "client", clientID, "path", path)
}

// OnSelfTest is called when a self-test suite completes.
func (h *Hook) OnSelfTest(clientID string, passed bool, reports []selftest.Report) {
	h.Log.Debug("self-test complete", "method", "OnSelfTest", "client", clientID, "passed", passed, "cases", len(reports))
	if !h.config.ShowReports {
		return
	}

	for _, r := range reports {
		h.Log.Debug("self-test case", "client", clientID, "title", r.Title, "passed", r.Passed, "stage", r.Stage, "expected", r.Expected, "got", r.Got)
	}
}
