// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package fixeddata is a server for devices exchanging fixed data transfers,
// reliable chunked payloads, over an mqtt broker.
package fixeddata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mochi-mqtt/fixeddata/credentials"
	"github.com/mochi-mqtt/fixeddata/packets"
	"github.com/mochi-mqtt/fixeddata/storage"
	"github.com/mochi-mqtt/fixeddata/system"
	"github.com/mochi-mqtt/fixeddata/transport"
)

const (
	Version                       = "1.0.0" // the current server version.
	defaultSysInfoInterval  int64 = 1       // the interval between server info refreshes
	defaultMaxPacketSize          = 1024    // the default fixed data packet size
	defaultClientIDPrefix         = "client-"
	defaultUsername               = "server"
	defaultServerPasswordLen      = 16
)

var (
	ErrNoTransport   = errors.New("no transport configured")
	ErrServerStarted = errors.New("server already started")
	ErrNotStarted    = errors.New("server not started")
	ErrEmptyPath     = errors.New("topic path is empty")
)

// Options contains configurable options for the server.
type Options struct {
	// Hooks specifies any hooks which should be dynamically added on serve.
	Hooks []HookLoadConfig `yaml:"-" json:"-" toml:"-"`

	// MaxPacketSize is the payload size of each outbound fixed data packet,
	// excluding the header.
	MaxPacketSize int `yaml:"max_packet_size" json:"max_packet_size" toml:"max_packet_size"`

	// MaxRetries is the retry budget of each transfer in either direction.
	MaxRetries int `yaml:"max_retries" json:"max_retries" toml:"max_retries"`

	// ClientIDPrefix is the client id prefix devices must use to register.
	ClientIDPrefix string `yaml:"client_id_prefix" json:"client_id_prefix" toml:"client_id_prefix"`

	// Username and Password are the broker credentials of the server itself.
	// A random password is generated if none is given.
	Username string `yaml:"username" json:"username" toml:"username"`
	Password string `yaml:"password" json:"password" toml:"password"`

	// HashIterations is the pbkdf2 round count for stored passwords.
	HashIterations int `yaml:"hash_iterations" json:"hash_iterations" toml:"hash_iterations"`

	// SysInfoInterval specifies the interval between server info refreshes in seconds.
	SysInfoInterval int64 `yaml:"sys_info_interval" json:"sys_info_interval" toml:"sys_info_interval"`

	// Transport is the broker connection messages are exchanged over.
	Transport transport.Transport `yaml:"-" json:"-" toml:"-"`

	// Store holds client credentials and transfer progress. An in-memory
	// store is used if none is given.
	Store *storage.Store `yaml:"-" json:"-" toml:"-"`

	// Logger specifies a custom configured implementation of log/slog to override
	// the servers default logger configuration.
	Logger *slog.Logger `yaml:"-" json:"-" toml:"-"`
}

// HookLoadConfig contains the hook and configuration as loaded from a configuration (usually file).
type HookLoadConfig struct {
	Hook   Hook
	Config any
}

// topicDecl is an application topic declared before the server starts.
type topicDecl struct {
	path    string
	kind    TopicKind
	handler TopicHandler
}

// Server is a fixed data server.
type Server struct {
	Options  *Options         // configurable server options
	Info     *system.Info     // values about the server
	Workers  *Workers         // workers of the clients known to the server
	Log      *slog.Logger     // minimal no-alloc logger
	router   *Router          // resolves inbound topics to handlers
	progress *ProgressTracker // transfer progress of every client
	store    *storage.Store   // client credentials and progress
	hooks    *Hooks           // hooks contains hooks for extra functionality
	ops      *ops             // values shared with workers
	loop     *loop            // loop contains tickers for the system event loop
	done     chan bool        // indicate that the server is ending
	topics      []topicDecl      // application topics added before serve
	hooksLoaded int              // hooks from the options already added
	started     uint32           // set once the server has started
	stopOnce sync.Once
}

// loop contains interval tickers for the system events loop.
type loop struct {
	sysInfo *time.Ticker // interval ticker for refreshing server info
}

// New returns a new instance of the server.
func New(opts *Options) *Server {
	if opts == nil {
		opts = new(Options)
	}

	opts.ensureDefaults()

	s := &Server{
		done: make(chan bool),
		loop: &loop{
			sysInfo: time.NewTicker(time.Second * time.Duration(opts.SysInfoInterval)),
		},
		Options: opts,
		Info: &system.Info{
			Version: Version,
			Started: time.Now().Unix(),
		},
		Log:   opts.Logger,
		store: opts.Store,
		hooks: &Hooks{
			Log: opts.Logger,
		},
	}

	s.progress = NewProgressTracker(s.store, s.Log)
	s.ops = &ops{
		options:   s.Options,
		info:      s.Info,
		hooks:     s.hooks,
		log:       s.Log,
		transport: s.Options.Transport,
		progress:  s.progress,
	}
	s.Workers = NewWorkers(s.ops)
	s.router = NewRouter(s.Workers, s.Info, s.Log)

	return s
}

// ensureDefaults ensures that the server starts with sane default values, if none are provided.
func (o *Options) ensureDefaults() {
	if o.MaxPacketSize <= 0 {
		o.MaxPacketSize = defaultMaxPacketSize
	}

	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}

	if o.ClientIDPrefix == "" {
		o.ClientIDPrefix = defaultClientIDPrefix
	}

	if o.Username == "" {
		o.Username = defaultUsername
	}

	if o.Password == "" {
		if p, err := credentials.RandomSecret(defaultServerPasswordLen); err == nil {
			o.Password = p
		}
	}

	if o.HashIterations <= 0 {
		o.HashIterations = credentials.DefaultIterations
	}

	if o.SysInfoInterval == 0 {
		o.SysInfoInterval = defaultSysInfoInterval
	}

	if o.Logger == nil {
		log := slog.New(slog.NewTextHandler(os.Stdout, nil))
		o.Logger = log
	}

	if o.Store == nil {
		o.Store, _ = storage.New(new(storage.Memory), nil, o.Logger)
	}
}

// AddHook attaches a new Hook to the server. Ideally, this should be called
// before the server is started with s.Serve().
func (s *Server) AddHook(hook Hook, config any) error {
	nl := s.Log.With("hook", hook.ID())
	hook.SetOpts(nl, &HookOptions{
		MaxPacketSize: s.Options.MaxPacketSize,
		MaxRetries:    s.Options.MaxRetries,
	})

	s.Log.Info("added hook", "hook", hook.ID())
	return s.hooks.Add(hook, config)
}

// AddTopic declares an application topic path, which may contain + and a
// trailing # wildcard. Declarations are checked when the server starts.
func (s *Server) AddTopic(path string, kind TopicKind, handler TopicHandler) {
	s.topics = append(s.topics, topicDecl{path: path, kind: kind, handler: handler})
}

// buildRouter adds the built-in protocol topics and every declared
// application topic to the router.
func (s *Server) buildRouter() error {
	builtins := []struct {
		path    string
		handler func(w *Worker, path string, payload []byte)
	}{
		{PathRegister, s.handleRegister},
		{PathVerify, s.handleVerify},
		{PathHi, s.handleHi},
		{PathBye, s.handleBye},
		{PathFixedDataTest, func(w *Worker, _ string, pl []byte) { w.FixedDataTest(pl) }},
		{PathFixedDataTestAck, func(w *Worker, _ string, pl []byte) { w.HandleAck(PathFixedDataTest, pl) }},
		{PathAckTest, func(w *Worker, _ string, pl []byte) { w.AckTest(pl) }},
		{PathAckTestAck, func(w *Worker, _ string, pl []byte) { w.AckTestAck(pl) }},
		{PathSelfTest, func(w *Worker, _ string, pl []byte) { w.SelfTest(pl) }},
	}

	for _, b := range builtins {
		if err := s.router.Add(b.path, Normal, b.handler); err != nil {
			return err
		}
	}

	for _, t := range s.topics {
		if t.handler == nil {
			return fmt.Errorf("%w: %s", ErrMissingHandler, t.path)
		}

		if err := s.router.Add(t.path, t.kind, s.applicationHandler(t.kind, t.handler)); err != nil {
			return err
		}

		s.Log.Info("added topic", "topic", t.path, "kind", t.kind.String())
	}

	return nil
}

// applicationHandler wraps an application handler for the worker. Fixed data
// topics call the handler only with complete payloads.
func (s *Server) applicationHandler(kind TopicKind, handler TopicHandler) func(w *Worker, path string, payload []byte) {
	return func(w *Worker, path string, payload []byte) {
		if kind == FixedData {
			payload = w.ReceiveFixedData(path, payload)
			if payload == nil {
				return
			}
		}

		s.sendReply(w.ID, path, handler(w.ID, payload))
	}
}

// sendReply publishes the reply of an application handler.
func (s *Server) sendReply(clientID, path string, reply Reply) {
	switch r := reply.(type) {
	case nil, NoReply:
	case Publish:
		topic := r.Topic
		if topic == "" {
			topic = path
		}
		_ = s.Publish(clientID, topic, r.Payload)
	case MultiPublish:
		for _, p := range r {
			s.sendReply(clientID, path, p)
		}
	}
}

// Serve connects the transport, subscribes to every handled topic, and starts
// the event loop. It returns once the server is ready. A failed Serve may be
// retried.
func (s *Server) Serve(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return ErrServerStarted
	}

	s.Log.Info("fixeddata starting", "version", Version)
	if err := s.start(ctx); err != nil {
		atomic.StoreUint32(&s.started, 0)
		s.Log.Error("fixeddata failed to start", "error", err)
		return err
	}

	go s.eventLoop() // spin up event loop for refreshing server info and closing server.
	s.refreshInfo()
	s.hooks.OnStarted()
	s.Log.Info("fixeddata server started")

	return nil
}

// start prepares the router and store and connects the transport.
func (s *Server) start(ctx context.Context) error {
	if s.Options.Transport == nil {
		return ErrNoTransport
	}
	s.ops.transport = s.Options.Transport

	for s.hooksLoaded < len(s.Options.Hooks) {
		h := s.Options.Hooks[s.hooksLoaded]
		if err := s.AddHook(h.Hook, h.Config); err != nil {
			return err
		}
		s.hooksLoaded++
	}

	s.router = NewRouter(s.Workers, s.Info, s.Log)
	if err := s.buildRouter(); err != nil {
		return err
	}

	if err := s.prepareStore(); err != nil {
		return err
	}

	if err := s.Options.Transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect transport: %w", err)
	}

	filters := s.router.Filters()
	if err := s.Options.Transport.Subscribe(filters, s.router.Dispatch); err != nil {
		_ = s.Options.Transport.Close()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	s.Log.Info("subscribed to topics", "filters", filters)

	return nil
}

// prepareStore records the server's own broker credentials.
func (s *Server) prepareStore() error {
	hash, err := credentials.Hash(s.Options.Password, s.Options.HashIterations)
	if err != nil {
		return err
	}

	return s.store.InsertClient(storage.Client{
		Username: s.Options.Username,
		ClientID: s.Options.Username,
		Password: hash,
		Role:     storage.RoleServer,
		Verified: true,
	})
}

// eventLoop loops forever, running various server housekeeping methods at different intervals.
func (s *Server) eventLoop() {
	s.Log.Debug("system event loop started")
	defer s.Log.Debug("system event loop halted")

	for {
		select {
		case <-s.done:
			s.loop.sysInfo.Stop()
			return
		case <-s.loop.sysInfo.C:
			s.refreshInfo()
		}
	}
}

// refreshInfo updates the time based server info values and passes a copy to the hooks.
func (s *Server) refreshInfo() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	atomic.StoreInt64(&s.Info.MemoryAlloc, int64(m.HeapInuse))
	atomic.StoreInt64(&s.Info.Threads, int64(runtime.NumGoroutine()))
	atomic.StoreInt64(&s.Info.Time, time.Now().Unix())
	atomic.StoreInt64(&s.Info.Uptime, time.Now().Unix()-atomic.LoadInt64(&s.Info.Started))

	s.hooks.OnSysInfoTick(s.Info.Clone())
}

// publish sends a message on a full topic.
func (s *Server) publish(topic string, payload []byte) {
	s.ops.publish(topic, payload)
}

// Publish sends a plain message to a client on a topic path.
func (s *Server) Publish(clientID, path string, payload []byte) error {
	if atomic.LoadUint32(&s.started) == 0 {
		return ErrNotStarted
	}

	if path == "" {
		return ErrEmptyPath
	}

	topic := packets.OutboundTopic(clientID, path)
	if err := s.Options.Transport.Publish(topic, payload); err != nil {
		return err
	}

	atomic.AddInt64(&s.Info.MessagesSent, 1)
	atomic.AddInt64(&s.Info.BytesSent, int64(len(payload)))
	return nil
}

// SendFixedData queues a fixed data transfer of payload to a client on a
// topic path. The outcome is reported to the OnTransferSent hook.
func (s *Server) SendFixedData(clientID, path string, payload []byte) error {
	if atomic.LoadUint32(&s.started) == 0 {
		return ErrNotStarted
	}

	if path == "" {
		return ErrEmptyPath
	}

	data := append([]byte(nil), payload...)
	s.Workers.GetOrCreate(clientID).Enqueue(func(w *Worker, _ []byte) {
		if err := w.StartTransfer(path, data); err != nil {
			s.hooks.OnTransferSent(clientID, path, err)
		}
	}, nil)

	return nil
}

// Progress returns the transfer progress records of a client.
func (s *Server) Progress(clientID string) []storage.Progress {
	return s.progress.Get(clientID)
}

// AllProgress returns the transfer progress records of every client.
func (s *Server) AllProgress() map[string][]storage.Progress {
	return s.progress.GetAll()
}

// Clients returns the credential records of every registered client.
func (s *Server) Clients() ([]storage.Client, error) {
	return s.store.Clients()
}

// DeleteClient removes the credential record of a client.
func (s *Server) DeleteClient(username string) error {
	return s.store.DeleteClient(username)
}

// Close attempts to gracefully shut down the server, letting queued tasks finish.
func (s *Server) Close() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.Log.Info("gracefully stopping server")
		s.Workers.Wait()

		if s.Options.Transport != nil {
			if err := s.Options.Transport.Close(); err != nil {
				s.Log.Error("failed to close transport", "error", err)
			}
		}

		s.hooks.OnStopped()
		s.hooks.Stop()

		if err := s.store.Close(); err != nil {
			s.Log.Error("failed to close store", "error", err)
		}
	})

	s.Log.Info("fixeddata server stopped")
	return nil
}
