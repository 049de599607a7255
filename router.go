// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package fixeddata

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/mochi-mqtt/fixeddata/packets"
	"github.com/mochi-mqtt/fixeddata/system"
	"github.com/mochi-mqtt/fixeddata/transport"
)

// Built-in topic paths.
const (
	PathRegister         = "register"
	PathVerify           = "verify"
	PathHi               = "hi"
	PathBye              = "bye"
	PathFixedDataTest    = "fixeddatatest"
	PathFixedDataTestAck = PathFixedDataTest + packets.AckSuffix
	PathAckTest          = "acktest"
	PathAckTestAck       = PathAckTest + packets.AckSuffix
	PathSelfTest         = "selftest"
)

var (
	ErrMissingHandler = errors.New("topic has no handler")
	ErrDuplicateTopic = errors.New("topic already has a handler")
	ErrInvalidTopic   = errors.New("invalid topic path")
)

// TopicKind determines how messages on an application topic are handled.
type TopicKind byte

const (
	// Normal topics pass each message payload straight to the handler.
	Normal TopicKind = iota

	// FixedData topics reassemble fixed data transfers and pass the handler
	// the complete payload.
	FixedData
)

// String returns the name of the topic kind.
func (k TopicKind) String() string {
	switch k {
	case Normal:
		return "normal"
	case FixedData:
		return "fixeddata"
	default:
		return fmt.Sprintf("TopicKind(%d)", byte(k))
	}
}

// Reply is a message an application handler asks to be sent back to the
// client. It is one of NoReply, Publish, or MultiPublish.
type Reply interface {
	isReply()
}

// NoReply sends nothing.
type NoReply struct{}

// Publish sends a payload to the client on a topic path. An empty topic
// replies on the path the message arrived on.
type Publish struct {
	Topic   string
	Payload []byte
}

// MultiPublish sends several messages in order.
type MultiPublish []Publish

func (NoReply) isReply()      {}
func (Publish) isReply()      {}
func (MultiPublish) isReply() {}

// TopicHandler handles the messages a client sends on an application topic.
type TopicHandler func(clientID string, payload []byte) Reply

// route binds a topic path, or path filter, to the function which handles it.
type route struct {
	path    string
	kind    TopicKind
	handler func(w *Worker, path string, payload []byte)
}

// Router resolves inbound topics to handlers and queues them on the
// sending client's worker.
type Router struct {
	Log     *slog.Logger
	info    *system.Info
	workers *Workers
	routes  map[string]*route // exact paths
	index   *TopicsIndex      // wildcard paths
}

// NewRouter returns a new instance of Router.
func NewRouter(workers *Workers, info *system.Info, log *slog.Logger) *Router {
	return &Router{
		Log:     log,
		info:    info,
		workers: workers,
		routes:  map[string]*route{},
		index:   NewTopicsIndex(),
	}
}

// Add binds a handler to a topic path or wildcard path filter.
func (r *Router) Add(path string, kind TopicKind, handler func(w *Worker, path string, payload []byte)) error {
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrMissingHandler, path)
	}

	if !IsValidFilter(path) {
		return fmt.Errorf("%w: %s", ErrInvalidTopic, path)
	}

	rt := &route{path: path, kind: kind, handler: handler}
	if IsWildcard(path) {
		if !r.index.Add(path, rt) {
			return fmt.Errorf("%w: %s", ErrDuplicateTopic, path)
		}
		return nil
	}

	if _, ok := r.routes[path]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTopic, path)
	}

	r.routes[path] = rt
	return nil
}

// Resolve returns the task for a topic path: an exact route, then a
// wildcard route, then the ack or progress handler of the transfer on
// the path without its suffix.
func (r *Router) Resolve(path string) (TaskFn, bool) {
	if rt, ok := r.routes[path]; ok {
		return bind(rt, path), true
	}

	if rt := r.index.Match(path); rt != nil {
		return bind(rt, path), true
	}

	if base, ok := strings.CutSuffix(path, packets.AckSuffix); ok && base != "" {
		return func(w *Worker, payload []byte) {
			w.HandleAck(base, payload)
		}, true
	}

	if base, ok := strings.CutSuffix(path, packets.ProgressSuffix); ok && base != "" {
		return func(w *Worker, payload []byte) {
			w.HandleProgress(base, payload)
		}, true
	}

	return nil, false
}

func bind(rt *route, path string) TaskFn {
	return func(w *Worker, payload []byte) {
		rt.handler(w, path, payload)
	}
}

// Dispatch is the transport handler for every inbound message. The message
// is queued on the worker of the client it came from.
func (r *Router) Dispatch(topic string, payload []byte) {
	atomic.AddInt64(&r.info.MessagesReceived, 1)

	clientID, path, ok := packets.ParseInbound(topic)
	if !ok {
		atomic.AddInt64(&r.info.MessagesDropped, 1)
		r.Log.Warn("unmatched topic", "topic", topic)
		return
	}

	fn, ok := r.Resolve(path)
	if !ok {
		atomic.AddInt64(&r.info.MessagesDropped, 1)
		r.Log.Error("no handler for topic", "topic", path, "client", clientID)
		return
	}

	r.workers.GetOrCreate(clientID).Enqueue(fn, payload)
}

// Filters returns the topic filters to subscribe to: the inbound topic of
// every path, and the ack and progress topics of single level paths. Filters
// already covered by another filter are omitted so no message is delivered twice.
func (r *Router) Filters() []string {
	candidates := []string{
		packets.InboundTopic("+", "+"+packets.AckSuffix),
		packets.InboundTopic("+", "+"+packets.ProgressSuffix),
	}

	var paths []string
	for p := range r.routes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		candidates = append(candidates, packets.InboundTopic("+", p))
		if strings.Contains(p, "/") && !strings.HasSuffix(p, packets.AckSuffix) {
			candidates = append(candidates,
				packets.InboundTopic("+", p+packets.AckSuffix),
				packets.InboundTopic("+", p+packets.ProgressSuffix),
			)
		}
	}

	var wild []string
	r.index.root.walk(func(rt *route) {
		wild = append(wild, rt.path)
	})
	sort.Strings(wild)
	for _, p := range wild {
		candidates = append(candidates, packets.InboundTopic("+", p))
	}

	var filters []string
	for i, f := range candidates {
		covered := false
		for j, other := range candidates {
			if i != j && other != f && transport.Match(other, f) {
				covered = true
				break
			}
		}

		if !covered && !contains(filters, f) {
			filters = append(filters, f)
		}
	}

	return filters
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// walk calls fn for every route at or below the particle.
func (p *particle) walk(fn func(rt *route)) {
	if p.route != nil {
		fn(p.route)
	}

	for _, c := range p.particles {
		c.walk(fn)
	}
}
