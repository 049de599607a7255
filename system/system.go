// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-co
// SPDX-FileContributor: mochi-co

package system

import (
	"runtime"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Info contains atomic counters and values for various server statistics.
type Info struct {
	Version           string `json:"version"`            // the current version of the server
	Started           int64  `json:"started"`            // the time the server started in unix seconds
	Time              int64  `json:"time"`               // current time on the server
	Uptime            int64  `json:"uptime"`             // the number of seconds the server has been online
	BytesReceived     int64  `json:"bytes_received"`     // total number of payload bytes received from clients
	BytesSent         int64  `json:"bytes_sent"`         // total number of payload bytes published to clients
	MessagesReceived  int64  `json:"messages_received"`  // total number of messages received from clients
	MessagesSent      int64  `json:"messages_sent"`      // total number of messages published to clients
	MessagesDropped   int64  `json:"messages_dropped"`   // total number of messages with no topic handler
	Workers           int64  `json:"workers"`            // number of client workers created
	TransfersStarted  int64  `json:"transfers_started"`  // total number of outbound transfers started
	TransfersSent     int64  `json:"transfers_sent"`     // total number of outbound transfers acked in full
	TransfersReceived int64  `json:"transfers_received"` // total number of inbound transfers reassembled
	TransfersFailed   int64  `json:"transfers_failed"`   // total number of transfers aborted in either direction
	Retries           int64  `json:"retries"`            // total number of retries consumed in either direction
	ForceAcks         int64  `json:"force_acks"`         // total number of force acks sent or received
	ChecksumErrors    int64  `json:"checksum_errors"`    // total number of reassembled payloads failing the checksum
	SelfTestsPassed   int64  `json:"selftests_passed"`   // total number of self-test suites passed
	SelfTestsFailed   int64  `json:"selftests_failed"`   // total number of self-test suites failed
	MemoryAlloc       int64  `json:"memory_alloc"`       // memory currently allocated
	Threads           int64  `json:"threads"`            // number of active goroutines, named as threads for platform ambiguity
}

// Clone makes a copy of Info using atomic operation
func (i *Info) Clone() *Info {
	return &Info{
		Version:           i.Version,
		Started:           atomic.LoadInt64(&i.Started),
		Time:              atomic.LoadInt64(&i.Time),
		Uptime:            atomic.LoadInt64(&i.Uptime),
		BytesReceived:     atomic.LoadInt64(&i.BytesReceived),
		BytesSent:         atomic.LoadInt64(&i.BytesSent),
		MessagesReceived:  atomic.LoadInt64(&i.MessagesReceived),
		MessagesSent:      atomic.LoadInt64(&i.MessagesSent),
		MessagesDropped:   atomic.LoadInt64(&i.MessagesDropped),
		Workers:           atomic.LoadInt64(&i.Workers),
		TransfersStarted:  atomic.LoadInt64(&i.TransfersStarted),
		TransfersSent:     atomic.LoadInt64(&i.TransfersSent),
		TransfersReceived: atomic.LoadInt64(&i.TransfersReceived),
		TransfersFailed:   atomic.LoadInt64(&i.TransfersFailed),
		Retries:           atomic.LoadInt64(&i.Retries),
		ForceAcks:         atomic.LoadInt64(&i.ForceAcks),
		ChecksumErrors:    atomic.LoadInt64(&i.ChecksumErrors),
		SelfTestsPassed:   atomic.LoadInt64(&i.SelfTestsPassed),
		SelfTestsFailed:   atomic.LoadInt64(&i.SelfTestsFailed),
		MemoryAlloc:       atomic.LoadInt64(&i.MemoryAlloc),
		Threads:           atomic.LoadInt64(&i.Threads),
	}
}

// RegisterPrometheusMetrics exposes the counters to a prometheus registry,
// or the default registerer if nil.
func (i *Info) RegisterPrometheusMetrics(registry prometheus.Registerer) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	type metrics struct {
		metricType string
		name       string
		help       string
		value      *int64
	}

	metricsList := []metrics{
		{"c", "bytes_received", "A counter of payload bytes received from clients", &i.BytesReceived},
		{"c", "bytes_sent", "A counter of payload bytes published to clients", &i.BytesSent},
		{"c", "messages_received", "A counter of messages received from clients", &i.MessagesReceived},
		{"c", "messages_sent", "A counter of messages published to clients", &i.MessagesSent},
		{"c", "messages_dropped", "A counter of messages dropped for want of a handler", &i.MessagesDropped},
		{"g", "workers", "A gauge of client workers created", &i.Workers},
		{"c", "transfers_started", "A counter of outbound transfers started", &i.TransfersStarted},
		{"c", "transfers_sent", "A counter of outbound transfers acked in full", &i.TransfersSent},
		{"c", "transfers_received", "A counter of inbound transfers reassembled", &i.TransfersReceived},
		{"c", "transfers_failed", "A counter of transfers aborted", &i.TransfersFailed},
		{"c", "retries", "A counter of retries consumed", &i.Retries},
		{"c", "force_acks", "A counter of force acks sent or received", &i.ForceAcks},
		{"c", "checksum_errors", "A counter of payloads failing the checksum", &i.ChecksumErrors},
		{"c", "selftests_passed", "A counter of self-test suites passed", &i.SelfTestsPassed},
		{"c", "selftests_failed", "A counter of self-test suites failed", &i.SelfTestsFailed},
		{"g", "memory_alloc", "A gauge of memory currently allocated", &i.MemoryAlloc},
		{"g", "threads", "A gauge of active goroutines", &i.Threads},
	}

	for _, m := range metricsList {
		m := m
		fn := func() float64 {
			return float64(atomic.LoadInt64(m.value))
		}

		switch m.metricType {
		case "c":
			registry.MustRegister(
				prometheus.NewCounterFunc(
					prometheus.CounterOpts{
						Namespace: "fixeddata",
						Name:      m.name,
						Help:      m.help,
					},
					fn,
				),
			)
		case "g":
			registry.MustRegister(
				prometheus.NewGaugeFunc(
					prometheus.GaugeOpts{
						Namespace: "fixeddata",
						Name:      m.name,
						Help:      m.help,
					},
					fn,
				),
			)
		}
	}

	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fixeddata",
			Name:      "build_info",
			Help:      "Build Information",
		},
		[]string{"goversion", "version"},
	)
	registry.MustRegister(buildInfo)
	buildInfo.With(prometheus.Labels{"goversion": runtime.Version(), "version": i.Version}).Set(1)
}
