// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package fixeddata

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mochi-mqtt/fixeddata/packets"
	"github.com/mochi-mqtt/fixeddata/selftest"
	"github.com/mochi-mqtt/fixeddata/system"
	"github.com/mochi-mqtt/fixeddata/transfer"
	"github.com/mochi-mqtt/fixeddata/transport"
)

// TaskFn is the function signature for tasks processed by a worker.
type TaskFn func(w *Worker, payload []byte)

// Task is a queued handler and the message payload it was dispatched with.
type Task struct {
	Handler TaskFn
	Payload []byte
}

// ops contains server values which can be propagated to other structs.
type ops struct {
	options   *Options     // a pointer to the server options
	info      *system.Info // pointers to server system info
	hooks     *Hooks       // pointer to the server hooks
	log       *slog.Logger // a structured logger for the worker
	transport transport.Transport
	progress  *ProgressTracker
}

// publish sends a message to a client, recording it in the server info.
func (o *ops) publish(topic string, payload []byte) {
	if err := o.transport.Publish(topic, payload); err != nil {
		o.log.Error("failed to publish", "error", err, "topic", topic)
		return
	}

	atomic.AddInt64(&o.info.MessagesSent, 1)
	atomic.AddInt64(&o.info.BytesSent, int64(len(payload)))
}

// Worker processes the messages of a single client one at a time, in the
// order they arrived, and owns the client's transfer state.
type Worker struct {
	ID      string                            // the client id the worker serves
	Log     *slog.Logger                      // a logger scoped to the client
	ops     *ops                              // ops provides a reference to server values
	mu      sync.Mutex                        // guards queue and running
	idle    *sync.Cond                        // signalled when the queue drains
	queue   []Task                            // tasks waiting to run
	running bool                              // a drain goroutine is active
	receive map[string]*transfer.ReceiveState // inbound transfers keyed on topic path
	send    map[string]*transfer.SendState    // outbound transfers keyed on topic path
	test    *selftest.Suite                   // the active self-test, if any
	ackTest *selftest.AckTest                 // acktest progress, created on first use
}

// newWorker returns a new instance of Worker.
func newWorker(id string, o *ops) *Worker {
	w := &Worker{
		ID:      id,
		Log:     o.log.With("client", id),
		ops:     o,
		receive: map[string]*transfer.ReceiveState{},
		send:    map[string]*transfer.SendState{},
	}
	w.idle = sync.NewCond(&w.mu)

	return w
}

// Enqueue adds a task to the queue, starting a drain goroutine if the worker
// is not already running.
func (w *Worker) Enqueue(fn TaskFn, payload []byte) {
	w.mu.Lock()
	w.queue = append(w.queue, Task{Handler: fn, Payload: payload})
	if w.running {
		w.mu.Unlock()
		return
	}

	w.running = true
	w.mu.Unlock()

	go w.drain()
}

// drain runs queued tasks until the queue is empty.
func (w *Worker) drain() {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.running = false
			w.idle.Broadcast()
			w.mu.Unlock()
			return
		}

		task := w.queue[0]
		w.queue[0] = Task{}
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.run(task)
	}
}

// run executes a single task, recovering from any panic in the handler.
func (w *Worker) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			w.Log.Error("worker task panicked", "panic", r)
		}
	}()

	task.Handler(w, task.Payload)
}

// Wait blocks until the queue has drained.
func (w *Worker) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.running {
		w.idle.Wait()
	}
}

// Busy returns true if the worker has tasks running or queued.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Pending returns the number of tasks waiting to run.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// AllTransfersFinished returns true if every outbound transfer has been fully
// acked and no self-test is running. It must be called from a worker task.
func (w *Worker) AllTransfersFinished() bool {
	if w.test != nil {
		return false
	}

	for _, s := range w.send {
		if !s.Finished() {
			return false
		}
	}

	return true
}

// ReceiveFixedData applies an inbound fixed data packet to the transfer on
// path, publishing any ack, and returns the payload once it is complete.
func (w *Worker) ReceiveFixedData(path string, pk []byte) []byte {
	atomic.AddInt64(&w.ops.info.BytesReceived, int64(len(pk)))

	rs, ok := w.receive[path]
	if !ok {
		rs = transfer.NewReceiveState(w.ops.options.MaxRetries)
		w.receive[path] = rs
	}

	res, err := rs.Receive(pk)
	if err != nil {
		w.Log.Warn("invalid fixed data packet", "error", err, "topic", path)
		return nil
	}

	w.countFault(res.Fault)
	if res.Fault != nil {
		w.Log.Debug("fixed data fault", "error", res.Fault, "topic", path, "ack", res.Ack, "retries", rs.Retries())
	}

	if res.HasAck {
		w.ops.publish(packets.OutboundTopic(w.ID, path)+packets.AckSuffix, packets.EncodeAck(res.Ack))
	}

	if !res.Complete() {
		return nil
	}

	atomic.AddInt64(&w.ops.info.TransfersReceived, 1)
	w.Log.Debug("fixed data received", "topic", path, "bytes", len(res.Payload))
	w.ops.hooks.OnTransferReceived(w.ID, path, res.Payload)

	return res.Payload
}

// countFault records a receive fault in the server info.
func (w *Worker) countFault(err error) {
	switch {
	case err == nil, errors.Is(err, transfer.ErrOutOfOrder):
	case errors.Is(err, transfer.ErrRetriesExhausted):
		atomic.AddInt64(&w.ops.info.TransfersFailed, 1)
		atomic.AddInt64(&w.ops.info.ForceAcks, 1)
		w.Log.Warn("fixed data retries exhausted, force acking")
	case errors.Is(err, transfer.ErrChecksum):
		atomic.AddInt64(&w.ops.info.ChecksumErrors, 1)
		atomic.AddInt64(&w.ops.info.Retries, 1)
	default:
		atomic.AddInt64(&w.ops.info.Retries, 1)
	}
}

// StartTransfer begins sending payload to the client on path, publishing every
// packet at once. It fails if a transfer on path is still in progress.
func (w *Worker) StartTransfer(path string, payload []byte) error {
	return w.startTransfer(path, payload, w.ops.options.MaxPacketSize)
}

func (w *Worker) startTransfer(path string, payload []byte, size int) error {
	if _, ok := w.send[path]; ok {
		w.Log.Error("transfer already in progress", "topic", path)
		return transfer.ErrTransferInProgress
	}

	pks, err := packets.Encode(payload, size)
	if err != nil {
		w.Log.Error("failed to encode transfer", "error", err, "topic", path)
		return err
	}

	w.send[path] = transfer.NewSendState(pks, w.ops.options.MaxRetries)
	atomic.AddInt64(&w.ops.info.TransfersStarted, 1)
	w.ops.hooks.OnProgress(w.ID, w.ops.progress.Start(w.ID, path, len(pks)))

	w.publishPackets(packets.OutboundTopic(w.ID, path), pks)
	return nil
}

func (w *Worker) publishPackets(topic string, pks [][]byte) {
	for _, pk := range pks {
		w.ops.publish(topic, pk)
	}
}

// HandleAck applies an ack from the client to the outbound transfer on path,
// resending packets if required. It returns true when the transfer has ended.
// Acks on the self-test topic are routed to the active self-test.
func (w *Worker) HandleAck(path string, payload []byte) bool {
	ack, err := packets.DecodeAck(payload)
	if err != nil {
		w.Log.Warn("invalid ack", "error", err, "topic", path)
		return false
	}

	if w.test != nil && path == PathFixedDataTest {
		if w.test.Ack(ack) {
			w.finishSelfTest()
		}
		return false
	}

	s, ok := w.send[path]
	if !ok {
		w.Log.Warn("ack for unknown transfer", "topic", path, "ack", ack)
		return false
	}

	resend, done, err := s.Ack(ack)
	if done {
		delete(w.send, path)
		if err != nil {
			atomic.AddInt64(&w.ops.info.TransfersFailed, 1)
			if errors.Is(err, transfer.ErrForceAck) {
				atomic.AddInt64(&w.ops.info.ForceAcks, 1)
			}
			w.Log.Warn("transfer aborted", "error", err, "topic", path, "ack", ack)
		} else {
			atomic.AddInt64(&w.ops.info.TransfersSent, 1)
			w.Log.Info("transfer done", "topic", path, "packets", s.Total())
		}

		w.ops.hooks.OnProgress(w.ID, w.ops.progress.Finish(w.ID, path))
		w.ops.hooks.OnTransferSent(w.ID, path, err)
		return true
	}

	if err != nil {
		atomic.AddInt64(&w.ops.info.TransfersFailed, 1)
		w.Log.Error("transfer retries exhausted", "error", err, "topic", path, "ack", ack)
		return false
	}

	atomic.AddInt64(&w.ops.info.Retries, 1)
	w.Log.Debug("resending packets", "topic", path, "from", ack, "count", len(resend))
	w.publishPackets(packets.OutboundTopic(w.ID, path), resend)
	return false
}

// HandleProgress records the number of packets the client reports receiving
// for the outbound transfer on path.
func (w *Worker) HandleProgress(path string, payload []byte) {
	p, err := packets.DecodeAck(payload)
	if err != nil {
		w.Log.Warn("invalid progress", "error", err, "topic", path)
		return
	}

	if s, ok := w.send[path]; ok {
		s.SetAcked(int(p))
	}

	w.ops.hooks.OnProgress(w.ID, w.ops.progress.Update(w.ID, path, int(p)))
}

// SelfTest starts the scripted self-test suite against the client, unless
// a transfer on the self-test topic is in progress.
func (w *Worker) SelfTest(payload []byte) {
	w.test = nil
	if _, ok := w.send[PathFixedDataTest]; ok {
		w.Log.Error("cannot start selftest, transfer in progress", "topic", PathFixedDataTest)
		return
	}

	topic := packets.OutboundTopic(w.ID, PathFixedDataTest)
	w.test = selftest.NewSuite(selftest.Cases(), func(pks [][]byte) {
		w.publishPackets(topic, pks)
	}, w.Log)

	if !w.test.Start() {
		w.finishSelfTest()
	}
}

// finishSelfTest reports the outcome of the active self-test and clears it.
func (w *Worker) finishSelfTest() {
	passed := w.test.Passed()
	reports := w.test.Reports()
	w.test = nil

	if passed {
		atomic.AddInt64(&w.ops.info.SelfTestsPassed, 1)
		w.Log.Info("selftest passed", "cases", len(reports))
	} else {
		atomic.AddInt64(&w.ops.info.SelfTestsFailed, 1)
		w.Log.Warn("selftest failed", "cases", len(reports))
	}

	w.ops.hooks.OnSelfTest(w.ID, passed, reports)
}

// FixedDataTest receives a fixed data transfer sent by the client's own
// self-test and logs its length.
func (w *Worker) FixedDataTest(payload []byte) {
	data := w.ReceiveFixedData(PathFixedDataTest, payload)
	if data != nil {
		w.Log.Info("fixeddatatest received", "bytes", len(data))
	}
}

// AckTest answers the client's ack test packets. Once the client has been
// force acked, a fixed data transfer is sent back on the acktest topic.
func (w *Worker) AckTest(payload []byte) {
	if w.ackTest == nil {
		w.ackTest = new(selftest.AckTest)
	}

	ack, ok, err := w.ackTest.Packet(payload)
	if err != nil {
		w.Log.Warn("invalid acktest packet", "error", err)
		return
	}

	if !ok {
		return
	}

	w.ops.publish(packets.OutboundTopic(w.ID, PathAckTest)+packets.AckSuffix, packets.EncodeAck(ack))
	if ack != packets.ForceAck {
		return
	}

	if _, ok := w.send[PathAckTest]; ok {
		w.Log.Warn("discarding unfinished acktest transfer")
		delete(w.send, PathAckTest)
		w.ops.hooks.OnTransferSent(w.ID, PathAckTest, transfer.ErrTransferReplaced)
	}

	if err := w.startTransfer(PathAckTest, selftest.AckTestPayload(), selftest.PacketSize); err != nil {
		w.ops.hooks.OnTransferSent(w.ID, PathAckTest, err)
	}
}

// AckTestAck applies the client's ack for the acktest transfer.
func (w *Worker) AckTestAck(payload []byte) {
	w.HandleAck(PathAckTest, payload)
}
