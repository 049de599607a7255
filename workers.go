// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-co
// SPDX-FileContributor: mochi-co, chowyu08, muXxer

package fixeddata

import (
	"sync"
	"sync/atomic"

	xh "github.com/cespare/xxhash/v2"
)

// workerShards is the number of independently locked sections of the registry.
const workerShards = 16

// Workers is a registry of client workers. Client ids are spread across
// shards by their xxhash so that lookups for different clients rarely
// contend on the same lock.
type Workers struct {
	ops    *ops
	shards [workerShards]workerShard
}

type workerShard struct {
	sync.RWMutex
	internal map[string]*Worker
}

// NewWorkers returns a new instance of Workers.
func NewWorkers(o *ops) *Workers {
	w := &Workers{ops: o}
	for i := range w.shards {
		w.shards[i].internal = map[string]*Worker{}
	}

	return w
}

// shard returns the shard which holds a client id.
func (w *Workers) shard(id string) *workerShard {
	return &w.shards[xh.Sum64([]byte(id))%workerShards]
}

// Get returns the worker for a client id, if it exists.
func (w *Workers) Get(id string) (*Worker, bool) {
	s := w.shard(id)
	s.RLock()
	defer s.RUnlock()
	wk, ok := s.internal[id]
	return wk, ok
}

// GetOrCreate returns the worker for a client id, creating it if needed.
func (w *Workers) GetOrCreate(id string) *Worker {
	if wk, ok := w.Get(id); ok {
		return wk
	}

	s := w.shard(id)
	s.Lock()
	defer s.Unlock()
	if wk, ok := s.internal[id]; ok {
		return wk
	}

	wk := newWorker(id, w.ops)
	s.internal[id] = wk
	atomic.AddInt64(&w.ops.info.Workers, 1)
	w.ops.log.Debug("created worker", "client", id)

	if err := w.ops.progress.Load(id); err != nil {
		w.ops.log.Warn("failed to load stored progress", "error", err, "client", id)
	}

	return wk
}

// GetAll returns all the workers.
func (w *Workers) GetAll() map[string]*Worker {
	m := map[string]*Worker{}
	for i := range w.shards {
		s := &w.shards[i]
		s.RLock()
		for k, v := range s.internal {
			m[k] = v
		}
		s.RUnlock()
	}

	return m
}

// Len returns the number of workers.
func (w *Workers) Len() int {
	n := 0
	for i := range w.shards {
		s := &w.shards[i]
		s.RLock()
		n += len(s.internal)
		s.RUnlock()
	}

	return n
}

// Wait blocks until every worker has drained its queue, including any tasks
// queued by other workers while waiting.
func (w *Workers) Wait() {
	for {
		busy := false
		for _, wk := range w.GetAll() {
			if wk.Busy() {
				busy = true
				wk.Wait()
			}
		}

		if !busy {
			return
		}
	}
}
