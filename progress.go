// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package fixeddata

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/mochi-mqtt/fixeddata/storage"
)

// ProgressTracker holds the progress of each client's transfers, keyed on
// client id and topic path, writing each change through to the store.
type ProgressTracker struct {
	sync.RWMutex
	Log      *slog.Logger
	store    *storage.Store
	internal map[string]map[string]storage.Progress
}

// NewProgressTracker returns a new tracker. The store may be nil.
func NewProgressTracker(store *storage.Store, log *slog.Logger) *ProgressTracker {
	return &ProgressTracker{
		Log:      log,
		store:    store,
		internal: map[string]map[string]storage.Progress{},
	}
}

// Start records a new transfer of total packets, returning the client's progress.
func (p *ProgressTracker) Start(clientID, path string, total int) []storage.Progress {
	return p.set(clientID, path, func(r *storage.Progress, _ bool) {
		r.Progress = 0
		r.Total = total
	})
}

// Update sets the number of packets a client has reported receiving. The total
// is kept if the transfer is known, else it is recorded as unknown (-1).
func (p *ProgressTracker) Update(clientID, path string, progress int) []storage.Progress {
	return p.set(clientID, path, func(r *storage.Progress, existed bool) {
		if !existed {
			r.Total = -1
		}
		r.Progress = progress
	})
}

// Finish marks a known transfer as complete.
func (p *ProgressTracker) Finish(clientID, path string) []storage.Progress {
	p.RLock()
	_, ok := p.internal[clientID][path]
	p.RUnlock()
	if !ok {
		return p.Get(clientID)
	}

	return p.set(clientID, path, func(r *storage.Progress, _ bool) {
		r.Progress = r.Total
	})
}

// set applies fn to a record and persists it.
func (p *ProgressTracker) set(clientID, path string, fn func(r *storage.Progress, existed bool)) []storage.Progress {
	p.Lock()
	records, ok := p.internal[clientID]
	if !ok {
		records = map[string]storage.Progress{}
		p.internal[clientID] = records
	}

	r, existed := records[path]
	if !existed {
		r = storage.Progress{
			ClientID: clientID,
			Topic:    path,
			T:        storage.ProgressKey,
		}
	}

	fn(&r, existed)
	r.Updated = time.Now().Unix()
	records[path] = r
	p.Unlock()

	if p.store != nil {
		if err := p.store.SetProgress(r); err != nil {
			p.Log.Error("failed to store progress", "error", err, "client", clientID, "topic", path)
		}
	}

	return p.Get(clientID)
}

// Get returns a copy of a client's progress records sorted by topic.
func (p *ProgressTracker) Get(clientID string) []storage.Progress {
	p.RLock()
	defer p.RUnlock()

	var out []storage.Progress
	for _, r := range p.internal[clientID] {
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Topic < out[j].Topic
	})

	return out
}

// GetAll returns a deep copy of every client's progress records, each
// client's records sorted by topic.
func (p *ProgressTracker) GetAll() map[string][]storage.Progress {
	snapshot := map[string]map[string]storage.Progress{}
	p.RLock()
	err := copier.CopyWithOption(&snapshot, &p.internal, copier.Option{DeepCopy: true})
	p.RUnlock()
	if err != nil {
		p.Log.Error("failed to copy progress", "error", err)
		return map[string][]storage.Progress{}
	}

	out := make(map[string][]storage.Progress, len(snapshot))
	for id, records := range snapshot {
		list := make([]storage.Progress, 0, len(records))
		for _, r := range records {
			list = append(list, r)
		}

		sort.Slice(list, func(i, j int) bool {
			return list[i].Topic < list[j].Topic
		})
		out[id] = list
	}

	return out
}

// Load fills the tracker with a client's records from the store.
func (p *ProgressTracker) Load(clientID string) error {
	if p.store == nil {
		return nil
	}

	records, err := p.store.Progress(clientID)
	if err != nil {
		return err
	}

	p.Lock()
	defer p.Unlock()
	for _, r := range records {
		if _, ok := p.internal[r.ClientID]; !ok {
			p.internal[r.ClientID] = map[string]storage.Progress{}
		}
		p.internal[r.ClientID][r.Topic] = r
	}

	return nil
}
