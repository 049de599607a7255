// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package storage

import (
	"sort"
	"strings"
	"sync"
)

// Memory is a backend which keeps records in a map. Records are lost when
// the process exits.
type Memory struct {
	BackendBase
	mu   sync.RWMutex
	data map[string][]byte
}

// ID returns the id of the backend.
func (m *Memory) ID() string {
	return "memory"
}

// Init prepares the map. No config is used.
func (m *Memory) Init(config any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// Set stores a value under a key.
func (m *Memory) Set(key string, v Serializable) error {
	data, err := v.MarshalBinary()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return ErrDBFileNotOpen
	}

	m.data[key] = data
	return nil
}

// Get decodes the value stored under a key into v.
func (m *Memory) Get(key string, v Serializable) error {
	m.mu.RLock()
	data, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return v.UnmarshalBinary(data)
}

// Delete removes a key.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Iterate visits every value whose key has the prefix, in key order.
func (m *Memory) Iterate(prefix string, visit func([]byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	values := make([][]byte, len(keys))
	sort.Strings(keys)
	for i, k := range keys {
		values[i] = m.data[k]
	}
	m.mu.RUnlock()

	for _, v := range values {
		if err := visit(v); err != nil {
			return err
		}
	}
	return nil
}

// Stop drops all records.
func (m *Memory) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
