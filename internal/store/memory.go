package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests and by the state-machine
// package's fakes. It records the sequence of mutations so tests can assert
// write ordering.
type MemoryStore struct {
	mu     sync.Mutex
	values map[Key]string
	ops    []string
	events []*ProgressEvent
}

func NewMemory() *MemoryStore {
	return &MemoryStore{values: make(map[Key]string)}
}

func (m *MemoryStore) Get(ctx context.Context, key Key) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key Key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.ops = append(m.ops, "set:"+string(key)+"="+value)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		m.ops = append(m.ops, "del:"+string(k))
	}
	return nil
}

func (m *MemoryStore) PublishProgress(ev *ProgressEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Ops returns the recorded mutation sequence.
func (m *MemoryStore) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.ops))
	copy(out, m.ops)
	return out
}

// RecordOp appends a marker to the mutation sequence. Test hooks use this to
// interleave non-store events (e.g. "run started") with store writes.
func (m *MemoryStore) RecordOp(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

// Events returns the progress events published so far.
func (m *MemoryStore) Events() []*ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ProgressEvent, len(m.events))
	copy(out, m.events)
	return out
}
