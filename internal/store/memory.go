package store

import (
	"context"
	"sync"
)

// Memory is the in-process FileStore. Take holds the lock across the read
// and delete so at most one caller ever sees a given record.
type Memory struct {
	mu    sync.Mutex
	files map[string]StoredFile
}

func NewMemory() *Memory {
	return &Memory{files: map[string]StoredFile{}}
}

// Put inserts or overwrites; overwrite is not an error.
func (m *Memory) Put(_ context.Context, jobID string, f StoredFile) error {
	m.mu.Lock()
	m.files[jobID] = f
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, jobID string) (StoredFile, bool, error) {
	m.mu.Lock()
	f, ok := m.files[jobID]
	m.mu.Unlock()
	return f, ok, nil
}

// Take returns the record and deletes it under one lock.
func (m *Memory) Take(_ context.Context, jobID string) (StoredFile, bool, error) {
	m.mu.Lock()
	f, ok := m.files[jobID]
	if ok {
		delete(m.files, jobID)
	}
	m.mu.Unlock()
	return f, ok, nil
}

// Delete removes a record; absence is not an error.
func (m *Memory) Delete(_ context.Context, jobID string) error {
	m.mu.Lock()
	delete(m.files, jobID)
	m.mu.Unlock()
	return nil
}

// Len reports the number of live records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
