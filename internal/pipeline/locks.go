package pipeline

import (
	"context"
	"sync"

	"torrentify/internal/domain"
	"torrentify/internal/naming"
)

// folderLocks serializes work on one output folder across jobs.
type folderLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newFolderLocks() *folderLocks {
	return &folderLocks{locks: make(map[string]*refLock)}
}

// Lock blocks until key is free and returns its release func.
func (f *folderLocks) Lock(key string) func() {
	f.mu.Lock()
	l, ok := f.locks[key]
	if !ok {
		l = &refLock{}
		f.locks[key] = l
	}
	l.refs++
	f.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		f.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.locks, key)
		}
		f.mu.Unlock()
	}
}

// MemoryIndex is a process-local ReleaseIndex.
type MemoryIndex struct {
	mu    sync.RWMutex
	names map[string]string
}

var _ ReleaseIndex = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{names: make(map[string]string)}
}

func (m *MemoryIndex) ReleaseFor(_ context.Context, path string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, ok := m.names[path]
	return name, ok
}

func (m *MemoryIndex) RecordRelease(_ context.Context, path, release string, _ domain.Category) error {
	m.mu.Lock()
	m.names[path] = release
	m.mu.Unlock()
	return nil
}

// memoExtractor remembers extraction results so naming and metadata lookup
// parse a path once.
type memoExtractor struct {
	next naming.Extractor

	mu     sync.Mutex
	fields map[string]naming.Fields
}

const memoLimit = 1024

func newMemoExtractor(next naming.Extractor) *memoExtractor {
	return &memoExtractor{next: next, fields: make(map[string]naming.Fields)}
}

func (m *memoExtractor) Extract(ctx context.Context, path string) (naming.Fields, error) {
	m.mu.Lock()
	f, ok := m.fields[path]
	m.mu.Unlock()
	if ok {
		return f, nil
	}
	f, err := m.next.Extract(ctx, path)
	if err != nil {
		return f, err
	}
	m.mu.Lock()
	if len(m.fields) >= memoLimit {
		clear(m.fields)
	}
	m.fields[path] = f
	m.mu.Unlock()
	return f, nil
}
