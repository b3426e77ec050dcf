package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by Get for an unknown session.
var ErrNotFound = errors.New("state: session not found")

// Store is the session registry. Implementations must be safe for
// concurrent use and must never hand out a pointer they keep.
type Store interface {
	Get(ctx context.Context, id string) (*PipelineState, error)
	Put(ctx context.Context, s *PipelineState) error
	List(ctx context.Context) ([]string, error)
}

// MemStore keeps sessions in memory. Sessions are copied on the way in and
// out, with a separate slice keeping insertion order for List.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]*PipelineState
	order    []string
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*PipelineState)}
}

// Get returns a deep copy of the session.
func (m *MemStore) Get(_ context.Context, id string) (*PipelineState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return s.Clone(), nil
}

// Put stores a deep copy of s, replacing any previous version.
func (m *MemStore) Put(_ context.Context, s *PipelineState) error {
	if s == nil || s.SessionID == "" {
		return errors.New("state: put requires a session id")
	}
	cp := s.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.SessionID]; !exists {
		m.order = append(m.order, s.SessionID)
	}
	m.sessions[s.SessionID] = cp
	return nil
}

// List returns session ids in insertion order.
func (m *MemStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

// FileStore keeps one JSON document per session under a directory. It lets
// separate CLI invocations share sessions without cgo.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("state: invalid session id %q", id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

// Get reads the session document.
func (f *FileStore) Get(_ context.Context, id string) (*PipelineState, error) {
	p, err := f.path(id)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("state: read session: %w", err)
	}
	var s PipelineState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("state: decode session %s: %w", id, err)
	}
	return &s, nil
}

// Put writes the session through a temp file and rename.
func (f *FileStore) Put(_ context.Context, s *PipelineState) error {
	if s == nil {
		return errors.New("state: put requires a session")
	}
	p, err := f.path(s.SessionID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode session: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("state: write session: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("state: commit session: %w", err)
	}
	return nil
}

// List returns stored session ids sorted by name.
func (f *FileStore) List(_ context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("state: list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}
