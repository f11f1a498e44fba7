package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps settings in memory and rewrites a JSON file on every
// change. An empty path keeps everything in memory.
type FileStore struct {
	mu      sync.RWMutex
	path    string
	entries map[string]fileEntry
	now     func() time.Time

	persistMu sync.Mutex
}

type fileEntry struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

type persistedFile struct {
	Version int                  `json:"version"`
	Entries map[string]fileEntry `json:"entries"`
	SavedAt int64                `json:"savedAt"`
}

func NewFileStore(path string) (*FileStore, error) {
	return NewFileStoreWithNow(path, time.Now)
}

func NewFileStoreWithNow(path string, now func() time.Time) (*FileStore, error) {
	s := &FileStore{path: path, entries: make(map[string]fileEntry), now: now}
	if path == "" {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("settings: load %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var file persistedFile
	if err := json.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.Version != 1 {
		return errors.New("unsupported settings file version")
	}
	for k, e := range file.Entries {
		s.entries[k] = e
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		return "", false, nil
	}
	return e.Value, true, nil
}

func (s *FileStore) Set(ctx context.Context, key, value string) error {
	return s.put(key, fileEntry{Value: value})
}

func (s *FileStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("settings: ttl must be positive")
	}
	return s.put(key, fileEntry{Value: value, ExpiresAt: s.now().Add(ttl).UnixMilli()})
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	if _, ok := s.entries[key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, key)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.persist(snapshot)
}

func (s *FileStore) put(key string, e fileEntry) error {
	s.mu.Lock()
	s.entries[key] = e
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	return s.persist(snapshot)
}

func (s *FileStore) expired(e fileEntry) bool {
	return e.ExpiresAt != 0 && s.now().UnixMilli() >= e.ExpiresAt
}

func (s *FileStore) snapshotLocked() map[string]fileEntry {
	out := make(map[string]fileEntry, len(s.entries))
	for k, e := range s.entries {
		if s.expired(e) {
			continue
		}
		out[k] = e
	}
	return out
}

func (s *FileStore) persist(entries map[string]fileEntry) error {
	if s.path == "" {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("settings: mkdir %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(persistedFile{Version: 1, Entries: entries, SavedAt: s.now().UnixMilli()}, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("settings: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings: chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("settings: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}
