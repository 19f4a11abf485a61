package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileKV keeps every slot in one JSON file, rewritten atomically on each change.
//
// Local development only: there is no locking across processes.
type FileKV struct {
	filePath string
	mu       sync.RWMutex
	slots    map[string]string
}

// NewFileKV opens (or creates) the file at filePath.
func NewFileKV(filePath string) (*FileKV, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	s := &FileKV{
		filePath: filePath,
		slots:    make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileKV) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &s.slots); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return nil
}

// save must be called with s.mu held.
func (s *FileKV) save() error {
	data, err := json.MarshalIndent(s.slots, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

func (s *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.slots[key]
	if !ok {
		return nil, ErrNotFound
	}
	return []byte(raw), nil
}

func (s *FileKV) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = string(value)
	return s.save()
}

func (s *FileKV) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[key]; !ok {
		return nil
	}
	delete(s.slots, key)
	return s.save()
}

func (s *FileKV) Close() error { return nil }
