// Package settings persists per-conversation flags. The whole mapping is
// written on every mutation; the process is the sole writer, so a plain
// read-modify-write with an atomic rename is enough.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ChannelSettings are the per-conversation flags.
type ChannelSettings struct {
	RespondToAll bool `json:"respond_to_all"`
}

// Store holds the settings map in memory and mirrors it to a JSON file.
type Store struct {
	mu   sync.RWMutex
	path string
	data map[string]ChannelSettings
}

// Open loads the settings file, creating the parent directory if needed.
// A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: make(map[string]ChannelSettings),
	}

	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

// Get returns the settings for a conversation. Unknown conversations get
// the zero value.
func (s *Store) Get(conversationID string) ChannelSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[conversationID]
}

// Set updates a conversation's settings and writes the whole mapping to
// disk before returning. Last writer wins.
func (s *Store) Set(conversationID string, cs ChannelSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[conversationID] = cs
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: temp file → rename.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "settings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
