// Package store persists the editable settings as a JSON blob.
//
// Each key is stored as its own file: <key>.json. Writes use atomic file
// replacement (write to .tmp, then rename) so a crash mid-save never leaves
// a truncated blob behind. The engine saves after every settings change and
// book discovery; startup overlays the saved blob on the file defaults.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"arb-monitor/internal/config"
)

// SettingsKey is the fixed key of the settings blob.
const SettingsKey = "arb_settings_v1"

var validKey = regexp.MustCompile(`^[a-z0-9_]+$`)

// Store keeps blobs in a directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid store key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Put atomically replaces the blob under key.
func (s *Store) Put(key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	return nil
}

// Get returns the blob under key.
// Returns nil, nil if nothing was saved yet.
func (s *Store) Get(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// SaveSettings persists s under SettingsKey.
func (s *Store) SaveSettings(settings config.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.Put(SettingsKey, data)
}

// LoadSettings overlays the saved blob on base. found is false when no blob
// exists, in which case base is returned unchanged.
func (s *Store) LoadSettings(base config.Settings) (settings config.Settings, found bool, err error) {
	data, err := s.Get(SettingsKey)
	if err != nil {
		return base, false, err
	}
	if data == nil {
		return base, false, nil
	}
	out, err := base.Overlay(data)
	if err != nil {
		return base, true, err
	}
	return out, true, nil
}
