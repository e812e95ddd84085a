package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/teslashibe/go-facecast/pkg/session"
	"gopkg.in/yaml.v3"
)

// DefaultPath returns the settings file path: FACECAST_CONFIG if set,
// otherwise $HOME/.config/facecast/settings.yaml.
func DefaultPath() string {
	if path := os.Getenv("FACECAST_CONFIG"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "settings.yaml"
	}
	return filepath.Join(home, ".config", "facecast", "settings.yaml")
}

// Store loads and saves session settings wholesale as YAML.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for path. An empty path uses DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// Path returns the settings file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the settings file. A missing file yields zero settings.
func (s *Store) Load() (session.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings session.Settings
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("config: read %s: %w", s.path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return session.Settings{}, fmt.Errorf("config: parse %s: %w", s.path, err)
	}
	return settings, nil
}

// Save writes settings atomically: a temp file in the same directory is
// renamed over the old one.
func (s *Store) Save(settings session.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("config: replace %s: %w", s.path, err)
	}
	return nil
}
