package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CriteriaFile = "criteria.yml"
	RulesFile    = "rules.yml"
)

// Store holds the current validated configuration and reloads it when the files change.
type Store struct {
	dir      string
	current  *Config
	modTimes map[string]time.Time
	mu       sync.RWMutex
}

func NewStore(dir string) *Store {
	return &Store{
		dir:      dir,
		modTimes: make(map[string]time.Time),
	}
}

// Load reads and validates both files. Any error leaves the store unchanged.
func (s *Store) Load() error {
	cfg, modTimes, err := s.read()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = cfg
	s.modTimes = modTimes

	slog.Debug("Configuration loaded", "dir", s.dir, "searches", len(cfg.Search.Searches),
		"exclusions", len(cfg.Rules.Exclusions), "signals", len(cfg.Rules.Signals))

	return nil
}

// Refresh reloads the files if either changed since the last successful load.
// On a validation failure the previous snapshot stays in place.
func (s *Store) Refresh() (bool, error) {
	changed, err := s.changed()
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}

	if err := s.Load(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Current() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Store) changed() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range []string{CriteriaFile, RulesFile} {
		info, err := os.Stat(filepath.Join(s.dir, name))
		if err != nil {
			return false, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if !info.ModTime().Equal(s.modTimes[name]) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) read() (*Config, map[string]time.Time, error) {
	modTimes := make(map[string]time.Time)

	search := defaultSearch()
	if err := readYAML(filepath.Join(s.dir, CriteriaFile), &search, modTimes); err != nil {
		return nil, nil, err
	}
	var rules Rules
	if err := readYAML(filepath.Join(s.dir, RulesFile), &rules, modTimes); err != nil {
		return nil, nil, err
	}

	setDefaults(&search)

	cfg := &Config{Search: search, Rules: rules}
	if err := Validate(cfg); err != nil {
		return nil, nil, err
	}

	return cfg, modTimes, nil
}

func readYAML(path string, out interface{}, modTimes map[string]time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML %s: %w", filepath.Base(path), err)
	}

	modTimes[filepath.Base(path)] = info.ModTime()
	return nil
}

// defaultSearch is decoded over, so only keys missing from criteria.yml keep these values.
// An explicit zero stays zero and is judged by Validate.
func defaultSearch() Search {
	return Search{
		General: General{
			CheckIntervalMinutes: 30,
			RequestDelayMin:      5,
			RequestDelayMax:      10,
			RequestTimeout:       30,
		},
		Thresholds: Thresholds{High: 15, Medium: 10},
		Retry: Retry{
			RateLimitAttempts: 4,
			BackoffBase:       30,
			BackoffMax:        600,
			BackoffFactor:     2,
			NetworkAttempts:   3,
			NetworkDelay:      10,
		},
	}
}

func setDefaults(search *Search) {
	for i := range search.Searches {
		c := &search.Searches[i]
		if c.Name == "" {
			c.Name = c.Brand + " " + c.Model
		}
	}
}
