// Package gamefile reads and writes the game's setup file: the vote rights
// table and the players' combat data.
package gamefile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/mafiabot/internal/domain/model"
	"github.com/okian/mafiabot/pkg/logger"
)

// File is the on-disk setup.
type File struct {
	Rights  []model.Rights `yaml:"rights"`
	Players []model.Player `yaml:"players,omitempty"`
}

// Load reads the file at path. A missing file yields empty tables.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return File{}, nil
	}
	if err != nil {
		return File{}, fmt.Errorf("gamefile: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("gamefile: parse %s: %w", path, err)
	}
	f.normalize()
	return f, nil
}

func (f *File) normalize() {
	for i := range f.Rights {
		r := &f.Rights[i]
		if r.Key == "" {
			r.Key = model.Key(r.Name)
		}
	}
	for i := range f.Players {
		p := &f.Players[i]
		if p.Key == "" {
			p.Key = model.Key(p.Name)
		}
	}
}

// Save writes f to path, replacing the file atomically.
func Save(path string, f File) error { //nolint:gocritic // hugeParam: written once per replacement
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("gamefile: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("gamefile: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".gamefile-*.yaml")
	if err != nil {
		return fmt.Errorf("gamefile: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("gamefile: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("gamefile: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("gamefile: replace %s: %w", path, err)
	}
	return nil
}

// Source serves the rights table from a setup file and writes replacements
// back to it.
type Source struct {
	mu     sync.Mutex
	path   string
	logger logger.Logger
}

// NewSource creates a Source over the file at path.
func NewSource(path string, l logger.Logger) *Source {
	return &Source{path: path, logger: logger.OrGet(l).Named("gamefile")}
}

// LoadRights returns the rights table and the configured combat data.
func (s *Source) LoadRights(ctx context.Context) ([]model.Rights, []model.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := Load(s.path)
	if err != nil {
		return nil, nil, err
	}
	if len(f.Rights) == 0 {
		s.logger.Warn(ctx, "rights table is empty", logger.String("path", s.path))
	}
	return f.Rights, f.Players, nil
}

// SaveRights replaces the rights table and keeps the rest of the file.
func (s *Source) SaveRights(ctx context.Context, rights []model.Rights) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := Load(s.path)
	if err != nil {
		return err
	}
	f.Rights = rights
	if err := Save(s.path, f); err != nil {
		return err
	}
	s.logger.Info(ctx, "rights table written back", logger.Int("rows", len(rights)))
	return nil
}
