package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when loading or deleting a workflow name that has
// no file.
var ErrNotFound = errors.New("workflow not found")

// Store persists workflows as YAML files in a directory, keyed by workflow
// name.
type Store struct {
	dir    string
	logger zerolog.Logger
}

func NewStore(dir string, logger zerolog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

func (s *Store) path(name string) string {
	// Workflow names become filenames; strip path separators.
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	return filepath.Join(s.dir, name+".yaml")
}

func (s *Store) Save(w Workflow) error {
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("workflow name is empty")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create workflows dir: %w", err)
	}
	data, err := yaml.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	path := s.path(w.Name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	s.logger.Info().Str("name", w.Name).Str("path", path).Msg("workflow saved")
	return nil
}

func (s *Store) Load(name string) (Workflow, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return Workflow{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Workflow{}, fmt.Errorf("read workflow: %w", err)
	}
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Workflow{}, fmt.Errorf("parse workflow %s: %w", name, err)
	}
	return w, nil
}

// List loads every workflow in the directory, sorted by name. Files that
// fail to parse are skipped with a warning.
func (s *Store) List() ([]Workflow, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}
	var out []Workflow
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".yaml")
		w, err := s.Load(name)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable workflow")
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Delete(name string) error {
	path := s.path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	s.logger.Info().Str("name", name).Msg("workflow deleted")
	return nil
}
