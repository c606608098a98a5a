package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"MMDiag/internal/domain/models"
	domrepo "MMDiag/internal/domain/repository"
	applogger "MMDiag/pkg/logger"
)

// FileBaselineStore keeps one JSON document per instrument under a directory.
// Writes go through a temp file and rename so a crashed save never leaves a
// half-written baseline behind.
type FileBaselineStore struct {
	dir string
	l   *applogger.Logger
}

// NewFileBaselineStore creates the directory if needed.
func NewFileBaselineStore(dir string) (*FileBaselineStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("baseline directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create baseline dir: %w", err)
	}
	return &FileBaselineStore{dir: dir}, nil
}

// SetLogger injects a structured logger.
func (s *FileBaselineStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *FileBaselineStore) path(instrument string) string {
	name := strings.ToUpper(strings.ReplaceAll(instrument, string(filepath.Separator), "_"))
	return filepath.Join(s.dir, name+".json")
}

func (s *FileBaselineStore) Load(_ context.Context, instrument string) (*models.Baseline, error) {
	data, err := os.ReadFile(s.path(instrument))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrMissingBaseline
		}
		return nil, fmt.Errorf("read baseline %s: %w", instrument, err)
	}
	var b models.Baseline
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode baseline %s: %w", instrument, err)
	}
	return &b, nil
}

func (s *FileBaselineStore) Save(_ context.Context, b *models.Baseline) error {
	if b.Instrument == "" {
		return fmt.Errorf("baseline has no instrument")
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode baseline %s: %w", b.Instrument, err)
	}

	final := s.path(b.Instrument)
	tmp, err := os.CreateTemp(s.dir, ".baseline-*")
	if err != nil {
		return fmt.Errorf("temp baseline file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write baseline %s: %w", b.Instrument, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close baseline %s: %w", b.Instrument, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit baseline %s: %w", b.Instrument, err)
	}

	if s.l != nil {
		s.l.Debug("baseline saved",
			applogger.String("instrument", b.Instrument),
			applogger.Int("elapsed_days", b.ElapsedDays),
			applogger.String("state", string(b.State())),
		)
	}
	return nil
}

func (s *FileBaselineStore) Exists(_ context.Context, instrument string) (bool, error) {
	_, err := os.Stat(s.path(instrument))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat baseline %s: %w", instrument, err)
}

func (s *FileBaselineStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(out)
	return out, nil
}

var _ domrepo.BaselineStore = (*FileBaselineStore)(nil)
