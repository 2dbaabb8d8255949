package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Load when no result exists for a run id.
var ErrNotFound = errors.New("run not found")

// DiskStore keeps one JSON file per run, named <run_id>.json.
type DiskStore struct {
	mu  sync.Mutex
	dir string
}

// NewDiskStore returns a store rooted at dir. An empty dir means a private
// temp directory, created on first use.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{dir: dir}
}

// Save writes the result atomically, so a concurrent Load never sees a
// partial file.
func (s *DiskStore) Save(result *RunResult) error {
	if err := validID(result.ID); err != nil {
		return err
	}
	dir, err := s.root()
	if err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding run %s: %w", result.ID, err)
	}

	tmp, err := os.CreateTemp(dir, "."+result.ID+"-*")
	if err != nil {
		return fmt.Errorf("saving run %s: %w", result.ID, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("saving run %s: %w", result.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving run %s: %w", result.ID, err)
	}
	if err := os.Rename(tmp.Name(), s.path(dir, result.ID)); err != nil {
		return fmt.Errorf("saving run %s: %w", result.ID, err)
	}
	return nil
}

// Load reads a stored result. A run that was never saved yields an error
// wrapping ErrNotFound.
func (s *DiskStore) Load(runID string) (*RunResult, error) {
	if err := validID(runID); err != nil {
		return nil, err
	}
	dir, err := s.root()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(dir, runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	var result RunResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", runID, err)
	}
	return &result, nil
}

func (s *DiskStore) path(dir, runID string) string {
	return filepath.Join(dir, runID+".json")
}

func (s *DiskStore) root() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		dir, err := os.MkdirTemp("", "clibridge-runs-*")
		if err != nil {
			return "", fmt.Errorf("creating run directory: %w", err)
		}
		s.dir = dir
		return dir, nil
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}
	return s.dir, nil
}

// validID rejects anything that is not a UUID. Run ids become file names.
func validID(runID string) error {
	if err := uuid.Validate(runID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", runID, err)
	}
	return nil
}
