package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// State is the persisted form of the gate: the open ledger plus the daily
// session counters. Cooldown clocks are not persisted.
type State struct {
	Positions   map[string]Entry `json:"positions"`
	DailyPnL    float64          `json:"daily_pnl"`
	DailyTrades int              `json:"daily_trades"`
	DayStart    time.Time        `json:"day_start"`
	Halted      bool             `json:"halted"`
	HaltReason  string           `json:"halt_reason"`
	SavedAt     time.Time        `json:"saved_at"`
}

// Store loads and saves gate state.
type Store interface {
	// Load returns nil, nil when nothing has been saved yet.
	Load() (*State, error)
	Save(State) error
}

// FileStore keeps the state in a JSON file, replaced atomically on every
// save.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file.
func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("risk: read state %s: %w", s.path, err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("risk: decode state %s: %w", s.path, err)
	}
	if st.Positions == nil {
		st.Positions = make(map[string]Entry)
	}
	return &st, nil
}

// Save writes the state to a temp file and renames it over the target so a
// crash never leaves a truncated file behind.
func (s *FileStore) Save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("risk: encode state: %w", err)
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".risk-state-*")
	if err != nil {
		return fmt.Errorf("risk: create temp state: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("risk: write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("risk: close state: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("risk: replace state: %w", err)
	}
	return nil
}
