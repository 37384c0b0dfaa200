// Package session persists the edited schedule between planner invocations
// so that one-shot commands compose.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Flowka-lab/Scenario-2/internal/fsutil"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

// FormatVersion is written into every state file.
const FormatVersion = 1

var (
	// ErrStale means the state was saved against a different loaded plan,
	// for example after orders.csv changed.
	ErrStale = errors.New("session state is stale")
	// ErrCorrupt means the stored orders do not match their fingerprint.
	ErrCorrupt = errors.New("session state is corrupt")
)

// State is the persisted session.
type State struct {
	Version int `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	// BaseFingerprint identifies the loaded plan the edits apply to.
	BaseFingerprint string           `json:"base_fingerprint"`
	Fingerprint     string           `json:"fingerprint"`
	Orders          []schedule.Order `json:"orders"`
}

// Save writes the current schedule atomically.
func Save(path, baseFingerprint string, snap schedule.Snapshot, now time.Time) error {
	state := State{
		Version:         FormatVersion,
		SavedAt:         now.UTC(),
		BaseFingerprint: baseFingerprint,
		Fingerprint:     snap.Fingerprint,
		Orders:          snap.Orders,
	}
	if err := fsutil.AtomicWriteJSON(path, state); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load reads a state file. A missing file returns an error matching
// os.ErrNotExist.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if state.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, state.Version)
	}
	return &state, nil
}

// Verify checks the state against the loaded plan and the machine roster.
func (s *State) Verify(baseFingerprint string, machines []schedule.Machine) error {
	if s.BaseFingerprint != baseFingerprint {
		return ErrStale
	}
	if got := schedule.Fingerprint(s.Orders, machines); got != s.Fingerprint {
		return fmt.Errorf("%w: fingerprint %s does not match %s", ErrCorrupt, got, s.Fingerprint)
	}
	return nil
}

// Resume restores a saved session into store. A missing state file is not
// an error; a stale or corrupt one is logged and ignored so the planner
// starts from the loaded plan.
func Resume(path string, store *schedule.Store, logger *slog.Logger) (bool, error) {
	if path == "" {
		return false, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	state, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if errors.Is(err, ErrCorrupt) {
		logger.Warn("ignoring unreadable session state", "path", path, "error", err)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	base := store.Snapshot()
	if err := state.Verify(base.Fingerprint, base.Machines); err != nil {
		logger.Warn("ignoring session state", "path", path, "error", err)
		return false, nil
	}
	if _, err := store.Restore(state.Orders); err != nil {
		logger.Warn("ignoring inconsistent session state", "path", path, "error", err)
		return false, nil
	}
	logger.Debug("session resumed", "path", path, "saved_at", state.SavedAt)
	return true, nil
}

// Remove deletes the state file. A missing file is not an error.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}
