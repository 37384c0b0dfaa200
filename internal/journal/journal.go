// Package journal records every command the planner receives as NDJSON.
// The most recent entries are kept in memory for history and undo.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/Flowka-lab/Scenario-2/internal/fsutil"
	"github.com/Flowka-lab/Scenario-2/internal/ndjson"
	"github.com/Flowka-lab/Scenario-2/internal/outcome"
)

// DefaultMaxEntries is how many entries are kept when no limit is configured.
const DefaultMaxEntries = 50

// EntryKind distinguishes planner commands from session operations.
type EntryKind string

const (
	KindCommand EntryKind = "command"
	KindUndo    EntryKind = "undo"
	KindReset   EntryKind = "reset"
)

// Entry is one journal record.
type Entry struct {
	ID          string           `json:"id"`
	Time        time.Time        `json:"ts"`
	Kind        EntryKind        `json:"kind"`
	Source      string           `json:"source,omitempty"`
	Raw         string           `json:"raw,omitempty"`
	Normalized  string           `json:"normalized,omitempty"`
	Tier        string           `json:"tier,omitempty"`
	Template    string           `json:"template,omitempty"`
	Payload     json.RawMessage  `json:"payload,omitempty"`
	OK          bool             `json:"ok"`
	FailureKind outcome.Kind     `json:"failure_kind,omitempty"`
	Message     string           `json:"message"`
	Debug       string           `json:"debug,omitempty"`
	Changes     []outcome.Change `json:"changes,omitempty"`
	// Undoes is the ID of the entry an undo compensated.
	Undoes string `json:"undoes,omitempty"`
	// Base is the fingerprint of the loaded plan the entry was applied to.
	Base string `json:"base,omitempty"`
}

// Journal appends entries to a file and keeps the newest in memory. A
// journal with no path is memory-only.
type Journal struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *ndjson.Encoder
	entries []Entry
	onDisk  int
	max     int
	logger  *slog.Logger
}

// Open loads the tail of an existing journal and opens it for appending.
// Malformed lines are skipped. When the file holds more than twice max
// entries it is rewritten with only the newest max.
func Open(path string, max int, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if max <= 0 {
		max = DefaultMaxEntries
	}
	j := &Journal{path: path, max: max, logger: logger}
	if path == "" {
		return j, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	if j.onDisk > 2*j.max {
		if err := j.compact(); err != nil {
			return nil, err
		}
	}
	if err := j.openForAppend(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) load() error {
	f, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	dec := ndjson.NewDecoder(f, j.logger)
	skipped := 0
	for {
		var e Entry
		last := dec.Line()
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if dec.Line() == last {
				// The scanner cannot continue past an unreadable line.
				j.logger.Warn("journal truncated at unreadable line", "path", j.path, "line", last+1, "error", err)
				break
			}
			skipped++
			continue
		}
		j.onDisk++
		j.push(e)
	}
	if skipped > 0 {
		j.logger.Warn("skipped malformed journal lines", "path", j.path, "count", skipped)
	}
	return nil
}

func (j *Journal) compact() error {
	var buf bytes.Buffer
	enc := ndjson.NewEncoder(&buf, j.logger)
	for _, e := range j.entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to compact journal: %w", err)
		}
	}
	if err := fsutil.AtomicWrite(j.path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to compact journal: %w", err)
	}
	j.logger.Debug("journal compacted", "path", j.path, "from", j.onDisk, "to", len(j.entries))
	j.onDisk = len(j.entries)
	return nil
}

func (j *Journal) openForAppend() error {
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open journal file: %w", err)
	}
	j.file = file
	j.encoder = ndjson.NewEncoder(file, j.logger)
	return nil
}

func (j *Journal) push(e Entry) {
	j.entries = append(j.entries, e)
	if over := len(j.entries) - j.max; over > 0 {
		j.entries = slices.Delete(j.entries, 0, over)
	}
}

// Append records an entry.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.encoder != nil {
		if err := j.encoder.Encode(e); err != nil {
			return fmt.Errorf("failed to append journal entry: %w", err)
		}
		j.onDisk++
	}
	j.push(e)

	if j.file != nil && j.onDisk > 2*j.max {
		if err := j.file.Close(); err != nil {
			return fmt.Errorf("failed to close journal: %w", err)
		}
		j.file, j.encoder = nil, nil
		if err := j.compact(); err != nil {
			return err
		}
		return j.openForAppend()
	}
	return nil
}

// Recent returns up to n of the newest entries, oldest first. n <= 0
// returns every retained entry.
func (j *Journal) Recent(n int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n <= 0 || n > len(j.entries) {
		n = len(j.entries)
	}
	return slices.Clone(j.entries[len(j.entries)-n:])
}

// UndoCandidate returns the newest successful command that has not been
// undone. Undo never reaches back past a reset or past an entry recorded
// against a loaded plan other than base.
func (j *Journal) UndoCandidate(base string) (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	undone := make(map[string]bool)
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.Base != base {
			return Entry{}, false
		}
		switch e.Kind {
		case KindReset:
			if e.OK {
				return Entry{}, false
			}
		case KindUndo:
			if e.OK && e.Undoes != "" {
				undone[e.Undoes] = true
			}
		case KindCommand:
			if e.OK && len(e.Payload) > 0 && !undone[e.ID] {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		err := j.file.Close()
		j.file, j.encoder = nil, nil
		return err
	}
	return nil
}
