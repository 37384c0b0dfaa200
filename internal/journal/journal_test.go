package journal

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flowka-lab/Scenario-2/internal/outcome"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func entry(i int) Entry {
	return Entry{
		ID:      fmt.Sprintf("cmd-%03d", i),
		Time:    time.Date(2025, 11, 3, 6, i, 0, 0, time.UTC),
		Kind:    KindCommand,
		Source:  "text",
		Raw:     fmt.Sprintf("delay order %d by 1 hour", i),
		Payload: json.RawMessage(fmt.Sprintf(`{"intent":"delay_order","order_id":"ORD-%03d","minutes":60}`, i)),
		OK:      true,
		Message: "ok",
	}
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "journal.ndjson")

	j, err := Open(path, 10, testLogger())
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, j.Append(entry(i)))
	}
	require.NoError(t, j.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := Open(path, 10, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	got := reopened.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "cmd-001", got[0].ID)
	assert.Equal(t, "cmd-003", got[2].ID)
	assert.True(t, got[2].Time.Equal(entry(3).Time))
	assert.JSONEq(t, string(entry(3).Payload), string(got[2].Payload))

	recent := reopened.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "cmd-002", recent[0].ID)
}

func TestMemoryOnly(t *testing.T) {
	j, err := Open("", 2, nil)
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, j.Append(entry(i)))
	}
	got := j.Recent(10)
	require.Len(t, got, 2)
	assert.Equal(t, "cmd-004", got[0].ID)
	assert.NoError(t, j.Close())
}

func TestCompaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	j, err := Open(path, 3, testLogger())
	require.NoError(t, err)

	for i := 1; i <= 6; i++ {
		require.NoError(t, j.Append(entry(i)))
	}
	assert.Equal(t, 6, countLines(t, path))

	// The seventh entry pushes the file past twice the limit.
	require.NoError(t, j.Append(entry(7)))
	assert.Equal(t, 3, countLines(t, path))

	require.NoError(t, j.Append(entry(8)))
	assert.Equal(t, 4, countLines(t, path))
	require.NoError(t, j.Close())

	reopened, err := Open(path, 3, testLogger())
	require.NoError(t, err)
	defer reopened.Close()
	got := reopened.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "cmd-006", got[0].ID)
	assert.Equal(t, "cmd-008", got[2].ID)
}

func TestOpenSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.ndjson")
	first, err := json.Marshal(entry(1))
	require.NoError(t, err)
	second, err := json.Marshal(entry(2))
	require.NoError(t, err)
	content := string(first) + "\n{not json\n\n" + string(second) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	j, err := Open(path, 10, testLogger())
	require.NoError(t, err)
	defer j.Close()

	got := j.Recent(0)
	require.Len(t, got, 2)
	assert.Equal(t, "cmd-002", got[1].ID)
}

func TestUndoCandidate(t *testing.T) {
	j, err := Open("", 20, testLogger())
	require.NoError(t, err)

	_, ok := j.UndoCandidate("")
	assert.False(t, ok)

	require.NoError(t, j.Append(entry(1)))
	require.NoError(t, j.Append(entry(2)))
	failed := entry(3)
	failed.OK = false
	failed.Payload = nil
	failed.FailureKind = outcome.KindScheduleConflict
	require.NoError(t, j.Append(failed))

	got, ok := j.UndoCandidate("")
	require.True(t, ok)
	assert.Equal(t, "cmd-002", got.ID)

	require.NoError(t, j.Append(Entry{ID: "undo-1", Kind: KindUndo, OK: true, Undoes: "cmd-002"}))
	got, ok = j.UndoCandidate("")
	require.True(t, ok)
	assert.Equal(t, "cmd-001", got.ID)

	// A failed undo does not count.
	require.NoError(t, j.Append(Entry{ID: "undo-2", Kind: KindUndo, OK: false, Undoes: "cmd-001"}))
	got, ok = j.UndoCandidate("")
	require.True(t, ok)
	assert.Equal(t, "cmd-001", got.ID)

	require.NoError(t, j.Append(Entry{ID: "reset-1", Kind: KindReset, OK: true}))
	_, ok = j.UndoCandidate("")
	assert.False(t, ok)

	require.NoError(t, j.Append(entry(4)))
	got, ok = j.UndoCandidate("")
	require.True(t, ok)
	assert.Equal(t, "cmd-004", got.ID)
}

func TestUndoCandidateStopsAtOtherPlan(t *testing.T) {
	j, err := Open("", 20, testLogger())
	require.NoError(t, err)

	old := entry(1)
	old.Base = "plan-a"
	require.NoError(t, j.Append(old))

	_, ok := j.UndoCandidate("plan-b")
	assert.False(t, ok, "commands against another loaded plan are not undoable")

	got, ok := j.UndoCandidate("plan-a")
	require.True(t, ok)
	assert.Equal(t, "cmd-001", got.ID)

	current := entry(2)
	current.Base = "plan-b"
	require.NoError(t, j.Append(current))
	require.NoError(t, j.Append(Entry{ID: "undo-1", Kind: KindUndo, OK: true, Undoes: "cmd-002", Base: "plan-b"}))

	_, ok = j.UndoCandidate("plan-b")
	assert.False(t, ok)
}
