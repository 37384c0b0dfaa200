package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Flowka-lab/Scenario-2/internal/clock"
	"github.com/Flowka-lab/Scenario-2/internal/orchestrator"
	"github.com/Flowka-lab/Scenario-2/internal/parser"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func at(h int) time.Time {
	return time.Date(2025, 11, 3, h, 0, 0, 0, time.UTC)
}

func newPlanner(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	machines := []schedule.Machine{
		{ID: "MIX_1", Name: "Mixing/Processing"},
		{ID: "FIN_1", Name: "Finishing/QC"},
	}
	orders := []schedule.Order{
		{ID: "ORD-001", Product: "VRAC_SHAMPOO_BASE", Machine: "MIX_1", Start: at(6), End: at(8)},
		{ID: "ORD-002", Product: "VRAC_HAIR_MASK", Machine: "MIX_1", Start: at(9), End: at(11)},
		{ID: "ORD-003", Product: "VRAC_SHAMPOO_BASE", Machine: "FIN_1", Start: at(8), End: at(10), Due: at(0).AddDate(0, 0, 2)},
	}
	store, err := schedule.New(orders, machines, testLogger())
	require.NoError(t, err)
	return orchestrator.New(store, parser.New(nil, testLogger()),
		orchestrator.Options{Clock: clock.Fake(at(12))}, testLogger())
}

func setupServerClient(t *testing.T) *mcp.ClientSession {
	t.Helper()

	server := NewServer(NewService(newPlanner(t), testLogger()))
	st, ct := mcp.NewInMemoryTransports()

	ctx := context.Background()
	_, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool[T any](t *testing.T, session *mcp.ClientSession, name string, args any) T {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, result.IsError, "%s should not return an error", name)
	require.NotNil(t, result.StructuredContent)

	raw, err := json.Marshal(result.StructuredContent)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestListTools(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{"get_history", "get_schedule", "submit_command", "undo_command"}, names)
}

func TestSubmitCommand(t *testing.T) {
	session := setupServerClient(t)

	out := callTool[CommandOutput](t, session, "submit_command", SubmitCommandInput{Text: "delay order one by 1 hour"})
	assert.True(t, out.OK)
	assert.Equal(t, "pattern", out.Tier)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, "ORD-001", out.Changes[0].OrderID)
	assert.Contains(t, out.Changes[0].After, "07:00")

	rejected := callTool[CommandOutput](t, session, "submit_command", SubmitCommandInput{Text: "delay order 1 by 2 hours"})
	assert.False(t, rejected.OK)
	assert.Equal(t, "schedule_conflict", rejected.Kind)
	assert.Contains(t, rejected.Message, "ORD-002")
	assert.Equal(t, out.Version, rejected.Version, "a rejected command leaves the schedule alone")
}

func TestSubmitCommandRequiresText(t *testing.T) {
	session := setupServerClient(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "submit_command",
		Arguments: SubmitCommandInput{},
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetSchedule(t *testing.T) {
	session := setupServerClient(t)

	out := callTool[GetScheduleOutput](t, session, "get_schedule", GetScheduleInput{})
	require.Len(t, out.Orders, 3)
	assert.Equal(t, "ORD-001", out.Orders[0].ID)
	assert.Equal(t, "2025-11-03T06:00:00Z", out.Orders[0].Start)
	assert.Equal(t, "2025-11-05", out.Orders[1].Due)
	assert.Len(t, out.Machines, 2)
	assert.NotEmpty(t, out.Fingerprint)
	assert.Empty(t, out.Chart)

	filtered := callTool[GetScheduleOutput](t, session, "get_schedule", GetScheduleInput{
		Machines: []string{"finishing/qc"},
		Chart:    true,
	})
	require.Len(t, filtered.Orders, 1)
	assert.Equal(t, "ORD-003", filtered.Orders[0].ID)
	assert.Contains(t, filtered.Chart, "Finishing/QC")
	assert.NotContains(t, filtered.Chart, "Mixing/Processing")
}

func TestHistoryAndUndo(t *testing.T) {
	session := setupServerClient(t)

	callTool[CommandOutput](t, session, "submit_command", SubmitCommandInput{Text: "swap order 1 with order 3"})
	callTool[CommandOutput](t, session, "submit_command", SubmitCommandInput{Text: "make it faster"})

	undo := callTool[CommandOutput](t, session, "undo_command", UndoInput{})
	assert.True(t, undo.OK)
	assert.Contains(t, undo.Message, "swap order 1 with order 3")

	history := callTool[GetHistoryOutput](t, session, "get_history", GetHistoryInput{})
	require.Len(t, history.Entries, 3)
	assert.Equal(t, "mcp", history.Entries[0].Source)
	assert.True(t, history.Entries[0].OK)
	assert.False(t, history.Entries[1].OK)
	assert.Equal(t, "unsupported_intent", history.Entries[1].Failure)
	assert.Equal(t, "undo", history.Entries[2].Kind)

	limited := callTool[GetHistoryOutput](t, session, "get_history", GetHistoryInput{Limit: 1})
	require.Len(t, limited.Entries, 1)
	assert.Equal(t, "undo", limited.Entries[0].Kind)

	again := callTool[CommandOutput](t, session, "undo_command", UndoInput{})
	assert.False(t, again.OK)
	assert.Equal(t, "nothing_to_undo", again.Kind)
}
