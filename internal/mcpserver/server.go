// Package mcpserver exposes the planner's command surface as Model Context
// Protocol tools so an assistant can read and edit the schedule.
package mcpserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Flowka-lab/Scenario-2/internal/gantt"
	"github.com/Flowka-lab/Scenario-2/internal/journal"
	"github.com/Flowka-lab/Scenario-2/internal/orchestrator"
	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

// Version is set by the linker at build time.
var Version = "dev"

const defaultHistoryLimit = 10

// Planner is the part of the orchestrator the tools drive.
type Planner interface {
	Submit(ctx context.Context, cmd orchestrator.Command) orchestrator.Result
	Undo(ctx context.Context) orchestrator.Result
	Snapshot() schedule.Snapshot
	History(n int) []journal.Entry
}

// SubmitCommandInput is the input for the submit_command tool.
type SubmitCommandInput struct {
	Text string `json:"text" jsonschema:"the planner command, for example: delay order 5 by 2 hours"`
}

// CommandOutput reports what a command did.
type CommandOutput struct {
	OK      bool         `json:"ok"`
	Message string       `json:"message"`
	Kind    string       `json:"kind,omitempty"`
	Tier    string       `json:"tier,omitempty"`
	Changes []ChangeView `json:"changes,omitempty"`
	Version uint64       `json:"version"`
}

// GetScheduleInput is the input for the get_schedule tool.
type GetScheduleInput struct {
	MaxOrders int      `json:"max_orders,omitempty" jsonschema:"show at most this many orders, earliest first (default: all)"`
	Products  []string `json:"products,omitempty" jsonschema:"only orders of these products"`
	Machines  []string `json:"machines,omitempty" jsonschema:"only orders on these machines, by id or name"`
	Chart     bool     `json:"chart,omitempty" jsonschema:"also return a plain-text Gantt chart"`
}

// GetScheduleOutput is the result of the get_schedule tool.
type GetScheduleOutput struct {
	Version     uint64        `json:"version"`
	Fingerprint string        `json:"fingerprint"`
	Orders      []OrderView   `json:"orders"`
	Machines    []MachineView `json:"machines"`
	Chart       string        `json:"chart,omitempty"`
}

// GetHistoryInput is the input for the get_history tool.
type GetHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of newest journal entries (default: 10)"`
}

// GetHistoryOutput is the result of the get_history tool.
type GetHistoryOutput struct {
	Entries []EntryView `json:"entries"`
}

// UndoInput is the input for the undo_command tool.
type UndoInput struct{}

// OrderView is an order with RFC 3339 timestamps.
type OrderView struct {
	ID      string `json:"id"`
	Product string `json:"product"`
	Machine string `json:"machine"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Status  string `json:"status,omitempty"`
	Due     string `json:"due,omitempty"`
}

// MachineView is a machine in the roster.
type MachineView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Products []string `json:"products,omitempty"`
}

// ChangeView is one order's move.
type ChangeView struct {
	OrderID string `json:"order_id"`
	Before  string `json:"before"`
	After   string `json:"after"`
}

// EntryView is one journal entry.
type EntryView struct {
	ID      string `json:"id"`
	Time    string `json:"ts"`
	Kind    string `json:"kind"`
	Source  string `json:"source,omitempty"`
	Raw     string `json:"raw,omitempty"`
	OK      bool   `json:"ok"`
	Failure string `json:"failure_kind,omitempty"`
	Message string `json:"message"`
}

// Service holds the planner the tool handlers drive.
type Service struct {
	planner Planner
	logger  *slog.Logger
}

// NewService creates a Service.
func NewService(p Planner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{planner: p, logger: logger}
}

// NewServer creates an MCP server with the planner tools registered.
func NewServer(svc *Service) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "planner",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "submit_command",
		Description: "Apply a natural-language scheduling command such as 'delay order 5 by 2 hours', 'swap order 1 with order 2' or 'move order 3 to FIN_1'. Rejected commands return ok=false with the reason.",
	}, svc.SubmitCommand)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_schedule",
		Description: "Return the current schedule: every order's machine and [start, end) interval, the machine roster, and optionally a text Gantt chart.",
	}, svc.GetSchedule)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_history",
		Description: "Return the newest command journal entries, oldest first.",
	}, svc.GetHistory)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "undo_command",
		Description: "Revert the most recent successful command that has not been undone yet.",
	}, svc.UndoCommand)

	return server
}

// RunStdio serves the tools on stdin and stdout until the client
// disconnects or ctx is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// SubmitCommand runs one command through the orchestrator.
func (s *Service) SubmitCommand(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SubmitCommandInput,
) (*mcp.CallToolResult, CommandOutput, error) {
	if input.Text == "" {
		return nil, CommandOutput{}, fmt.Errorf("text is required")
	}
	res := s.planner.Submit(ctx, orchestrator.Command{Text: input.Text, Source: orchestrator.SourceMCP})
	s.logger.Debug("mcp command handled", "command_id", res.ID, "ok", res.OK())
	return nil, commandOutput(res), nil
}

// UndoCommand reverts the last successful command.
func (s *Service) UndoCommand(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ UndoInput,
) (*mcp.CallToolResult, CommandOutput, error) {
	return nil, commandOutput(s.planner.Undo(ctx)), nil
}

// GetSchedule returns the filtered schedule.
func (s *Service) GetSchedule(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetScheduleInput,
) (*mcp.CallToolResult, GetScheduleOutput, error) {
	snap := s.planner.Snapshot()
	opts := gantt.Options{
		MaxOrders: input.MaxOrders,
		Products:  input.Products,
		Machines:  input.Machines,
		Renderer:  lipgloss.NewRenderer(io.Discard),
	}
	if opts.MaxOrders <= 0 {
		opts.MaxOrders = len(snap.Orders)
	}

	out := GetScheduleOutput{
		Version:     snap.Version,
		Fingerprint: snap.Fingerprint,
		Orders:      []OrderView{},
	}
	for _, o := range gantt.Filter(snap, opts) {
		out.Orders = append(out.Orders, orderView(o))
	}
	for _, m := range snap.Machines {
		out.Machines = append(out.Machines, MachineView{ID: m.ID, Name: m.Name, Products: m.Products})
	}
	if input.Chart {
		out.Chart = gantt.Render(snap, opts)
	}
	return nil, out, nil
}

// GetHistory returns the newest journal entries.
func (s *Service) GetHistory(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input GetHistoryInput,
) (*mcp.CallToolResult, GetHistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	out := GetHistoryOutput{Entries: []EntryView{}}
	for _, e := range s.planner.History(limit) {
		out.Entries = append(out.Entries, EntryView{
			ID:      e.ID,
			Time:    e.Time.Format(time.RFC3339),
			Kind:    string(e.Kind),
			Source:  e.Source,
			Raw:     e.Raw,
			OK:      e.OK,
			Failure: string(e.FailureKind),
			Message: e.Message,
		})
	}
	return nil, out, nil
}

func commandOutput(res orchestrator.Result) CommandOutput {
	out := CommandOutput{
		OK:      res.OK(),
		Message: res.Message,
		Tier:    string(res.Tier),
		Version: res.Snapshot.Version,
	}
	if res.Failure != nil {
		out.Kind = string(res.Failure.Kind)
	}
	if res.Outcome != nil {
		for _, c := range res.Outcome.Changes {
			out.Changes = append(out.Changes, changeView(c))
		}
	}
	return out
}

func changeView(c outcome.Change) ChangeView {
	return ChangeView{OrderID: c.OrderID, Before: c.Before.String(), After: c.After.String()}
}

func orderView(o schedule.Order) OrderView {
	v := OrderView{
		ID:      o.ID,
		Product: o.Product,
		Machine: o.Machine,
		Start:   o.Start.Format(time.RFC3339),
		End:     o.End.Format(time.RFC3339),
		Status:  string(o.Status),
	}
	if !o.Due.IsZero() {
		v.Due = o.Due.Format("2006-01-02")
	}
	return v
}
