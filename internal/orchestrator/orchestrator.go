// Package orchestrator runs the command pipeline: build a resolution context
// from the live schedule, parse the text into an intent, apply it, and
// journal the result. Commands are handled one at a time.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Flowka-lab/Scenario-2/internal/clock"
	"github.com/Flowka-lab/Scenario-2/internal/executor"
	"github.com/Flowka-lab/Scenario-2/internal/intent"
	"github.com/Flowka-lab/Scenario-2/internal/journal"
	"github.com/Flowka-lab/Scenario-2/internal/outcome"
	"github.com/Flowka-lab/Scenario-2/internal/parser"
	"github.com/Flowka-lab/Scenario-2/internal/resolve"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
)

// Command sources recorded in the journal.
const (
	SourceText  = "text"
	SourceVoice = "voice/deepgram"
	SourceMCP   = "mcp"
)

// DefaultRetryDelay separates a failed collaborator call from its retry.
const DefaultRetryDelay = 500 * time.Millisecond

// Parser turns command text into an intent.
type Parser interface {
	Parse(ctx context.Context, text string, rc *resolve.Context) (parser.Result, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Command is one planner request.
type Command struct {
	Text   string
	Source string
}

// Result is what a command produced. Exactly one of Outcome and Failure is
// set. Snapshot is the schedule after the command.
type Result struct {
	ID         string            `json:"id"`
	Source     string            `json:"source"`
	Text       string            `json:"text"`
	Normalized string            `json:"normalized,omitempty"`
	Tier       parser.Tier       `json:"tier,omitempty"`
	Template   string            `json:"template,omitempty"`
	Outcome    *outcome.Outcome  `json:"outcome,omitempty"`
	Failure    *outcome.Failure  `json:"failure,omitempty"`
	Snapshot   schedule.Snapshot `json:"-"`
	Message    string            `json:"message"`
	Debug      string            `json:"debug,omitempty"`
	At         time.Time         `json:"at"`
}

// OK reports whether the command changed the schedule.
func (r Result) OK() bool { return r.Failure == nil }

// Options tune the orchestrator. The zero value never retries and keeps a
// memory-only journal.
type Options struct {
	// Retries is how many times a collaborator call is repeated after
	// KindCollaboratorUnavailable. It is clamped to 0 or 1.
	Retries    int
	RetryDelay time.Duration
	Clock      clock.Clock
	Journal    *journal.Journal
	// OnChange is called with the new schedule after every applied change.
	OnChange func(schedule.Snapshot)
}

// Orchestrator serializes commands against one schedule store.
type Orchestrator struct {
	mu       sync.Mutex
	store    *schedule.Store
	executor *executor.Executor
	parser   Parser
	journal  *journal.Journal
	clock    clock.Clock
	retries  int
	delay    time.Duration
	onChange func(schedule.Snapshot)
	logger   *slog.Logger
}

// New wires an orchestrator.
func New(store *schedule.Store, p Parser, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:    store,
		executor: executor.New(store, logger),
		parser:   p,
		journal:  opts.Journal,
		clock:    opts.Clock,
		retries:  min(max(opts.Retries, 0), 1),
		delay:    opts.RetryDelay,
		onChange: opts.OnChange,
		logger:   logger,
	}
	if o.clock == nil {
		o.clock = clock.Real()
	}
	if o.delay <= 0 {
		o.delay = DefaultRetryDelay
	}
	if o.journal == nil {
		o.journal, _ = journal.Open("", journal.DefaultMaxEntries, logger)
	}
	return o
}

// Snapshot returns the current schedule.
func (o *Orchestrator) Snapshot() schedule.Snapshot {
	return o.store.Snapshot()
}

// History returns up to n of the newest journal entries, oldest first.
func (o *Orchestrator) History(n int) []journal.Entry {
	return o.journal.Recent(n)
}

// Submit runs one command through the pipeline. It never returns a raw
// error: every problem is reported as Result.Failure.
func (o *Orchestrator) Submit(ctx context.Context, cmd Command) (res Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.recoverCommand(&res, cmd, journal.KindCommand)
	return o.submitLocked(ctx, cmd)
}

// SubmitAudio transcribes audio and submits the transcript as a voice
// command.
func (o *Orchestrator) SubmitAudio(ctx context.Context, t Transcriber, audio []byte, contentType string) (res Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.recoverCommand(&res, Command{Source: SourceVoice}, journal.KindCommand)

	var text string
	err := o.withRetry(ctx, "transcription", func() error {
		var err error
		text, err = t.Transcribe(ctx, audio, contentType)
		if err != nil {
			if _, ok := outcome.AsFailure(err); !ok {
				return outcome.Failf(outcome.KindCollaboratorUnavailable,
					"transcription is unavailable, try again or type the command").Wrap(err).WithDetail(err.Error())
			}
		}
		return err
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = outcome.Failf(outcome.KindUnsupportedIntent, "No speech detected")
	}
	if err != nil {
		res = o.newResult(Command{Source: SourceVoice})
		o.fail(&res, err)
		o.record(res, journal.KindCommand, nil, "")
		return res
	}

	o.logger.Debug("transcribed audio", "chars", len(text))
	return o.submitLocked(ctx, Command{Text: text, Source: SourceVoice})
}

// Undo applies the compensating intent of the newest successful command
// that has not been undone yet.
func (o *Orchestrator) Undo(ctx context.Context) (res Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.recoverCommand(&res, Command{Text: ":undo", Source: SourceText}, journal.KindUndo)

	res = o.newResult(Command{Text: ":undo", Source: SourceText})
	target, ok := o.journal.UndoCandidate(o.store.Base())
	if !ok {
		o.fail(&res, outcome.Failf(outcome.KindNothingToUndo, "Nothing to undo"))
		o.record(res, journal.KindUndo, nil, "")
		return res
	}

	applied, err := intent.Decode(target.Payload)
	if err != nil {
		o.fail(&res, err)
		o.record(res, journal.KindUndo, nil, target.ID)
		return res
	}
	comp, err := executor.Compensation(outcome.Outcome{Applied: applied, Changes: target.Changes})
	if err != nil {
		o.fail(&res, err)
		o.record(res, journal.KindUndo, nil, target.ID)
		return res
	}

	o.apply(&res, comp)
	if res.OK() {
		res.Message = "Undid " + strings.TrimSpace(target.Raw) + ": " + res.Message
	}
	o.record(res, journal.KindUndo, comp, target.ID)
	return res
}

// Reset restores the schedule that was loaded at start.
func (o *Orchestrator) Reset(ctx context.Context) Result {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := o.newResult(Command{Text: ":reset", Source: SourceText})
	res.Snapshot = o.store.Reset()
	res.Message = "Schedule reset to the loaded plan"
	o.logger.Info("schedule reset", "command_id", res.ID, "version", res.Snapshot.Version)
	o.notify(res.Snapshot)
	o.record(res, journal.KindReset, nil, "")
	return res
}

// MarkReset journals a reset without touching the schedule. It is used when
// the schedule was reloaded from the data files behind the journal's back,
// so that undo does not reach commands the live schedule never saw.
func (o *Orchestrator) MarkReset(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := o.newResult(Command{Text: ":reset", Source: SourceText})
	res.Message = reason
	o.record(res, journal.KindReset, nil, "")
}

func (o *Orchestrator) submitLocked(ctx context.Context, cmd Command) Result {
	if cmd.Source == "" {
		cmd.Source = SourceText
	}
	res := o.newResult(cmd)
	logger := o.logger.With("command_id", res.ID, "source", cmd.Source)
	logger.Info("command received", "text", cmd.Text)

	rc := resolve.NewContext(o.store.Snapshot())
	var parsed parser.Result
	err := o.withRetry(ctx, "model", func() error {
		var err error
		parsed, err = o.parser.Parse(ctx, cmd.Text, rc)
		return err
	})
	res.Normalized = parsed.Normalized
	res.Tier = parsed.Tier
	res.Template = parsed.Template
	if parsed.ModelReply != "" {
		res.Debug = parsed.ModelReply
	}
	if err != nil {
		o.fail(&res, err)
		logger.Info("command not understood", "tier", res.Tier, "kind", res.Failure.Kind)
		o.record(res, journal.KindCommand, nil, "")
		return res
	}

	logger.Debug("command parsed", "tier", parsed.Tier, "template", parsed.Template, "intent", parsed.Intent.Describe())
	o.apply(&res, parsed.Intent)
	if res.OK() {
		logger.Info("command applied", "intent", parsed.Intent.Kind(), "order_id", strings.Join(parsed.Intent.Orders(), ","))
	} else {
		logger.Info("command rejected", "intent", parsed.Intent.Kind(), "kind", res.Failure.Kind)
	}
	o.record(res, journal.KindCommand, parsed.Intent, "")
	return res
}

func (o *Orchestrator) apply(res *Result, in intent.Intent) {
	out, snap, err := o.executor.Apply(in)
	res.Snapshot = snap
	if err != nil {
		o.fail(res, err)
		return
	}
	res.Outcome = &out
	res.Message = out.Message
	o.notify(snap)
}

// withRetry repeats fn once more when it fails with
// KindCollaboratorUnavailable and retries are enabled.
func (o *Orchestrator) withRetry(ctx context.Context, what string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		f, ok := outcome.AsFailure(err)
		if err == nil || !ok || f.Kind != outcome.KindCollaboratorUnavailable || attempt >= o.retries {
			return err
		}
		o.logger.Warn("collaborator unavailable, retrying", "collaborator", what, "attempt", attempt+1, "error", f.Detail)
		select {
		case <-ctx.Done():
			return err
		case <-o.clock.After(o.delay):
		}
	}
}

func (o *Orchestrator) newResult(cmd Command) Result {
	return Result{
		ID:       uuid.NewString(),
		Source:   cmd.Source,
		Text:     cmd.Text,
		At:       o.clock.Now(),
		Snapshot: o.store.Snapshot(),
	}
}

func (o *Orchestrator) fail(res *Result, err error) {
	f := outcome.FromError(err)
	res.Failure = f
	res.Outcome = nil
	res.Message = f.UserMessage()
	// A raw model reply is the more useful diagnostic when there is one.
	if res.Debug == "" {
		res.Debug = f.Detail
	}
	if f.Kind == outcome.KindInternal {
		o.logger.Error("command failed", "command_id", res.ID, "error", err)
	}
}

// recoverCommand turns a panic inside the pipeline into an internal failure
// so the caller still gets a journaled Result.
func (o *Orchestrator) recoverCommand(res *Result, cmd Command, kind journal.EntryKind) {
	r := recover()
	if r == nil {
		return
	}
	o.logger.Error("command panicked", "panic", r, "stack", string(debug.Stack()))
	if cmd.Source == "" {
		cmd.Source = SourceText
	}
	*res = o.newResult(cmd)
	o.fail(res, outcome.Failf(outcome.KindInternal, "internal error").WithDetail(fmt.Sprint(r)))
	o.record(*res, kind, nil, "")
}

func (o *Orchestrator) notify(snap schedule.Snapshot) {
	if o.onChange != nil {
		o.onChange(snap)
	}
}

func (o *Orchestrator) record(res Result, kind journal.EntryKind, in intent.Intent, undoes string) {
	e := journal.Entry{
		ID:         res.ID,
		Time:       res.At,
		Kind:       kind,
		Source:     res.Source,
		Raw:        res.Text,
		Normalized: res.Normalized,
		Tier:       string(res.Tier),
		Template:   res.Template,
		OK:         res.OK(),
		Message:    res.Message,
		Debug:      res.Debug,
		Undoes:     undoes,
		Base:       o.store.Base(),
	}
	if in != nil {
		if payload, err := json.Marshal(in); err == nil {
			e.Payload = payload
		}
	}
	if res.Failure != nil {
		e.FailureKind = res.Failure.Kind
	}
	if res.Outcome != nil {
		e.Changes = res.Outcome.Changes
	}
	if err := o.journal.Append(e); err != nil {
		o.logger.Warn("failed to journal command", "command_id", res.ID, "error", err)
	}
}
