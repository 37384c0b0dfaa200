package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Flowka-lab/Scenario-2/internal/config"
	"github.com/Flowka-lab/Scenario-2/internal/dataset"
	"github.com/Flowka-lab/Scenario-2/internal/gantt"
	"github.com/Flowka-lab/Scenario-2/internal/journal"
	"github.com/Flowka-lab/Scenario-2/internal/llm"
	"github.com/Flowka-lab/Scenario-2/internal/orchestrator"
	"github.com/Flowka-lab/Scenario-2/internal/parser"
	"github.com/Flowka-lab/Scenario-2/internal/schedule"
	"github.com/Flowka-lab/Scenario-2/internal/session"
	"github.com/Flowka-lab/Scenario-2/internal/transcribe"
	"github.com/Flowka-lab/Scenario-2/internal/transcript"
)

// planner is one loaded schedule with everything needed to edit it.
type planner struct {
	cfg       *config.Config
	cfgPath   string
	logger    *slog.Logger
	store     *schedule.Store
	orch      *orchestrator.Orchestrator
	journal   *journal.Journal
	formatter *transcript.Formatter
	// base is the fingerprint of the schedule as loaded from the data files.
	base string
}

// openPlanner reads the global flags and loads the planner they describe.
func openPlanner(cmd *cobra.Command) (*planner, error) {
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, cfgPath, err := loadOrCreateConfig(configPath, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded configuration", "path", cfgPath)

	p, err := newPlanner(cmd.Context(), cfg, cfgPath, logger)
	if err != nil {
		return nil, err
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		p.formatter.ShowDebug = true
	}
	return p, nil
}

func newPlanner(ctx context.Context, cfg *config.Config, cfgPath string, logger *slog.Logger) (*planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ResolvePaths(filepath.Dir(cfgPath))

	loc, err := cfg.Data.Location()
	if err != nil {
		return nil, err
	}
	baseStart, err := cfg.Data.BaseStartTime(loc)
	if err != nil {
		return nil, err
	}

	orders, machines, err := dataset.Load(ctx, cfg.Data.OrdersPath, cfg.Data.LinesPath, dataset.Options{
		BaseStart: baseStart,
		Location:  loc,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	store, err := schedule.New(orders, machines, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}

	p := &planner{
		cfg:       cfg,
		cfgPath:   cfgPath,
		logger:    logger,
		store:     store,
		formatter: transcript.NewFormatter(),
		base:      store.Snapshot().Fingerprint,
	}

	_, statErr := os.Stat(cfg.Data.StatePath)
	hadState := cfg.Data.StatePath != "" && statErr == nil
	resumed, err := session.Resume(cfg.Data.StatePath, store, logger)
	if err != nil {
		return nil, err
	}
	if resumed {
		logger.Info("resumed session", "path", cfg.Data.StatePath)
	}

	p.journal, err = journal.Open(cfg.Journal.Path, cfg.Journal.MaxEntries, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	caller, err := newModelCaller(cfg.Model, logger)
	if err != nil {
		p.journal.Close()
		return nil, err
	}

	p.orch = orchestrator.New(store, parser.New(caller, logger), orchestrator.Options{
		Retries:  cfg.Model.Retries,
		Journal:  p.journal,
		OnChange: p.saveSession,
	}, logger)
	if hadState && !resumed {
		p.orch.MarkReset("Session state discarded, continuing from the loaded plan")
		if err := session.Remove(cfg.Data.StatePath); err != nil {
			logger.Warn("failed to remove session state", "path", cfg.Data.StatePath, "error", err)
		}
	}
	return p, nil
}

func (p *planner) Close() error {
	return p.journal.Close()
}

// saveSession persists every change so the next invocation continues from
// it. A schedule back at the loaded plan needs no state file.
func (p *planner) saveSession(snap schedule.Snapshot) {
	path := p.cfg.Data.StatePath
	if path == "" {
		return
	}
	var err error
	if snap.Fingerprint == p.base {
		err = session.Remove(path)
	} else {
		err = session.Save(path, p.base, snap, time.Now())
	}
	if err != nil {
		p.logger.Warn("failed to persist session", "path", path, "error", err)
	}
}

// newModelCaller builds the caller for the parser's model tier. A nil
// caller disables the tier.
func newModelCaller(m config.Model, logger *slog.Logger) (llm.Caller, error) {
	var caller llm.Caller
	switch m.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderExec:
		c, err := llm.NewCommand(m.Cmd, nil, logger)
		if err != nil {
			return nil, err
		}
		caller = c
	default:
		key := m.APIKey()
		if key == "" {
			logger.Warn("model tier disabled: API key not set", "env", m.APIKeyEnv)
			return nil, nil
		}
		caller = llm.NewOpenAI(key,
			llm.WithEndpoint(m.Endpoint),
			llm.WithModel(m.Model),
			llm.WithTimeout(m.Timeout()),
			llm.WithLogger(logger))
	}
	return withDeadline(caller, m.Timeout()), nil
}

// withDeadline bounds every call to the caller by d.
func withDeadline(c llm.Caller, d time.Duration) llm.Caller {
	if d <= 0 {
		return c
	}
	return llm.CallerFunc(func(ctx context.Context, prompt llm.Prompt) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return c.Complete(ctx, prompt)
	})
}

func newTranscriber(t config.Transcription, logger *slog.Logger) (orchestrator.Transcriber, error) {
	if t.Provider == config.ProviderNone {
		return nil, fmt.Errorf("transcription is disabled\n\nHint: Set \"transcription.provider\" to \"deepgram\" and export %s", t.APIKeyEnv)
	}
	return transcribe.NewDeepgram(t.APIKey(),
		transcribe.WithEndpoint(t.Endpoint),
		transcribe.WithModel(t.Model),
		transcribe.WithLanguage(t.Language),
		transcribe.WithTimeout(t.Timeout()),
		transcribe.WithLogger(logger)), nil
}

// chartOptions applies the configured render settings for output to w.
func (p *planner) chartOptions(w io.Writer) gantt.Options {
	colorBy, _ := gantt.ParseColorBy(p.cfg.Render.ColorBy)
	opts := gantt.Options{
		MaxOrders: p.cfg.Render.MaxOrders,
		ColorBy:   colorBy,
		Width:     p.cfg.Render.Width,
		Renderer:  lipgloss.NewRenderer(w),
	}
	if opts.Width == 0 {
		opts.Width = terminalWidth(w)
	}
	return opts
}

func (p *planner) printResult(w io.Writer, res orchestrator.Result) {
	fmt.Fprintln(w, p.formatter.FormatResult(res))
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return gantt.DefaultWidth
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// loadOrCreateConfig finds an existing config or creates a new one. The
// search walks up from the CWD and a default is written there if none is found.
func loadOrCreateConfig(configPath string, logger *slog.Logger) (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, configPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	if foundPath := config.FindInTree(cwd); foundPath != "" {
		logger.Info("found existing config", "path", foundPath)
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, nil
	}

	defaultPath := filepath.Join(cwd, config.FileNames[0])
	logger.Info("no config found, creating default", "path", defaultPath)

	cfg := config.GenerateDefault()
	if err := cfg.SaveToFile(defaultPath); err != nil {
		return nil, "", fmt.Errorf("failed to save default config: %w", err)
	}
	return cfg, defaultPath, nil
}
