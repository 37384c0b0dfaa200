package cli

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Flowka-lab/Scenario-2/internal/dataset"
	"github.com/Flowka-lab/Scenario-2/internal/fsutil"
	"github.com/Flowka-lab/Scenario-2/internal/gantt"
	"github.com/Flowka-lab/Scenario-2/internal/orchestrator"
	"github.com/Flowka-lab/Scenario-2/internal/transcribe"
)

// errRejected is returned after a rejected command has been reported so
// the process exits non-zero.
var errRejected = errors.New("command rejected")

var submitCmd = &cobra.Command{
	Use:   "submit <command...>",
	Short: "Apply one command",
	Example: `  planner submit delay order 5 by 2 hours
  planner submit "swap order 67 and 83"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

var voiceCmd = &cobra.Command{
	Use:   "voice <audio-file>",
	Short: "Transcribe a recorded command and apply it",
	Args:  cobra.ExactArgs(1),
	RunE:  runVoice,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Draw the schedule as a Gantt chart",
	RunE:  runShow,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent commands from the journal",
	RunE:  runHistory,
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the last applied command",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionCommand(cmd, func(p *planner) (orchestrator.Result, error) {
			return p.orch.Undo(cmd.Context()), nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the schedule loaded from the data files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSessionCommand(cmd, func(p *planner) (orchestrator.Result, error) {
			return p.orch.Reset(cmd.Context()), nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the current schedule as orders CSV",
	RunE:  runExport,
}

func init() {
	voiceCmd.Flags().String("content-type", "", "Audio MIME type (default: from the file extension)")

	showCmd.Flags().Int("max-orders", 0, "Show at most this many orders, earliest first (default: from config)")
	showCmd.Flags().StringSlice("product", nil, "Only show these products")
	showCmd.Flags().StringSlice("machine", nil, "Only show these machines, by id or name")
	showCmd.Flags().String("color-by", "", "Color bars by order, product or machine (default: from config)")
	showCmd.Flags().Int("width", 0, "Chart width in columns (default: terminal width)")

	historyCmd.Flags().IntP("limit", "n", 10, "Number of entries to show")

	exportCmd.Flags().StringP("output", "o", "", "Write to this file instead of stdout")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	return runSessionCommand(cmd, func(p *planner) (orchestrator.Result, error) {
		text := strings.Join(args, " ")
		return p.orch.Submit(cmd.Context(), orchestrator.Command{Text: text, Source: orchestrator.SourceText}), nil
	})
}

func runVoice(cmd *cobra.Command, args []string) error {
	audio, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}
	contentType, err := cmd.Flags().GetString("content-type")
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = audioContentType(args[0])
	}

	return runSessionCommand(cmd, func(p *planner) (orchestrator.Result, error) {
		t, err := newTranscriber(p.cfg.Transcription, p.logger)
		if err != nil {
			return orchestrator.Result{}, err
		}
		res := p.orch.SubmitAudio(cmd.Context(), t, audio, contentType)
		if res.Text != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "heard: %q\n", res.Text)
		}
		return res, nil
	})
}

// runSessionCommand opens the planner, runs fn and prints its result.
func runSessionCommand(cmd *cobra.Command, fn func(p *planner) (orchestrator.Result, error)) error {
	p, err := openPlanner(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := fn(p)
	if err != nil {
		return err
	}
	p.printResult(cmd.OutOrStdout(), res)
	if !res.OK() {
		return errRejected
	}
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	p, err := openPlanner(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	out := cmd.OutOrStdout()
	opts := p.chartOptions(out)
	flags := cmd.Flags()
	if n, _ := flags.GetInt("max-orders"); n > 0 {
		opts.MaxOrders = n
	}
	if w, _ := flags.GetInt("width"); w > 0 {
		opts.Width = w
	}
	opts.Products, _ = flags.GetStringSlice("product")
	opts.Machines, _ = flags.GetStringSlice("machine")
	if s, _ := flags.GetString("color-by"); s != "" {
		if opts.ColorBy, err = gantt.ParseColorBy(s); err != nil {
			return err
		}
	}

	fmt.Fprint(out, gantt.Render(p.orch.Snapshot(), opts))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	p, err := openPlanner(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	entries := p.orch.History(limit)
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No commands yet.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(cmd.OutOrStdout(), p.formatter.FormatEntry(e))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	p, err := openPlanner(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	var buf bytes.Buffer
	if err := dataset.WriteOrders(&buf, p.orch.Snapshot().Orders); err != nil {
		return err
	}

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if output == "" {
		_, err = cmd.OutOrStdout().Write(buf.Bytes())
		return err
	}
	if err := fsutil.AtomicWrite(output, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to export schedule: %w", err)
	}
	p.logger.Info("exported schedule", "path", output)
	return nil
}

func audioContentType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		return t
	}
	return transcribe.DefaultContentType
}
