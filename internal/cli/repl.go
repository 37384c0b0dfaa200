package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Flowka-lab/Scenario-2/internal/gantt"
	"github.com/Flowka-lab/Scenario-2/internal/orchestrator"
)

const replHelp = `Type a command, for example:
  delay order 5 by 2 hours
  advance order 3 by 30 minutes
  swap order 1 with order 2
  move order 4 to FIN_1
Session commands:
  :show      draw the schedule
  :history   list recent commands
  :undo      revert the last applied command
  :reset     restore the loaded plan
  :quit      leave`

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Read planner commands interactively",
	Long: `Read planner commands one per line from stdin and apply them. On a
terminal the schedule is redrawn after every applied change.`,
	RunE: runREPL,
}

func runREPL(cmd *cobra.Command, args []string) error {
	p, err := openPlanner(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	return p.repl(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), isTerminal(cmd.InOrStdin()))
}

// repl reads commands until EOF or :quit. The prompt and chart redraws are
// only written when tty is set.
func (p *planner) repl(ctx context.Context, r io.Reader, w io.Writer, tty bool) error {
	opts := p.chartOptions(w)
	if tty {
		fmt.Fprint(w, gantt.Render(p.orch.Snapshot(), opts))
		fmt.Fprintln(w, "Type :help for help.")
	}

	scanner := bufio.NewScanner(r)
	for {
		if tty {
			fmt.Fprint(w, "planner> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var res *orchestrator.Result
		switch strings.ToLower(line) {
		case ":q", ":quit", ":exit":
			return nil
		case ":help", "?":
			fmt.Fprintln(w, replHelp)
		case ":show":
			fmt.Fprint(w, gantt.Render(p.orch.Snapshot(), opts))
		case ":history":
			for _, e := range p.orch.History(10) {
				fmt.Fprintln(w, p.formatter.FormatEntry(e))
			}
		case ":undo":
			undo := p.orch.Undo(ctx)
			res = &undo
		case ":reset":
			reset := p.orch.Reset(ctx)
			res = &reset
		default:
			if strings.HasPrefix(line, ":") {
				fmt.Fprintf(w, "unknown session command %s (try :help)\n", line)
				continue
			}
			submitted := p.orch.Submit(ctx, orchestrator.Command{Text: line, Source: orchestrator.SourceText})
			res = &submitted
		}

		if res != nil {
			p.printResult(w, *res)
			if tty && res.OK() {
				fmt.Fprint(w, gantt.Render(res.Snapshot, opts))
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if tty {
		fmt.Fprintln(w)
	}
	return scanner.Err()
}
