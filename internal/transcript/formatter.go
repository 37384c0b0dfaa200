package transcript

import (
	"fmt"
	"strings"

	"github.com/Flowka-lab/Scenario-2/internal/journal"
	"github.com/Flowka-lab/Scenario-2/internal/orchestrator"
	"github.com/Flowka-lab/Scenario-2/internal/outcome"
)

// Formatter formats command results and journal entries for console output
type Formatter struct {
	// ShowDebug adds the tier, template and raw model reply.
	ShowDebug bool
}

// NewFormatter creates a new transcript formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatResult formats a command result for console display. Applied
// changes follow on indented lines.
func (f *Formatter) FormatResult(res orchestrator.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", res.Source, status(res.OK(), failureKind(res.Failure)), res.Message)

	if res.Outcome != nil {
		for _, c := range res.Outcome.Changes {
			b.WriteString("\n  ")
			b.WriteString(f.FormatChange(c))
		}
	}

	if f.ShowDebug {
		if res.Normalized != "" && res.Normalized != res.Text {
			fmt.Fprintf(&b, "\n  normalized: %s", res.Normalized)
		}
		if res.Tier != "" {
			details := string(res.Tier)
			if res.Template != "" {
				details += " (" + res.Template + ")"
			}
			fmt.Fprintf(&b, "\n  tier: %s", details)
		}
		if res.Debug != "" {
			fmt.Fprintf(&b, "\n  debug: %s", oneLine(res.Debug))
		}
	}
	return b.String()
}

// FormatChange formats one order's move.
func (f *Formatter) FormatChange(c outcome.Change) string {
	return fmt.Sprintf("%s: %s -> %s", c.OrderID, c.Before, c.After)
}

// FormatEntry formats a journal entry as one history line.
func (f *Formatter) FormatEntry(e journal.Entry) string {
	source := e.Source
	if source == "" {
		source = "-"
	}
	line := fmt.Sprintf("%s [%s] %s %s: %s",
		e.Time.Format("2006-01-02 15:04:05"), source, e.Kind, status(e.OK, e.FailureKind), e.Message)
	if e.Kind == journal.KindCommand && e.Raw != "" {
		line += fmt.Sprintf(" (raw: %q)", e.Raw)
	}
	if f.ShowDebug && len(e.Payload) > 0 {
		line += " payload=" + string(e.Payload)
	}
	return line
}

func status(ok bool, kind outcome.Kind) string {
	if ok {
		return "ok"
	}
	if kind == "" {
		return "error"
	}
	return "error " + string(kind)
}

func failureKind(f *outcome.Failure) outcome.Kind {
	if f == nil {
		return ""
	}
	return f.Kind
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
