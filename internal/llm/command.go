package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Command is a Caller that runs an external LLM CLI (for example
// "claude -p" or "llm -m gpt-4o-mini") once per prompt. The prompt is
// written to stdin and stdout is the reply.
type Command struct {
	argv   []string
	env    []string
	logger *slog.Logger
}

// NewCommand creates a Command caller. argv[0] is resolved on PATH when the
// command runs.
func NewCommand(argv []string, env []string, logger *slog.Logger) (*Command, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("llm/exec: command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Command{argv: argv, env: env, logger: logger}, nil
}

// Complete runs the command with the system and user prompt on stdin.
func (c *Command) Complete(ctx context.Context, prompt Prompt) (string, error) {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	if len(c.env) > 0 {
		cmd.Env = append(cmd.Environ(), c.env...)
	}

	var input strings.Builder
	if prompt.System != "" {
		input.WriteString(prompt.System)
		input.WriteString("\n\nCommand: ")
	}
	input.WriteString(prompt.User)
	input.WriteString("\n")
	cmd.Stdin = strings.NewReader(input.String())

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.logger.Debug("running model command", "cmd", c.argv[0])
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("llm/exec: %s: %w", c.argv[0], ctx.Err())
		}
		return "", fmt.Errorf("llm/exec: %s failed: %w (stderr: %s)", c.argv[0], err, truncate(stderr.String(), 500))
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", fmt.Errorf("llm/exec: %s produced no output", c.argv[0])
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
