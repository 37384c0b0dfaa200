package cli

import (
	"github.com/spf13/cobra"

	"github.com/Flowka-lab/Scenario-2/internal/mcpserver"
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the planner as MCP tools over stdio",
	Long: `Serve submit_command, get_schedule, get_history and undo_command as
Model Context Protocol tools on stdin and stdout. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServeMCP,
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	p, err := openPlanner(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	server := mcpserver.NewServer(mcpserver.NewService(p.orch, p.logger))
	p.logger.Info("serving MCP over stdio", "config", p.cfgPath)
	return mcpserver.RunStdio(cmd.Context(), server)
}
