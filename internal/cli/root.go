package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "planner",
	Short: "Edit a production schedule with short text or voice commands",
	Long: `planner loads orders and production lines, shows the schedule as a
Gantt chart, and applies commands such as "delay order 5 by 2 hours",
"swap order 1 with order 2" or "move order 3 to FIN_1".

Running 'planner' without a subcommand is equivalent to 'planner repl'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return replCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(voiceCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(serveMCPCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to planner.json or planner.yaml (default: search up directory tree)")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "Show parser tier, normalized text and model replies")
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
