package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Flowka-lab/Scenario-2/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a default planner config",
	Long: `Write a default planner.json (or planner.yaml) into dir, the current
directory by default. Existing files are kept unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().String("format", "json", "Config format (json, yaml)")
	initCmd.Flags().Bool("force", false, "Overwrite an existing config")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	var name string
	switch format {
	case "json":
		name = "planner.json"
	case "yaml", "yml":
		name = "planner.yaml"
	default:
		return fmt.Errorf("unsupported config format %q (use json or yaml)", format)
	}
	path := filepath.Join(dir, name)

	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := config.GenerateDefault().SaveToFile(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
