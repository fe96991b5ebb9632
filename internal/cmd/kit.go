package cmd

import (
	"fmt"

	"github.com/menace-cli/menace/internal/config"
	"github.com/menace-cli/menace/internal/provision"
	"github.com/spf13/cobra"
)

var kitCmd = &cobra.Command{
	Use:   "kit [args...]",
	Short: "Run the kit helper from the Python environment",
	Long: `Run the kit helper tool installed in the Python environment once and
print its output. All arguments are passed to kit unchanged.

The environment is not provisioned by this command; run "menace provision"
first if it does not exist.`,
	DisableFlagParsing: true,
	RunE:               runKit,
}

func init() {
	rootCmd.AddCommand(kitCmd)
}

func runKit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := CreateLogger(cfg)
	defer func() { _ = logger.Close() }()

	root := config.ExpandHome(cfg.Environment.Path)
	if root == "" {
		root = config.ExpandHome(cfg.Environment.DefaultPath)
	}
	tool := provision.HostLayout(root).Tool(logger)
	if !tool.Available() {
		return fmt.Errorf("kit not found at %s; run \"menace provision\" first", tool.Path())
	}

	out, err := tool.Run(cmd.Context(), args...)
	fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
