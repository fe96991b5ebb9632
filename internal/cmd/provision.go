package cmd

import (
	"fmt"

	"github.com/menace-cli/menace/internal/config"
	"github.com/menace-cli/menace/internal/provision"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Prepare the Python environment without launching",
	Long: `Prepare the Python environment the backend runs in and print it.

Without flags the environment is created only when it does not exist yet,
exactly as a launch would. With --redo the installation steps (pip upgrade,
build tools, requirements, kit completion, shell registration) are run
again against the existing environment.`,
	Args: cobra.NoArgs,
	RunE: runProvision,
}

var provisionRedo bool

func init() {
	provisionCmd.Flags().BoolVar(&provisionRedo, "redo", false, "re-run the installation steps on an existing environment")
	rootCmd.AddCommand(provisionCmd)
}

func runProvision(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	binDir, err := cfg.Launcher.ResolveBinDir()
	if err != nil {
		return fmt.Errorf("failed to locate launcher directory: %w", err)
	}

	logger := CreateLogger(cfg).WithPhase("provision")
	defer func() { _ = logger.Close() }()

	prov := newProvisioner(cfg, binDir, logger)
	override := config.ExpandHome(cfg.Environment.Path)

	var env provision.Environment
	if provisionRedo {
		env, err = prov.Redo(cmd.Context(), override)
	} else {
		env, err = prov.Ensure(cmd.Context(), override)
	}
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal environment: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
