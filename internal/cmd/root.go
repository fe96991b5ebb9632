// Package cmd provides the CLI commands for the menace launcher.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/menace-cli/menace/internal/config"
	"github.com/menace-cli/menace/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "menace [flags] [-- agent-args...]",
	Short: "Launch the menace terminal agent and its backend",
	Long: `Menace starts the local repo server, waits until it reports ready,
and then hands the terminal to the menace agent. When the agent exits,
the server is stopped and menace exits with the agent's exit code.

The Python environment the server needs is created on first launch.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLaunch,
}

// Execute runs the root command and returns an exit code.
// The caller (main) should call os.Exit with this code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if code, ok := isExitCode(err); ok {
		return code
	}
	printError(os.Stderr, err)
	return errors.ExitCode(err)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/menace/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("env", "", "use an existing Python environment instead of the default")
	bindFlags()
}

// bindFlags maps global flags onto config keys. A flag only overrides the
// config file and environment when it is given.
func bindFlags() {
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("environment.path", rootCmd.PersistentFlags().Lookup("env"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/menace")
	}

	// MENACE_LAUNCHER_READY_TIMEOUT for launcher.ready_timeout, plus the
	// shared MENACE_VENV_PATH, MENACE_PORT and MENACE_SERVER_READY.
	config.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadConfig loads and validates the configuration. Every validation problem
// is reported, not just the first.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
