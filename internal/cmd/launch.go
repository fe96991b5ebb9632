package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
	"github.com/menace-cli/menace/internal/config"
	"github.com/menace-cli/menace/internal/launcher"
	"github.com/menace-cli/menace/internal/logging"
	"github.com/menace-cli/menace/internal/provision"
	"github.com/menace-cli/menace/internal/supervisor"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func runLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	binDir, err := cfg.Launcher.ResolveBinDir()
	if err != nil {
		return fmt.Errorf("failed to locate launcher directory: %w", err)
	}

	sessionID := uuid.New().String()
	logger := CreateLogger(cfg).WithSession(sessionID)
	defer func() { _ = logger.Close() }()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		printWarning(cmd.ErrOrStderr(), "stdin is not a terminal; the agent expects an interactive session")
	}

	prov := newProvisioner(cfg, binDir, logger)

	sup := supervisor.New(logger)
	sup.SetGracePeriod(cfg.Launcher.StopGracePeriod)

	coord := launcher.New(launchOptions(cfg, binDir, args), prov, launcher.SupervisorSpawner(sup), logger)
	logger.Info("launch requested",
		"bin_dir", binDir,
		"dual_process", coord.DualProcess(),
		"provisioning", cfg.Launcher.ProvisioningRequired,
	)

	outcome := coord.Run(cmd.Context())
	reportOutcome(cmd, outcome)
	return newExitCode(outcome.ExitCode)
}

// launchOptions maps validated configuration onto coordinator options.
func launchOptions(cfg *config.Config, binDir string, agentArgs []string) launcher.Options {
	// backend.stderr has already been validated
	stderrPolicy, _ := supervisor.ParseStreamPolicy(cfg.Backend.Stderr)

	return launcher.Options{
		BackendRequired:      cfg.Launcher.BackendRequired,
		BackendExternal:      cfg.Launcher.BackendReady || launcher.BackendExternalFromEnv(os.Environ()),
		ProvisioningRequired: cfg.Launcher.ProvisioningRequired,
		BinDir:               binDir,
		AgentArgs:            agentArgs,
		BackendScript:        config.InBinDir(binDir, cfg.Backend.Script),
		BackendStderr:        stderrPolicy,
		Port:                 cfg.Backend.Port,
		EnvOverride:          config.ExpandHome(cfg.Environment.Path),
		Python:               cfg.Environment.Python,
		Sentinel:             cfg.Launcher.ReadySentinel,
		ReadyTimeout:         cfg.Launcher.ReadyTimeout,
		StopGrace:            cfg.Launcher.StopGracePeriod,
	}
}

// newProvisioner wires the provisioner to the host: commands run through
// os/exec and the environment path is registered in the user's shell.
func newProvisioner(cfg *config.Config, binDir string, logger *logging.Logger) *provision.Provisioner {
	runner := &provision.ExecRunner{Logger: logger}

	home, err := os.UserHomeDir()
	if err != nil {
		logger.Warn("could not determine home directory", "error", err.Error())
	}
	registrar := provision.NewRegistrar(provision.RegistrarOptions{
		GOOS:        runtime.GOOS,
		ShellPath:   os.Getenv("SHELL"),
		Home:        home,
		ProfilePath: config.ExpandHome(cfg.Environment.ShellProfile),
		Runner:      runner,
	})

	return provision.New(provision.Options{
		DefaultPath:  config.ExpandHome(cfg.Environment.DefaultPath),
		Python:       cfg.Environment.Python,
		Requirements: config.InBinDir(binDir, cfg.Environment.Requirements),
		BuildTools:   cfg.Environment.BuildTools,
		Lock:         cfg.Environment.Lock,
	}, runner, registrar, logger)
}

// reportOutcome prints the failure that ended the session, if any. A clean
// exit and the agent's own nonzero exit print nothing.
func reportOutcome(cmd *cobra.Command, outcome launcher.Outcome) {
	switch outcome.Cause {
	case launcher.CauseClean, launcher.CauseAgentCrashed:
		return
	case launcher.CauseInterrupted:
		printHint(cmd.ErrOrStderr(), "menace: interrupted")
		return
	}
	if outcome.Err != nil {
		printError(cmd.ErrOrStderr(), outcome.Err)
	}
	switch outcome.Cause {
	case launcher.CauseProvisioningFailed:
		printHint(cmd.ErrOrStderr(), "Re-run with `menace provision --redo` once the problem is fixed.")
	case launcher.CauseUnsupportedPlatform:
		printHint(cmd.ErrOrStderr(), "Run `menace platform --all` to list supported platforms.")
	}
}

// CreateLogger creates a logger if logging is enabled in config.
// Returns a NopLogger if logging is disabled or if creation fails.
func CreateLogger(cfg *config.Config) *logging.Logger {
	if !cfg.Logging.Enabled {
		return logging.NopLogger()
	}

	rotationConfig := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}

	logger, err := logging.NewLoggerWithRotation(config.ExpandHome(cfg.Logging.Dir), cfg.Logging.Level, rotationConfig)
	if err != nil {
		// Log creation failure shouldn't prevent the launch
		printWarning(os.Stderr, fmt.Sprintf("failed to create logger: %v", err))
		return logging.NopLogger()
	}
	return logger
}
