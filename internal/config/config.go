package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (MENACE_<SECTION>_<KEY>).
const EnvPrefix = "MENACE"

// Environment variables shared with the agent and the helper tool. They are
// bound to config keys on top of the generic MENACE_* mapping.
const (
	EnvVenvPath    = "MENACE_VENV_PATH"
	EnvPort        = "MENACE_PORT"
	EnvServerReady = "MENACE_SERVER_READY"
)

// Config represents the complete menace configuration
type Config struct {
	Launcher    LauncherConfig    `mapstructure:"launcher" yaml:"launcher"`
	Backend     BackendConfig     `mapstructure:"backend" yaml:"backend"`
	Environment EnvironmentConfig `mapstructure:"environment" yaml:"environment"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// LauncherConfig controls the startup sequence
type LauncherConfig struct {
	// BackendRequired starts the backend and waits for readiness before the
	// agent. When false the agent is run alone.
	BackendRequired bool `mapstructure:"backend_required" yaml:"backend_required"`
	// ProvisioningRequired ensures the Python environment before launching.
	ProvisioningRequired bool `mapstructure:"provisioning_required" yaml:"provisioning_required"`
	// BackendReady marks the backend as already running elsewhere
	// (MENACE_SERVER_READY=1). The launcher then skips starting it.
	BackendReady bool `mapstructure:"backend_ready" yaml:"backend_ready"`
	// BinDir holds the agent binaries and the backend script.
	// Empty means the directory of the menace executable.
	BinDir string `mapstructure:"bin_dir" yaml:"bin_dir"`
	// ReadySentinel is the marker the backend prints on stdout once it serves.
	ReadySentinel string `mapstructure:"ready_sentinel" yaml:"ready_sentinel"`
	// ReadyTimeout bounds the wait for ReadySentinel (0 = wait forever)
	ReadyTimeout time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	// StopGracePeriod is how long a child gets between SIGTERM and SIGKILL
	StopGracePeriod time.Duration `mapstructure:"stop_grace_period" yaml:"stop_grace_period"`
}

// BackendConfig controls the backend service process
type BackendConfig struct {
	// Script is the backend entry point, relative to launcher.bin_dir unless absolute
	Script string `mapstructure:"script" yaml:"script"`
	// Port is handed to both children as MENACE_PORT
	Port int `mapstructure:"port" yaml:"port"`
	// Stderr is the stream policy for backend stderr.
	// Options: "discard", "inherit", "pipe" (pipe writes it to the log)
	Stderr string `mapstructure:"stderr" yaml:"stderr"`
}

// EnvironmentConfig controls the Python environment
type EnvironmentConfig struct {
	// Path is an existing environment to use instead of provisioning one
	Path string `mapstructure:"path" yaml:"path"`
	// DefaultPath is where the environment is created when Path is empty
	DefaultPath string `mapstructure:"default_path" yaml:"default_path"`
	// Python is the system interpreter used to create the environment
	Python string `mapstructure:"python" yaml:"python"`
	// Requirements file, relative to launcher.bin_dir unless absolute
	Requirements string `mapstructure:"requirements" yaml:"requirements"`
	// BuildTools are upgraded before installing requirements
	BuildTools []string `mapstructure:"build_tools" yaml:"build_tools"`
	// ShellProfile overrides the detected shell startup file
	ShellProfile string `mapstructure:"shell_profile" yaml:"shell_profile"`
	// Lock serializes provisioning between concurrent launches
	Lock bool `mapstructure:"lock" yaml:"lock"`
}

// LoggingConfig controls the launcher's own debug log
type LoggingConfig struct {
	// Enabled writes a log file; when false nothing is logged
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the log directory
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the size at which the log file rotates
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of rotated files kept
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	python := "python3"
	if runtime.GOOS == "windows" {
		python = "python"
	}
	return &Config{
		Launcher: LauncherConfig{
			BackendRequired:      true,
			ProvisioningRequired: true,
			BackendReady:         false,
			BinDir:               "",
			ReadySentinel:        "FLASK SERVER READY",
			ReadyTimeout:         60 * time.Second,
			StopGracePeriod:      3 * time.Second,
		},
		Backend: BackendConfig{
			Script: "reposerver.py",
			Port:   5974,
			Stderr: "discard",
		},
		Environment: EnvironmentConfig{
			Path:         "",
			DefaultPath:  "~/.menace/venv",
			Python:       python,
			Requirements: "requirements.txt",
			BuildTools:   []string{"setuptools", "wheel"},
			ShellProfile: "",
			Lock:         false,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "~/.menace/logs",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Launcher defaults
	viper.SetDefault("launcher.backend_required", defaults.Launcher.BackendRequired)
	viper.SetDefault("launcher.provisioning_required", defaults.Launcher.ProvisioningRequired)
	viper.SetDefault("launcher.backend_ready", defaults.Launcher.BackendReady)
	viper.SetDefault("launcher.bin_dir", defaults.Launcher.BinDir)
	viper.SetDefault("launcher.ready_sentinel", defaults.Launcher.ReadySentinel)
	viper.SetDefault("launcher.ready_timeout", defaults.Launcher.ReadyTimeout.String())
	viper.SetDefault("launcher.stop_grace_period", defaults.Launcher.StopGracePeriod.String())

	// Backend defaults
	viper.SetDefault("backend.script", defaults.Backend.Script)
	viper.SetDefault("backend.port", defaults.Backend.Port)
	viper.SetDefault("backend.stderr", defaults.Backend.Stderr)

	// Environment defaults
	viper.SetDefault("environment.path", defaults.Environment.Path)
	viper.SetDefault("environment.default_path", defaults.Environment.DefaultPath)
	viper.SetDefault("environment.python", defaults.Environment.Python)
	viper.SetDefault("environment.requirements", defaults.Environment.Requirements)
	viper.SetDefault("environment.build_tools", defaults.Environment.BuildTools)
	viper.SetDefault("environment.shell_profile", defaults.Environment.ShellProfile)
	viper.SetDefault("environment.lock", defaults.Environment.Lock)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// BindEnv wires the generic MENACE_* mapping and the shared variables that
// do not follow it.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("environment.path", "MENACE_ENVIRONMENT_PATH", EnvVenvPath)
	_ = viper.BindEnv("backend.port", "MENACE_BACKEND_PORT", EnvPort)
	_ = viper.BindEnv("launcher.backend_ready", "MENACE_LAUNCHER_BACKEND_READY", EnvServerReady)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "menace")
	}
	// Fall back to ~/.config/menace
	home, err := os.UserHomeDir()
	if err != nil {
		return ".menace"
	}
	return filepath.Join(home, ".config", "menace")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") && !strings.HasPrefix(path, `~\`) {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// ResolveBinDir returns launcher.bin_dir, or the directory of the running
// executable when it is empty.
func (c *LauncherConfig) ResolveBinDir() (string, error) {
	if c.BinDir != "" {
		return filepath.Abs(ExpandHome(c.BinDir))
	}
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// InBinDir resolves path against binDir unless it is absolute.
func InBinDir(binDir, path string) string {
	path = ExpandHome(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(binDir, path)
}
