package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default launcher config
	if !cfg.Launcher.BackendRequired {
		t.Error("Launcher.BackendRequired should be true by default")
	}
	if !cfg.Launcher.ProvisioningRequired {
		t.Error("Launcher.ProvisioningRequired should be true by default")
	}
	if cfg.Launcher.BackendReady {
		t.Error("Launcher.BackendReady should be false by default")
	}
	if cfg.Launcher.ReadySentinel != "FLASK SERVER READY" {
		t.Errorf("Launcher.ReadySentinel = %q", cfg.Launcher.ReadySentinel)
	}
	if cfg.Launcher.ReadyTimeout != 60*time.Second {
		t.Errorf("Launcher.ReadyTimeout = %v, want 60s", cfg.Launcher.ReadyTimeout)
	}

	// Verify default backend config
	if cfg.Backend.Script != "reposerver.py" {
		t.Errorf("Backend.Script = %q, want reposerver.py", cfg.Backend.Script)
	}
	if cfg.Backend.Port != 5974 {
		t.Errorf("Backend.Port = %d, want 5974", cfg.Backend.Port)
	}
	if cfg.Backend.Stderr != "discard" {
		t.Errorf("Backend.Stderr = %q, want discard", cfg.Backend.Stderr)
	}

	// Verify default environment config
	if cfg.Environment.DefaultPath != "~/.menace/venv" {
		t.Errorf("Environment.DefaultPath = %q", cfg.Environment.DefaultPath)
	}
	wantPython := "python3"
	if runtime.GOOS == "windows" {
		wantPython = "python"
	}
	if cfg.Environment.Python != wantPython {
		t.Errorf("Environment.Python = %q, want %q", cfg.Environment.Python, wantPython)
	}
	if cfg.Environment.Lock {
		t.Error("Environment.Lock should be false by default")
	}

	// Verify default logging config
	if !cfg.Logging.Enabled || cfg.Logging.Level != "info" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv(EnvVenvPath, "/opt/venv")
	t.Setenv(EnvPort, "6000")
	t.Setenv(EnvServerReady, "1")
	t.Setenv("MENACE_LAUNCHER_READY_TIMEOUT", "5s")
	t.Setenv("MENACE_LOGGING_LEVEL", "debug")

	SetDefaults()
	BindEnv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Environment.Path != "/opt/venv" {
		t.Errorf("Environment.Path = %q, want /opt/venv", cfg.Environment.Path)
	}
	if cfg.Backend.Port != 6000 {
		t.Errorf("Backend.Port = %d, want 6000", cfg.Backend.Port)
	}
	if !cfg.Launcher.BackendReady {
		t.Error("Launcher.BackendReady should follow MENACE_SERVER_READY")
	}
	if cfg.Launcher.ReadyTimeout != 5*time.Second {
		t.Errorf("Launcher.ReadyTimeout = %v, want 5s", cfg.Launcher.ReadyTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_File(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
launcher:
  backend_required: false
  stop_grace_period: 10s
environment:
  build_tools: [wheel]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	SetDefaults()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Launcher.BackendRequired {
		t.Error("Launcher.BackendRequired should be false from file")
	}
	if cfg.Launcher.StopGracePeriod != 10*time.Second {
		t.Errorf("StopGracePeriod = %v, want 10s", cfg.Launcher.StopGracePeriod)
	}
	if len(cfg.Environment.BuildTools) != 1 || cfg.Environment.BuildTools[0] != "wheel" {
		t.Errorf("BuildTools = %v", cfg.Environment.BuildTools)
	}
	// Untouched keys keep defaults
	if cfg.Backend.Port != 5974 {
		t.Errorf("Backend.Port = %d, want default", cfg.Backend.Port)
	}
}

func TestLoad_InvalidReturnsValidationErrors(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	SetDefaults()
	viper.Set("backend.port", 0)
	viper.Set("logging.level", "verbose")

	_, err := Load()
	errs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("Load() error = %T %v, want ValidationErrors", err, err)
	}
	if len(errs) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(errs), errs)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		if got := ConfigDir(); got != filepath.Join("/xdg", "menace") {
			t.Errorf("ConfigDir() = %q", got)
		}
		if got := ConfigFile(); got != filepath.Join("/xdg", "menace", "config.yaml") {
			t.Errorf("ConfigFile() = %q", got)
		}
	})

	t.Run("home fallback", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory")
		}
		if got := ConfigDir(); got != filepath.Join(home, ".config", "menace") {
			t.Errorf("ConfigDir() = %q", got)
		}
	})
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/.menace/venv", filepath.Join(home, ".menace", "venv")},
		{"/abs/path", "/abs/path"},
		{"rel", "rel"},
		{"~user/x", "~user/x"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInBinDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "srv.py")
	tests := []struct {
		in   string
		want string
	}{
		{"reposerver.py", filepath.Join("/opt/menace", "reposerver.py")},
		{abs, abs},
		{"", ""},
	}
	for _, tt := range tests {
		if got := InBinDir("/opt/menace", tt.in); got != tt.want {
			t.Errorf("InBinDir(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveBinDir(t *testing.T) {
	dir := t.TempDir()
	c := LauncherConfig{BinDir: dir}
	got, err := c.ResolveBinDir()
	if err != nil {
		t.Fatalf("ResolveBinDir() error = %v", err)
	}
	if got != dir {
		t.Errorf("ResolveBinDir() = %q, want %q", got, dir)
	}

	empty := LauncherConfig{}
	got, err = empty.ResolveBinDir()
	if err != nil {
		t.Fatalf("ResolveBinDir() error = %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("ResolveBinDir() = %q, want absolute executable dir", got)
	}
}
