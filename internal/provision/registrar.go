package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Registrar persists a key/value pair so future sessions see it.
type Registrar interface {
	Register(ctx context.Context, key, value string) error
}

// Profile is a shell startup file.
type Profile interface {
	Read() (string, error)
	Append(line string) error
}

// Shell is a login shell family. It decides the profile file and the
// syntax of the export line.
type Shell string

const (
	ShellZsh   Shell = "zsh"
	ShellBash  Shell = "bash"
	ShellFish  Shell = "fish"
	ShellPOSIX Shell = "sh"
)

// DetectShell maps a $SHELL value to a Shell. Unknown shells are POSIX.
func DetectShell(shellPath string) Shell {
	switch strings.TrimSuffix(filepath.Base(shellPath), ".exe") {
	case "zsh":
		return ShellZsh
	case "bash":
		return ShellBash
	case "fish":
		return ShellFish
	default:
		return ShellPOSIX
	}
}

// ProfilePath returns the startup file for shell under home.
func (s Shell) ProfilePath(home, goos string) string {
	switch s {
	case ShellZsh:
		return filepath.Join(home, ".zshrc")
	case ShellBash:
		if goos == "darwin" {
			return filepath.Join(home, ".bash_profile")
		}
		return filepath.Join(home, ".bashrc")
	case ShellFish:
		return filepath.Join(home, ".config", "fish", "config.fish")
	default:
		return filepath.Join(home, ".profile")
	}
}

// ExportLine returns the line that sets key to value in the shell. The
// value is a single-quoted literal, so the shell expands nothing in it.
func (s Shell) ExportLine(key, value string) string {
	if s == ShellFish {
		return fmt.Sprintf("set -gx %s %s", key, fishQuote(value))
	}
	return fmt.Sprintf("export %s=%s", key, posixQuote(value))
}

// posixQuote closes the quote around each ' and emits it escaped.
func posixQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// fishQuote escapes \ and ' inside single quotes, the only escapes fish
// honors there.
func fishQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// FileProfile is a Profile backed by a file on disk.
type FileProfile struct {
	Path string
}

// Read returns the file contents, or "" if it does not exist.
func (p FileProfile) Read() (string, error) {
	data, err := os.ReadFile(p.Path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", p.Path, err)
	}
	return string(data), nil
}

// Append adds line and a trailing newline, creating the file if needed.
func (p FileProfile) Append(line string) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", p.Path, err)
	}
	f, err := os.OpenFile(p.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", p.Path, err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", p.Path, err)
	}
	return f.Close()
}

// ProfileRegistrar writes an export line to a shell profile. Registering
// the same key and value twice leaves a single line.
type ProfileRegistrar struct {
	Profile Profile
	Shell   Shell
}

// Register implements Registrar.
func (r *ProfileRegistrar) Register(_ context.Context, key, value string) error {
	line := r.Shell.ExportLine(key, value)

	content, err := r.Profile.Read()
	if err != nil {
		return err
	}
	if hasLine(content, line) {
		return nil
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		line = "\n" + line
	}
	return r.Profile.Append(line)
}

func hasLine(content, line string) bool {
	for _, l := range strings.Split(content, "\n") {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

// SetxRegistrar persists into the Windows user environment with setx.
type SetxRegistrar struct {
	Runner Runner
}

// Register implements Registrar.
func (r *SetxRegistrar) Register(ctx context.Context, key, value string) error {
	return r.Runner.Run(ctx, "setx", key, value)
}

// RegistrarOptions selects the registrar for a host.
type RegistrarOptions struct {
	GOOS string
	// ShellPath is the value of $SHELL.
	ShellPath string
	Home      string
	// ProfilePath overrides the detected startup file.
	ProfilePath string
	Runner      Runner
}

// NewRegistrar returns SetxRegistrar on Windows and a ProfileRegistrar for
// the detected shell elsewhere.
func NewRegistrar(opts RegistrarOptions) Registrar {
	if opts.GOOS == "windows" {
		return &SetxRegistrar{Runner: opts.Runner}
	}
	shell := DetectShell(opts.ShellPath)
	path := opts.ProfilePath
	if path == "" {
		path = shell.ProfilePath(opts.Home, opts.GOOS)
	}
	return &ProfileRegistrar{Profile: FileProfile{Path: path}, Shell: shell}
}
