package provision

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menace-cli/menace/internal/testutil"
)

type memProfile struct {
	content string
	appends int
}

func (p *memProfile) Read() (string, error) { return p.content, nil }

func (p *memProfile) Append(line string) error {
	p.content += line + "\n"
	p.appends++
	return nil
}

func TestDetectShell(t *testing.T) {
	tests := []struct {
		in   string
		want Shell
	}{
		{"/bin/zsh", ShellZsh},
		{"/usr/local/bin/bash", ShellBash},
		{"/opt/homebrew/bin/fish", ShellFish},
		{"/bin/dash", ShellPOSIX},
		{"", ShellPOSIX},
	}
	for _, tt := range tests {
		if got := DetectShell(tt.in); got != tt.want {
			t.Errorf("DetectShell(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShell_ProfilePath(t *testing.T) {
	home := "/home/u"
	tests := []struct {
		shell Shell
		goos  string
		want  string
	}{
		{ShellZsh, "darwin", filepath.Join(home, ".zshrc")},
		{ShellBash, "linux", filepath.Join(home, ".bashrc")},
		{ShellBash, "darwin", filepath.Join(home, ".bash_profile")},
		{ShellFish, "linux", filepath.Join(home, ".config", "fish", "config.fish")},
		{ShellPOSIX, "linux", filepath.Join(home, ".profile")},
	}
	for _, tt := range tests {
		t.Run(string(tt.shell)+"/"+tt.goos, func(t *testing.T) {
			if got := tt.shell.ProfilePath(home, tt.goos); got != tt.want {
				t.Errorf("ProfilePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShell_ExportLine(t *testing.T) {
	tests := []struct {
		name  string
		shell Shell
		value string
		want  string
	}{
		{"bash", ShellBash, "/home/u/.menace/venv", `export MENACE_VENV_PATH='/home/u/.menace/venv'`},
		{"zsh expansions stay literal", ShellZsh, "/home/$USER/`id`/\\n", `export MENACE_VENV_PATH='/home/$USER/` + "`id`" + `/\n'`},
		{"posix single quote", ShellPOSIX, "/home/o'brien/venv", `export MENACE_VENV_PATH='/home/o'\''brien/venv'`},
		{"fish", ShellFish, "/v", `set -gx MENACE_VENV_PATH '/v'`},
		{"fish escapes", ShellFish, `/o'brien\v`, `set -gx MENACE_VENV_PATH '/o\'brien\\v'`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.shell.ExportLine(EnvVar, tt.value); got != tt.want {
				t.Errorf("ExportLine() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShell_ExportLineRoundTrips(t *testing.T) {
	testutil.SkipIfNoShell(t)

	value := "/home/o'brien/$HOME/`id`/\\n \"x\""
	line := ShellPOSIX.ExportLine(EnvVar, value)
	out, err := exec.Command("sh", "-c", line+`; printf '%s' "$MENACE_VENV_PATH"`).Output()
	if err != nil {
		t.Fatalf("sh error = %v", err)
	}
	if string(out) != value {
		t.Errorf("shell read back %q, want %q", out, value)
	}
}

func TestProfileRegistrar_AppendsOnlyIfAbsent(t *testing.T) {
	profile := &memProfile{content: "alias ll='ls -l'"}
	reg := &ProfileRegistrar{Profile: profile, Shell: ShellZsh}

	for i := 0; i < 3; i++ {
		if err := reg.Register(context.Background(), EnvVar, "/v"); err != nil {
			t.Fatalf("Register() #%d error = %v", i, err)
		}
	}

	if profile.appends != 1 {
		t.Errorf("appends = %d, want 1", profile.appends)
	}
	want := "alias ll='ls -l'\nexport MENACE_VENV_PATH='/v'\n"
	if profile.content != want {
		t.Errorf("content = %q, want %q", profile.content, want)
	}

	// A different value is a different line.
	if err := reg.Register(context.Background(), EnvVar, "/other"); err != nil {
		t.Fatal(err)
	}
	if profile.appends != 2 {
		t.Errorf("appends = %d, want 2 after a new value", profile.appends)
	}
}

func TestFileProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".config", "fish", "config.fish")
	profile := FileProfile{Path: path}

	content, err := profile.Read()
	if err != nil || content != "" {
		t.Fatalf("Read() on missing file = %q, %v", content, err)
	}

	reg := NewRegistrar(RegistrarOptions{GOOS: "linux", ShellPath: "/usr/bin/fish", ProfilePath: path})
	for i := 0; i < 2; i++ {
		if err := reg.Register(context.Background(), EnvVar, "/v"); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "set -gx MENACE_VENV_PATH"); got != 1 {
		t.Errorf("profile has %d export lines, want 1:\n%s", got, data)
	}
}

func TestNewRegistrar(t *testing.T) {
	runner := &fakeRunner{}
	win := NewRegistrar(RegistrarOptions{GOOS: "windows", Runner: runner})
	if _, ok := win.(*SetxRegistrar); !ok {
		t.Fatalf("windows registrar = %T, want *SetxRegistrar", win)
	}
	if err := win.Register(context.Background(), EnvVar, `C:\v`); err != nil {
		t.Fatal(err)
	}
	if len(runner.calls) != 1 || runner.calls[0] != `setx MENACE_VENV_PATH C:\v` {
		t.Errorf("calls = %v", runner.calls)
	}

	unix := NewRegistrar(RegistrarOptions{GOOS: "linux", ShellPath: "/bin/bash", Home: "/home/u"})
	pr, ok := unix.(*ProfileRegistrar)
	if !ok {
		t.Fatalf("linux registrar = %T, want *ProfileRegistrar", unix)
	}
	if fp := pr.Profile.(FileProfile); fp.Path != filepath.Join("/home/u", ".bashrc") {
		t.Errorf("profile path = %q", fp.Path)
	}
}
