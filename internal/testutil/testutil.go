// Package testutil provides testing utilities for menace tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// SkipIfNoShell skips the test if /bin/sh is not available. Script fixtures
// need a POSIX shell, so this also skips on Windows.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("script fixtures need a POSIX shell, skipping on windows")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}

// WriteScript writes an executable shell script named name into dir and
// returns its path. body is the script without the shebang line.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", name, err)
	}
	content := "#!/bin/sh\n" + strings.TrimLeft(body, "\n")
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script %s: %v", name, err)
	}
	return path
}

// WriteFile writes a regular file, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// SetupFakeEnv creates a fake provisioned environment under a temp dir with
// python, pip and kit scripts in its bin directory. Each script appends its
// name and arguments to <root>/calls.log and exits 0 unless overridden in
// scripts; "python -m pip ..." is recorded as "pip ...". Returns the
// environment root.
func SetupFakeEnv(t *testing.T, scripts map[string]string) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "venv")
	bin := filepath.Join(root, "bin")
	for _, name := range []string{"python", "pip", "kit"} {
		body, ok := scripts[name]
		if !ok {
			body = RecordingScript(root, name)
			if name == "python" {
				body = pipModuleScript(root) + body
			}
		}
		WriteScript(t, bin, name, body)
	}
	return root
}

// RecordingScript returns a script body that logs "name args..." to
// <root>/calls.log and exits 0.
func RecordingScript(root, name string) string {
	return "echo \"" + name + " $*\" >> \"" + filepath.Join(root, "calls.log") + "\"\n"
}

// pipModuleScript records "python -m pip args..." as "pip args..." and exits.
func pipModuleScript(root string) string {
	return "if [ \"$1\" = \"-m\" ] && [ \"$2\" = \"pip\" ]; then\n" +
		"  shift\n" +
		"  echo \"$*\" >> \"" + filepath.Join(root, "calls.log") + "\"\n" +
		"  exit 0\n" +
		"fi\n"
}

// ReadCalls returns the lines recorded by RecordingScript scripts.
func ReadCalls(t *testing.T, root string) []string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, "calls.log"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read calls.log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
