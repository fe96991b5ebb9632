package kit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menace-cli/menace/internal/errors"
	"github.com/menace-cli/menace/internal/testutil"
)

func TestBinary(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"linux", filepath.Join("/v", "bin", "kit")},
		{"darwin", filepath.Join("/v", "bin", "kit")},
		{"windows", filepath.Join("/v", "Scripts", "kit.exe")},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			if got := Binary("/v", tt.goos); got != tt.want {
				t.Errorf("Binary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrependPath(t *testing.T) {
	sep := string(os.PathListSeparator)
	tests := []struct {
		name string
		env  []string
		want []string
	}{
		{
			name: "existing PATH",
			env:  []string{"HOME=/h", "PATH=/usr/bin"},
			want: []string{"HOME=/h", "PATH=/v/bin" + sep + "/usr/bin"},
		},
		{
			name: "empty PATH",
			env:  []string{"PATH="},
			want: []string{"PATH=/v/bin"},
		},
		{
			name: "missing PATH",
			env:  []string{"HOME=/h"},
			want: []string{"HOME=/h", "PATH=/v/bin"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PrependPath(tt.env, "/v/bin")
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("PrependPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRun(t *testing.T) {
	testutil.SkipIfNoShell(t)

	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	path := testutil.WriteScript(t, bin, "kit", `
echo "args: $*"
echo "path: ${PATH%%:*}"
echo "warn" >&2
`)

	tool := New(path, bin, nil)
	if !tool.Available() {
		t.Fatal("Available() = false for existing script")
	}

	out, err := tool.Run(context.Background(), "symbols", "main.go")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, want := range []string{"args: symbols main.go", "path: " + bin, "warn"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestRun_Failure(t *testing.T) {
	testutil.SkipIfNoShell(t)

	bin := t.TempDir()
	path := testutil.WriteScript(t, bin, "kit", "echo 'no such symbol'\nexit 2\n")

	out, err := New(path, bin, nil).Run(context.Background(), "find", "x")
	if err == nil {
		t.Fatal("Run() expected error for nonzero exit")
	}
	if !strings.Contains(out, "no such symbol") {
		t.Errorf("output should be returned on failure, got %q", out)
	}
	var procErr *errors.ProcessError
	if !errors.As(err, &procErr) {
		t.Fatalf("error should be a ProcessError, got %T", err)
	}
	if procErr.Role != Role || procErr.ExitCode != 2 {
		t.Errorf("ProcessError = role %q exit %d, want kit/2", procErr.Role, procErr.ExitCode)
	}
}

func TestRun_Missing(t *testing.T) {
	tool := New(filepath.Join(t.TempDir(), "bin", "kit"), "", nil)
	if tool.Available() {
		t.Error("Available() = true for missing executable")
	}
	_, err := tool.Run(context.Background(), "--help")
	if !errors.Is(err, errors.ErrSpawnFailed) {
		t.Errorf("error = %v, want ErrSpawnFailed", err)
	}
}

func TestInstallCompletion(t *testing.T) {
	testutil.SkipIfNoShell(t)

	bin := t.TempDir()
	path := testutil.WriteScript(t, bin, "kit", "echo \"$1\"\n")

	out, err := New(path, bin, nil).InstallCompletion(context.Background())
	if err != nil {
		t.Fatalf("InstallCompletion() error = %v", err)
	}
	if strings.TrimSpace(out) != "--install-completion" {
		t.Errorf("output = %q", out)
	}
}
