// Package kit runs the kit code-navigation helper installed in the
// provisioned environment. Each call is a short-lived subprocess whose
// combined output is captured; there is no persistent session.
package kit

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/menace-cli/menace/internal/errors"
	"github.com/menace-cli/menace/internal/logging"
)

// Role is the role name used in logs and errors for kit invocations.
const Role = "kit"

// Tool is a kit executable inside an environment.
type Tool struct {
	path   string
	binDir string
	logger *logging.Logger
}

// New creates a Tool for the executable at path. binDir is prepended to
// PATH for every invocation so kit finds the environment's interpreter.
func New(path, binDir string, logger *logging.Logger) *Tool {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Tool{
		path:   path,
		binDir: binDir,
		logger: logger.WithRole(Role),
	}
}

// Path returns the kit executable path.
func (t *Tool) Path() string {
	return t.path
}

// Available reports whether the executable exists.
func (t *Tool) Available() bool {
	info, err := os.Stat(t.path)
	return err == nil && !info.IsDir()
}

// Run executes kit once with args and returns its combined output. The
// output is also returned when the command fails.
func (t *Tool) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, t.path, args...)
	cmd.Env = t.environ()

	t.logger.Debug("running kit", "args", strings.Join(args, " "))
	out, err := cmd.CombinedOutput()
	output := string(out)
	if err == nil {
		return output, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		t.logger.Warn("kit command failed", "exit_code", exitErr.ExitCode())
		return output, errors.NewProcessError("kit command failed", fmt.Errorf("%w: %w", errors.ErrChildCrashed, err)).
			WithRole(Role).
			WithCommand(t.path).
			WithExitCode(exitErr.ExitCode())
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return output, errors.Wrap(ctxErr, "kit command canceled")
	}
	t.logger.Error("kit could not be started", "path", t.path, "error", err.Error())
	return output, errors.NewProcessError("kit could not be started", fmt.Errorf("%w: %w", errors.ErrSpawnFailed, err)).
		WithRole(Role).
		WithCommand(t.path)
}

// InstallCompletion registers kit's shell completion.
func (t *Tool) InstallCompletion(ctx context.Context) (string, error) {
	return t.Run(ctx, "--install-completion")
}

func (t *Tool) environ() []string {
	return PrependPath(os.Environ(), t.binDir)
}

// PrependPath returns env with dir placed first on PATH. Entries other
// than PATH are kept in order. A missing PATH is added.
func PrependPath(env []string, dir string) []string {
	out := make([]string, 0, len(env)+1)
	found := false
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if ok && isPathKey(key) && !found {
			found = true
			if value == "" {
				kv = key + "=" + dir
			} else {
				kv = key + "=" + dir + string(os.PathListSeparator) + value
			}
		}
		out = append(out, kv)
	}
	if !found {
		out = append(out, "PATH="+dir)
	}
	return out
}

// Binary returns the kit executable path inside an environment root.
func Binary(root, goos string) string {
	if goos == "windows" {
		return filepath.Join(root, "Scripts", "kit.exe")
	}
	return filepath.Join(root, "bin", "kit")
}
