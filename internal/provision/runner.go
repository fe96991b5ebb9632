package provision

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/menace-cli/menace/internal/logging"
)

// Runner executes one installation command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// CommandError is returned by ExecRunner when a command fails. Output is
// the command's combined stdout and stderr.
type CommandError struct {
	Name   string
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec and captures their output.
type ExecRunner struct {
	// Env is the environment for commands; nil means the launcher's.
	Env    []string
	Logger *logging.Logger
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = r.Env

	if r.Logger != nil {
		r.Logger.Debug("running command", "command", name, "args", strings.Join(args, " "))
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &CommandError{Name: name, Args: args, Output: string(out), Err: err}
	}
	return nil
}
