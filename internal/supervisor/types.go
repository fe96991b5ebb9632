package supervisor

import (
	"fmt"
	"strings"
)

// Role identifies which of the two managed processes a child is.
type Role string

const (
	// RoleBackend is the long-running service the agent talks to.
	RoleBackend Role = "backend"
	// RoleAgent is the interactive terminal program.
	RoleAgent Role = "agent"
)

// StreamPolicy selects how one standard stream of a child is wired.
type StreamPolicy int

const (
	// Inherit connects the stream to the launcher's own stream.
	Inherit StreamPolicy = iota
	// Pipe connects the stream to the launcher for programmatic use.
	Pipe
	// Discard connects the stream to the null device.
	Discard
)

// String returns the config spelling of the policy.
func (p StreamPolicy) String() string {
	switch p {
	case Inherit:
		return "inherit"
	case Pipe:
		return "pipe"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}

// ParseStreamPolicy parses "inherit", "pipe" or "discard".
func ParseStreamPolicy(s string) (StreamPolicy, error) {
	switch strings.ToLower(s) {
	case "inherit":
		return Inherit, nil
	case "pipe":
		return Pipe, nil
	case "discard":
		return Discard, nil
	default:
		return Inherit, fmt.Errorf("unknown stream policy %q", s)
	}
}

// State is the lifecycle state of a managed process.
type State int

const (
	// StateNotStarted is the state before Spawn is called.
	StateNotStarted State = iota
	// StateStarting covers the window between spawn request and OS confirmation.
	StateStarting
	// StateRunning means the OS process exists.
	StateRunning
	// StateExited means the process ended and reported an exit status.
	StateExited
	// StateFailed means the process could not be started or waited on.
	StateFailed
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions can happen.
func (s State) IsTerminal() bool {
	return s == StateExited || s == StateFailed
}

// Spec describes a child process to spawn.
type Spec struct {
	Role    Role
	Command string
	Args    []string
	// Dir is the working directory; empty means the launcher's.
	Dir string
	// Env is the complete environment; nil means the launcher's.
	Env []string

	// Stdin is Inherit or Discard; there is no writer for a piped stdin.
	Stdin  StreamPolicy
	Stdout StreamPolicy
	Stderr StreamPolicy

	// NewProcessGroup places the child in its own process group so that
	// termination reaches its descendants and terminal signals do not.
	NewProcessGroup bool
}

// String renders the command line for logs and errors.
func (s Spec) String() string {
	if len(s.Args) == 0 {
		return s.Command
	}
	return s.Command + " " + strings.Join(s.Args, " ")
}

// Handlers receive events for a process started with Spawn. Any may be nil.
// Chunks passed to OnStdout and OnStderr are owned by the callee.
type Handlers struct {
	OnStdout func(chunk []byte)
	OnStderr func(chunk []byte)
	OnExit   func(Result)
}

// Result is the outcome of a process that was started.
type Result struct {
	// Code is the exit code, or -1 when the OS did not report one
	// (killed by a signal, or the wait itself failed).
	Code int
	// Signaled is true when the process was terminated by a signal.
	Signaled bool
	// Err is set when waiting on the process failed for a reason other
	// than a nonzero exit.
	Err error
}

// Success reports a zero exit code with no wait error.
func (r Result) Success() bool {
	return r.Code == 0 && r.Err == nil
}
