// Package errors provides centralized error definitions for the menace
// launcher. It defines the failure taxonomy of a launch, typed errors that
// carry the context of each failure, and the mapping from errors to process
// exit codes.
//
// # Error Types
//
// Domain-specific errors represent failures of a specific launcher stage:
//   - PlatformError: the host (os, arch) pair has no agent binary
//   - ProvisionError: a provisioning phase failed
//   - ProcessError: a child process could not be spawned or crashed
//
// Semantic errors represent common conditions:
//   - TimeoutError: a bounded wait expired
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewProvisionError("pip install failed", cause).WithPhase("requirements")
//	err := errors.NewProcessError("agent exited", errors.ErrChildCrashed).WithRole("agent").WithExitCode(2)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrProvisioningFailed) { ... }
//
//	var procErr *errors.ProcessError
//	if errors.As(err, &procErr) { ... }
//
// Mapping to an exit code:
//
//	os.Exit(errors.ExitCode(err))
//
// No error in this package is retryable: the launcher never retries and never
// attempts partial recovery.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Exit codes returned by the launcher.
const (
	// ExitSuccess is returned when the session ended cleanly.
	ExitSuccess = 0
	// ExitFailure is returned for every launcher-side failure.
	ExitFailure = 1
	// ExitInterrupted is returned when the launch was interrupted by a signal.
	ExitInterrupted = 130
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnsupportedPlatform indicates that no agent binary exists for the host.
	ErrUnsupportedPlatform = New("unsupported platform")
	// ErrProvisioningFailed indicates that preparing the environment failed.
	ErrProvisioningFailed = New("provisioning failed")
	// ErrSpawnFailed indicates that a child process could not be started.
	ErrSpawnFailed = New("spawn failed")
	// ErrBackendNeverReady indicates the backend never printed its readiness marker.
	ErrBackendNeverReady = New("backend never ready")
	// ErrChildCrashed indicates that a child process ended unexpectedly.
	ErrChildCrashed = New("child process crashed")
	// ErrInterrupted indicates that the launch was canceled by the user.
	ErrInterrupted = New("interrupted")
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message string
	cause   error
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// format builds "<kind> [k=v, ...]: message: cause".
func (e *baseError) format(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// PlatformError reports a host platform without an agent binary.
//
// Example:
//
//	err := errors.NewPlatformError("freebsd", "amd64")
//	fmt.Println(err) // "platform error [os=freebsd, arch=amd64]: no agent binary for host"
type PlatformError struct {
	baseError
	OS   string
	Arch string
}

// NewPlatformError creates a new PlatformError for the given pair.
func NewPlatformError(goos, goarch string) *PlatformError {
	return &PlatformError{
		baseError: baseError{message: "no agent binary for host"},
		OS:        goos,
		Arch:      goarch,
	}
}

// Error returns the formatted error message.
func (e *PlatformError) Error() string {
	return e.format("platform error", []string{"os=" + e.OS, "arch=" + e.Arch})
}

// Is matches ErrUnsupportedPlatform and other PlatformErrors.
func (e *PlatformError) Is(target error) bool {
	if _, ok := target.(*PlatformError); ok {
		return true
	}
	return target == ErrUnsupportedPlatform || e.baseError.Is(target)
}

// ProvisionError represents a failed provisioning phase.
//
// Example:
//
//	err := errors.NewProvisionError("command failed", cause).WithPhase("upgrade-pip")
type ProvisionError struct {
	baseError
	Phase  string
	Root   string
	Output string
}

// NewProvisionError creates a new ProvisionError.
func NewProvisionError(message string, cause error) *ProvisionError {
	return &ProvisionError{baseError: baseError{message: message, cause: cause}}
}

// WithPhase records which provisioning phase failed.
func (e *ProvisionError) WithPhase(phase string) *ProvisionError {
	e.Phase = phase
	return e
}

// WithRoot records the environment root being provisioned.
func (e *ProvisionError) WithRoot(root string) *ProvisionError {
	e.Root = root
	return e
}

// WithOutput attaches captured command output.
func (e *ProvisionError) WithOutput(output string) *ProvisionError {
	e.Output = strings.TrimSpace(output)
	return e
}

// Error returns the formatted error message.
func (e *ProvisionError) Error() string {
	var parts []string
	if e.Phase != "" {
		parts = append(parts, "phase="+e.Phase)
	}
	if e.Root != "" {
		parts = append(parts, "root="+e.Root)
	}
	msg := e.format("provision error", parts)
	if e.Output != "" {
		msg += "\noutput: " + e.Output
	}
	return msg
}

// Is matches ErrProvisioningFailed and other ProvisionErrors.
func (e *ProvisionError) Is(target error) bool {
	if _, ok := target.(*ProvisionError); ok {
		return true
	}
	return target == ErrProvisioningFailed || e.baseError.Is(target)
}

// ProcessError represents a child process failure: either it could not be
// spawned (cause ErrSpawnFailed) or it ended unexpectedly (cause ErrChildCrashed).
//
// Example:
//
//	err := errors.NewProcessError("backend exited", errors.ErrChildCrashed).
//		WithRole("backend").WithExitCode(137)
type ProcessError struct {
	baseError
	Role     string
	Command  string
	ExitCode int
	hasCode  bool
}

// NewProcessError creates a new ProcessError.
func NewProcessError(message string, cause error) *ProcessError {
	return &ProcessError{baseError: baseError{message: message, cause: cause}}
}

// WithRole records the role of the failed process.
func (e *ProcessError) WithRole(role string) *ProcessError {
	e.Role = role
	return e
}

// WithCommand records the command that was spawned.
func (e *ProcessError) WithCommand(command string) *ProcessError {
	e.Command = command
	return e
}

// WithExitCode records the exit code reported by the OS.
func (e *ProcessError) WithExitCode(code int) *ProcessError {
	e.ExitCode = code
	e.hasCode = code >= 0
	return e
}

// HasExitCode reports whether an OS exit code is available.
func (e *ProcessError) HasExitCode() bool {
	return e.hasCode
}

// Error returns the formatted error message.
func (e *ProcessError) Error() string {
	var parts []string
	if e.Role != "" {
		parts = append(parts, "role="+e.Role)
	}
	if e.Command != "" {
		parts = append(parts, "cmd="+e.Command)
	}
	if e.hasCode {
		parts = append(parts, fmt.Sprintf("exit=%d", e.ExitCode))
	}
	return e.format("process error", parts)
}

// Is matches other ProcessErrors and anything in the cause chain.
func (e *ProcessError) Is(target error) bool {
	if _, ok := target.(*ProcessError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("waiting for backend readiness", 30*time.Second)
//	fmt.Println(err) // "timeout error: waiting for backend readiness (timeout: 30s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{message: operation},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if target == ErrTimeout {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// ExitCode maps an error returned by a launch to a process exit code.
//
//   - nil: 0
//   - ErrInterrupted: 130
//   - an agent ProcessError crash with a known exit code: that code
//   - everything else: 1
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if Is(err, ErrInterrupted) {
		return ExitInterrupted
	}
	var procErr *ProcessError
	if As(err, &procErr) && procErr.Role == "agent" && Is(err, ErrChildCrashed) {
		if procErr.HasExitCode() && procErr.ExitCode != 0 {
			return procErr.ExitCode
		}
	}
	return ExitFailure
}

// Wrap wraps an error with additional context message.
//
// Example:
//
//	err := errors.Wrap(baseErr, "failed to resolve agent binary")
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
