package launcher

import (
	"time"
)

// State is a step of the launch sequence.
type State int

const (
	StateInit State = iota
	StateProvisioning
	StateStartingBackend
	StateWaitingForReady
	StateStartingAgent
	StateRunning
	StateTeardown
	StateTerminal
)

// String returns a human-readable string for the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateProvisioning:
		return "provisioning"
	case StateStartingBackend:
		return "starting_backend"
	case StateWaitingForReady:
		return "waiting_for_ready"
	case StateStartingAgent:
		return "starting_agent"
	case StateRunning:
		return "running"
	case StateTeardown:
		return "teardown"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Cause classifies how a session ended.
type Cause int

const (
	CauseClean Cause = iota
	CauseBackendCrashed
	CauseBackendNeverReady
	CauseAgentCrashed
	CauseProvisioningFailed
	CauseSpawnFailed
	CauseUnsupportedPlatform
	CauseInterrupted
)

// String returns a human-readable string for the cause.
func (c Cause) String() string {
	switch c {
	case CauseClean:
		return "clean"
	case CauseBackendCrashed:
		return "backend_crashed"
	case CauseBackendNeverReady:
		return "backend_never_ready"
	case CauseAgentCrashed:
		return "agent_crashed"
	case CauseProvisioningFailed:
		return "provisioning_failed"
	case CauseSpawnFailed:
		return "spawn_failed"
	case CauseUnsupportedPlatform:
		return "unsupported_platform"
	case CauseInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Timeline records when the milestones of a session happened. Zero values
// mean the milestone was not reached.
type Timeline struct {
	StartedAt        time.Time
	BackendStartedAt time.Time
	ReadyAt          time.Time
	AgentStartedAt   time.Time
	EndedAt          time.Time
}

// Outcome is the result of a session, computed once at teardown.
type Outcome struct {
	ExitCode int
	Cause    Cause
	// Err is nil for a clean session.
	Err      error
	Timeline Timeline
}

// Transition is reported to Options.OnTransition on every state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}
