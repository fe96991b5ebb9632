// Package launcher sequences a menace session: platform resolution,
// environment provisioning, backend start, the readiness handshake and the
// agent run. It owns teardown and the exit code of the launcher.
//
// The sequence is a state machine:
//
//	Init -> Provisioning -> StartingBackend -> WaitingForReady ->
//	StartingAgent -> Running -> Teardown -> Terminal
//
// Provisioning is skipped when Options.ProvisioningRequired is false.
// StartingBackend and WaitingForReady are skipped when the backend is not
// required or is already provided by the environment; the agent then runs
// alone in blocking mode. Any fatal error moves straight to Teardown.
package launcher

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/menace-cli/menace/internal/errors"
	"github.com/menace-cli/menace/internal/kit"
	"github.com/menace-cli/menace/internal/logging"
	"github.com/menace-cli/menace/internal/platform"
	"github.com/menace-cli/menace/internal/provision"
	"github.com/menace-cli/menace/internal/readiness"
	"github.com/menace-cli/menace/internal/supervisor"
)

// Options configures a Coordinator.
type Options struct {
	// BackendRequired selects the dual-process sequence.
	BackendRequired bool
	// BackendExternal means a backend is already serving
	// (MENACE_SERVER_READY=1 in the launcher's environment).
	BackendExternal bool
	// ProvisioningRequired runs the provisioner before any spawn.
	ProvisioningRequired bool

	// GOOS and GOARCH select the agent binary; empty means the host.
	GOOS   string
	GOARCH string
	// BinDir contains the agent binaries.
	BinDir string
	// AgentArgs are passed through to the agent.
	AgentArgs []string

	// BackendScript is the backend entry point run by the interpreter.
	BackendScript string
	// BackendDir is the backend working directory; empty means BinDir.
	BackendDir string
	// BackendStderr is the stream policy for backend stderr. Piped stderr
	// is written to the log.
	BackendStderr supervisor.StreamPolicy
	// Port is exported to both children as MENACE_PORT.
	Port int

	// EnvOverride is an existing environment to use instead of the default.
	EnvOverride string
	// Python is the interpreter when no environment is available.
	Python string

	// Sentinel is the readiness marker; empty means readiness.DefaultSentinel.
	Sentinel string
	// ReadyTimeout bounds the readiness wait (0 = unbounded).
	ReadyTimeout time.Duration
	// StopGrace is the SIGTERM to SIGKILL delay at teardown.
	StopGrace time.Duration

	// BaseEnv is the environment children inherit; nil means os.Environ().
	BaseEnv []string

	// OnTransition, if set, is called synchronously on every state change.
	OnTransition func(Transition)
}

// Coordinator runs one session. It is not reusable.
type Coordinator struct {
	opts        Options
	provisioner Provisioner
	spawner     Spawner
	logger      *logging.Logger

	mu       sync.Mutex
	state    State
	timeline Timeline

	backend Child
	agent   Child
}

// New creates a Coordinator. provisioner may be nil when
// opts.ProvisioningRequired is false.
func New(opts Options, provisioner Provisioner, spawner Spawner, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.GOARCH == "" {
		opts.GOARCH = runtime.GOARCH
	}
	if opts.Sentinel == "" {
		opts.Sentinel = readiness.DefaultSentinel
	}
	if opts.BaseEnv == nil {
		opts.BaseEnv = os.Environ()
	}
	return &Coordinator{
		opts:        opts,
		provisioner: provisioner,
		spawner:     spawner,
		logger:      logger,
		state:       StateInit,
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// DualProcess reports whether the session starts its own backend.
func (c *Coordinator) DualProcess() bool {
	return c.opts.BackendRequired && !c.opts.BackendExternal
}

func (c *Coordinator) transition(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()

	c.logger.Info("state transition", "from", from.String(), "to", to.String())
	if c.opts.OnTransition != nil {
		c.opts.OnTransition(Transition{From: from, To: to, At: time.Now()})
	}
}

func (c *Coordinator) mark(field *time.Time) {
	c.mu.Lock()
	*field = time.Now()
	c.mu.Unlock()
}

// Run executes the session and blocks until it ends. Canceling ctx
// interrupts the session; both children are terminated before Run returns.
func (c *Coordinator) Run(ctx context.Context) Outcome {
	c.mark(&c.timeline.StartedAt)

	agentPath, err := platform.BinaryPath(c.opts.BinDir, c.opts.GOOS, c.opts.GOARCH)
	if err != nil {
		c.logger.Error("unsupported platform", "os", c.opts.GOOS, "arch", c.opts.GOARCH)
		return c.finish(CauseUnsupportedPlatform, err)
	}
	c.logger.Debug("resolved agent binary", "path", agentPath)

	env, err := c.ensureEnvironment(ctx)
	if err != nil {
		if isInterrupt(ctx, err) {
			return c.finish(CauseInterrupted, interrupted(err))
		}
		return c.finish(CauseProvisioningFailed, err)
	}

	if !c.DualProcess() {
		return c.runAgentOnly(ctx, agentPath, env)
	}
	return c.runDual(ctx, agentPath, env)
}

func (c *Coordinator) ensureEnvironment(ctx context.Context) (provision.Environment, error) {
	if !c.opts.ProvisioningRequired {
		if c.opts.EnvOverride != "" {
			env, err := provision.TrustOverride(c.opts.EnvOverride, c.opts.GOOS)
			if err != nil {
				c.logger.Error("environment override rejected", "error", err.Error())
				return provision.Environment{}, err
			}
			return env, nil
		}
		return provision.Environment{}, nil
	}

	c.transition(StateProvisioning)
	if c.provisioner == nil {
		return provision.Environment{}, errors.NewProvisionError("no provisioner configured", nil)
	}
	env, err := c.provisioner.Ensure(ctx, c.opts.EnvOverride)
	if err != nil {
		c.logger.Error("provisioning failed", "error", err.Error())
		return provision.Environment{}, err
	}
	return env, nil
}

// runAgentOnly is the single-process sequence: the agent runs alone in
// blocking mode.
func (c *Coordinator) runAgentOnly(ctx context.Context, agentPath string, env provision.Environment) Outcome {
	c.transition(StateStartingAgent)
	spec := c.agentSpec(agentPath, env, c.opts.BackendExternal)

	c.mark(&c.timeline.AgentStartedAt)
	c.transition(StateRunning)
	res, err := c.spawner.Run(ctx, spec)
	if err != nil {
		return c.finish(CauseSpawnFailed, err)
	}
	if ctx.Err() != nil {
		return c.finish(CauseInterrupted, interrupted(ctx.Err()))
	}
	return c.agentEnded(res)
}

func (c *Coordinator) runDual(ctx context.Context, agentPath string, env provision.Environment) Outcome {
	c.transition(StateStartingBackend)

	gate := readiness.New(c.opts.Sentinel)
	backendDone := make(chan supervisor.Result, 1)
	gate.OnReady(func() {
		c.logger.Info("backend ready", "sentinel", gate.Sentinel())
	})

	backend, err := c.spawner.Spawn(ctx, c.backendSpec(env), supervisor.Handlers{
		OnStdout: func(chunk []byte) {
			gate.Observe(chunk)
		},
		OnStderr: func(chunk []byte) {
			c.logger.Debug("backend stderr", "output", string(chunk))
		},
		OnExit: func(res supervisor.Result) {
			backendDone <- res
			gate.StreamClosed()
		},
	})
	if err != nil {
		return c.finish(CauseSpawnFailed, err)
	}
	c.setBackend(backend)
	c.mark(&c.timeline.BackendStartedAt)

	c.transition(StateWaitingForReady)
	if err := gate.Wait(ctx, c.opts.ReadyTimeout); err != nil {
		if ctx.Err() != nil {
			return c.finish(CauseInterrupted, interrupted(ctx.Err()))
		}
		return c.finish(CauseBackendNeverReady, c.neverReady(err, backendDone))
	}
	c.mu.Lock()
	c.timeline.ReadyAt = gate.FiredAt()
	c.mu.Unlock()

	c.transition(StateStartingAgent)
	agentDone := make(chan supervisor.Result, 1)
	agent, err := c.spawner.Spawn(ctx, c.agentSpec(agentPath, env, true), supervisor.Handlers{
		OnExit: func(res supervisor.Result) { agentDone <- res },
	})
	if err != nil {
		return c.finish(CauseSpawnFailed, err)
	}
	c.setAgent(agent)
	c.mark(&c.timeline.AgentStartedAt)

	c.transition(StateRunning)
	select {
	case res := <-agentDone:
		if ctx.Err() != nil {
			return c.finish(CauseInterrupted, interrupted(ctx.Err()))
		}
		return c.agentEnded(res)
	case res := <-backendDone:
		if ctx.Err() != nil {
			return c.finish(CauseInterrupted, interrupted(ctx.Err()))
		}
		c.logger.Error("backend exited while agent running", "exit_code", res.Code, "signaled", res.Signaled)
		return c.finish(CauseBackendCrashed, errors.NewProcessError("backend exited during session", errors.ErrChildCrashed).
			WithRole(string(supervisor.RoleBackend)).
			WithExitCode(res.Code))
	case <-ctx.Done():
		return c.finish(CauseInterrupted, interrupted(ctx.Err()))
	}
}

// neverReady builds the error for a failed readiness wait. When the backend
// already exited its exit status is attached.
func (c *Coordinator) neverReady(waitErr error, backendDone <-chan supervisor.Result) error {
	if errors.Is(waitErr, errors.ErrTimeout) {
		c.logger.Error("backend not ready in time", "timeout", c.opts.ReadyTimeout.String())
		return waitErr
	}
	// The stream ends only from OnExit, after the result was sent.
	res := <-backendDone
	c.logger.Error("backend exited before ready", "exit_code", res.Code, "signaled", res.Signaled)
	procErr := errors.NewProcessError("backend exited before ready", errors.ErrChildCrashed).
		WithRole(string(supervisor.RoleBackend)).
		WithExitCode(res.Code)
	return errors.Join(waitErr, procErr)
}

func (c *Coordinator) agentEnded(res supervisor.Result) Outcome {
	if res.Success() {
		c.logger.Info("agent exited cleanly")
		return c.finish(CauseClean, nil)
	}
	c.logger.Warn("agent exited with failure", "exit_code", res.Code, "signaled", res.Signaled)
	var cause error = errors.ErrChildCrashed
	if res.Err != nil {
		cause = errors.Join(errors.ErrChildCrashed, res.Err)
	}
	return c.finish(CauseAgentCrashed, errors.NewProcessError("agent exited", cause).
		WithRole(string(supervisor.RoleAgent)).
		WithExitCode(res.Code))
}

func (c *Coordinator) setBackend(ch Child) {
	c.mu.Lock()
	c.backend = ch
	c.mu.Unlock()
}

func (c *Coordinator) setAgent(ch Child) {
	c.mu.Lock()
	c.agent = ch
	c.mu.Unlock()
}

// finish tears down whichever children are alive and computes the outcome.
func (c *Coordinator) finish(cause Cause, err error) Outcome {
	c.transition(StateTeardown)

	c.mu.Lock()
	agent, backend := c.agent, c.backend
	c.mu.Unlock()

	// Agent first: it is the backend's only client.
	for _, child := range []Child{agent, backend} {
		if child == nil {
			continue
		}
		if terr := child.Terminate(c.opts.StopGrace); terr != nil {
			c.logger.Warn("failed to terminate child", "pid", child.PID(), "error", terr.Error())
		}
	}

	c.mu.Lock()
	c.timeline.EndedAt = time.Now()
	timeline := c.timeline
	c.mu.Unlock()

	outcome := Outcome{
		ExitCode: errors.ExitCode(err),
		Cause:    cause,
		Err:      err,
		Timeline: timeline,
	}
	c.transition(StateTerminal)
	c.logger.Info("session ended",
		"cause", cause.String(),
		"exit_code", outcome.ExitCode,
		"duration_ms", timeline.EndedAt.Sub(timeline.StartedAt).Milliseconds())
	return outcome
}

func (c *Coordinator) childEnv(env provision.Environment, ready bool) []string {
	keys := []string{"MENACE_PORT"}
	set := map[string]string{"MENACE_PORT": strconv.Itoa(c.opts.Port)}
	if env.Root != "" {
		keys = append(keys, provision.EnvVar)
		set[provision.EnvVar] = env.Root
	}
	if ready {
		keys = append(keys, "MENACE_SERVER_READY")
		set["MENACE_SERVER_READY"] = "1"
	}
	return mergeEnv(c.opts.BaseEnv, keys, set)
}

func (c *Coordinator) backendSpec(env provision.Environment) supervisor.Spec {
	interpreter := c.opts.Python
	// The marker must reach the pipe as soon as it is printed.
	childEnv := mergeEnv(c.childEnv(env, false), []string{"PYTHONUNBUFFERED"},
		map[string]string{"PYTHONUNBUFFERED": "1"})
	if env.Root != "" {
		interpreter = env.Interpreter
		childEnv = kit.PrependPath(childEnv, env.BinDir)
	}
	dir := c.opts.BackendDir
	if dir == "" {
		dir = c.opts.BinDir
	}
	return supervisor.Spec{
		Role:            supervisor.RoleBackend,
		Command:         interpreter,
		Args:            []string{c.opts.BackendScript},
		Dir:             dir,
		Env:             childEnv,
		Stdin:           supervisor.Discard,
		Stdout:          supervisor.Pipe,
		Stderr:          c.opts.BackendStderr,
		NewProcessGroup: true,
	}
}

func (c *Coordinator) agentSpec(path string, env provision.Environment, ready bool) supervisor.Spec {
	return supervisor.Spec{
		Role:    supervisor.RoleAgent,
		Command: path,
		Args:    c.opts.AgentArgs,
		Env:     c.childEnv(env, ready),
		Stdin:   supervisor.Inherit,
		Stdout:  supervisor.Inherit,
		Stderr:  supervisor.Inherit,
	}
}

func isInterrupt(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, errors.ErrInterrupted)
}

func interrupted(err error) error {
	if errors.Is(err, errors.ErrInterrupted) {
		return err
	}
	return errors.Join(errors.ErrInterrupted, err)
}

// BackendExternalFromEnv reports whether env marks the backend as already
// serving.
func BackendExternalFromEnv(env []string) bool {
	v, ok := lookupEnv(env, "MENACE_SERVER_READY")
	return ok && v == "1"
}
