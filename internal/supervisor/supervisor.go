package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/menace-cli/menace/internal/errors"
	"github.com/menace-cli/menace/internal/logging"
)

const (
	// DefaultGracePeriod is how long Terminate waits between the polite
	// signal and the kill.
	DefaultGracePeriod = 3 * time.Second

	// defaultWaitDelay bounds how long Wait keeps draining pipes after the
	// child exited, for descendants that inherited the pipe.
	defaultWaitDelay = 2 * time.Second

	groupPollInterval = 50 * time.Millisecond
)

// Supervisor spawns child processes. The zero value is not usable; create
// one with New.
type Supervisor struct {
	logger *logging.Logger

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	mu        sync.Mutex
	grace     time.Duration
	waitDelay time.Duration
}

// New creates a Supervisor whose Inherit streams are the launcher's own
// stdin, stdout and stderr.
func New(logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Supervisor{
		logger:    logger,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		grace:     DefaultGracePeriod,
		waitDelay: defaultWaitDelay,
	}
}

// SetStdio replaces the streams handed to children with an Inherit policy.
func (s *Supervisor) SetStdio(stdin io.Reader, stdout, stderr io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stdin, s.stdout, s.stderr = stdin, stdout, stderr
}

// SetGracePeriod sets the grace period used when a context cancellation
// terminates a child.
func (s *Supervisor) SetGracePeriod(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grace = d
}

// Spawn starts a child and returns immediately. Events are delivered to h.
// When ctx is done the child is terminated with the supervisor's grace period.
//
// A start failure returns a *errors.ProcessError matching errors.ErrSpawnFailed
// and no Process; h.OnExit is not called in that case.
func (s *Supervisor) Spawn(ctx context.Context, spec Spec, h Handlers) (*Process, error) {
	log := s.logger.WithRole(string(spec.Role))

	if spec.Command == "" {
		return nil, errors.NewProcessError("no command given", errors.ErrSpawnFailed).
			WithRole(string(spec.Role))
	}

	s.mu.Lock()
	stdin, stdout, stderr := s.stdin, s.stdout, s.stderr
	grace, waitDelay := s.grace, s.waitDelay
	s.mu.Unlock()

	p := &Process{
		spec:   spec,
		logger: log,
		state:  StateStarting,
		done:   make(chan struct{}),
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.WaitDelay = waitDelay
	configureProcessGroup(cmd, spec.NewProcessGroup)

	if spec.Stdin == Inherit {
		cmd.Stdin = stdin
	}
	cmd.Stdout = outputFor(spec.Stdout, stdout, h.OnStdout)
	cmd.Stderr = outputFor(spec.Stderr, stderr, h.OnStderr)

	p.cmd = cmd
	if err := cmd.Start(); err != nil {
		return nil, p.startFailed(err)
	}

	p.mu.Lock()
	p.state = StateRunning
	p.mu.Unlock()

	log.Info("process started",
		"pid", cmd.Process.Pid,
		"command", spec.String(),
		"stdout", spec.Stdout.String(),
		"stderr", spec.Stderr.String())

	go p.wait(h.OnExit)
	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				log.Info("context done, terminating", "reason", ctx.Err())
				_ = p.Terminate(grace)
			case <-p.done:
			}
		}()
	}

	return p, nil
}

// Run spawns a child and blocks until it exits (blocking mode). Spawn
// failures are returned as errors; exit status is reported in the Result.
func (s *Supervisor) Run(ctx context.Context, spec Spec) (Result, error) {
	p, err := s.Spawn(ctx, spec, Handlers{})
	if err != nil {
		return Result{Code: -1}, err
	}
	<-p.Done()
	return p.Result(), nil
}

// outputFor maps a policy to the writer handed to exec.
func outputFor(policy StreamPolicy, parent io.Writer, fn func([]byte)) io.Writer {
	switch policy {
	case Inherit:
		return parent
	case Pipe:
		if fn == nil {
			return io.Discard
		}
		return chunkWriter(fn)
	default:
		return nil
	}
}

// chunkWriter hands each write to a callback as an owned copy.
type chunkWriter func([]byte)

func (w chunkWriter) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	w(buf)
	return len(p), nil
}

// Process is a child started by a Supervisor.
type Process struct {
	spec   Spec
	cmd    *exec.Cmd
	logger *logging.Logger

	mu     sync.Mutex
	state  State
	result Result

	done chan struct{}
}

func (p *Process) startFailed(err error) error {
	p.mu.Lock()
	p.state = StateFailed
	p.result = Result{Code: -1, Err: err}
	p.mu.Unlock()
	close(p.done)

	p.logger.Error("process failed to start", "command", p.spec.String(), "error", err.Error())
	return errors.NewProcessError("failed to start", fmt.Errorf("%w: %w", errors.ErrSpawnFailed, err)).
		WithRole(string(p.spec.Role)).
		WithCommand(p.spec.Command)
}

func (p *Process) wait(onExit func(Result)) {
	err := p.cmd.Wait()
	res := resultFrom(p.cmd.ProcessState, err)

	p.mu.Lock()
	p.result = res
	if res.Err != nil && res.Code < 0 && !res.Signaled {
		p.state = StateFailed
	} else {
		p.state = StateExited
	}
	p.mu.Unlock()

	p.logger.Info("process exited",
		"pid", p.cmd.Process.Pid,
		"exit_code", res.Code,
		"signaled", res.Signaled)

	if onExit != nil {
		onExit(res)
	}
	close(p.done)
}

func resultFrom(ps *os.ProcessState, err error) Result {
	res := Result{Code: -1}
	if ps != nil {
		res.Code = ps.ExitCode()
		if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			res.Signaled = true
		}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
			res.Err = err
		}
	}
	return res
}

// Terminate asks the process to stop, then kills it if it is still alive
// after grace. It returns once the process has been reaped. For a child in
// its own process group, members that outlive the leader are stopped the
// same way, also when the leader had already exited. Otherwise calling it
// on a process that already ended is a no-op.
func (p *Process) Terminate(grace time.Duration) error {
	p.mu.Lock()
	running := p.state == StateRunning
	var proc *os.Process
	if p.cmd != nil {
		proc = p.cmd.Process
	}
	p.mu.Unlock()
	if proc == nil {
		return nil
	}

	if running {
		if err := p.stopLeader(proc, grace); err != nil {
			return err
		}
	}
	if p.spec.NewProcessGroup {
		p.stopGroup(proc.Pid, grace)
	}
	return nil
}

func (p *Process) stopLeader(proc *os.Process, grace time.Duration) error {
	group := p.spec.NewProcessGroup
	if grace > 0 {
		if err := signalTerminate(proc, group); err != nil {
			p.logger.Debug("terminate signal failed (may have exited)", "error", err.Error())
		}
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.done:
			return nil
		case <-timer.C:
			p.logger.Warn("process ignored terminate, killing", "grace", grace.String())
		}
	}

	if err := signalKill(proc, group); err != nil {
		select {
		case <-p.done:
			return nil
		default:
		}
		return fmt.Errorf("failed to kill %s process: %w", p.spec.Role, err)
	}
	<-p.done
	return nil
}

// stopGroup stops whatever is left in the group led by pgid. The leader's
// pid stays reserved as the group id while any member is alive.
func (p *Process) stopGroup(pgid int, grace time.Duration) {
	if !groupAlive(pgid) {
		return
	}
	p.logger.Info("stopping remaining process group members", "pgid", pgid)
	if grace > 0 {
		if err := terminateGroup(pgid); err != nil {
			p.logger.Debug("group terminate signal failed", "error", err.Error())
		}
		deadline := time.Now().Add(grace)
		for groupAlive(pgid) && time.Now().Before(deadline) {
			time.Sleep(groupPollInterval)
		}
		if !groupAlive(pgid) {
			return
		}
		p.logger.Warn("process group ignored terminate, killing", "pgid", pgid)
	}
	if err := killGroup(pgid); err != nil {
		p.logger.Debug("group kill failed", "error", err.Error())
	}
}

// Role returns the role from the spec.
func (p *Process) Role() Role {
	return p.spec.Role
}

// PID returns the OS process id.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// State returns the current lifecycle state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed once the process has exited (or failed to start) and all
// piped output has been delivered.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Result returns the exit result. It is only meaningful after Done.
func (p *Process) Result() Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}
