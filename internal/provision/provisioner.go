// Package provision ensures the Python environment the backend and the kit
// helper run in. An environment that already exists is used as is; a
// missing one is created, populated and registered once.
package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"

	"github.com/menace-cli/menace/internal/errors"
	"github.com/menace-cli/menace/internal/logging"
)

// Phase names, in execution order.
const (
	PhaseValidate     = "validate"
	PhaseCreateVenv   = "create-venv"
	PhaseUpgradePip   = "upgrade-pip"
	PhaseBuildTools   = "build-tools"
	PhaseRequirements = "requirements"
	PhaseCompletion   = "completion"
	PhaseRegister     = "register"
)

const lockRetryDelay = 200 * time.Millisecond

// Options configures a Provisioner.
type Options struct {
	// DefaultPath is the environment root used when no override is given.
	DefaultPath string
	// Python is the system interpreter used to create the environment.
	Python string
	// Requirements is the requirements file installed into the environment.
	Requirements string
	// BuildTools are upgraded before the requirements are installed.
	BuildTools []string
	// Lock serializes provisioning across processes with a file lock.
	Lock bool
	// GOOS selects the environment layout; empty means the host.
	GOOS string
}

// Provisioner prepares environments.
type Provisioner struct {
	opts      Options
	runner    Runner
	registrar Registrar
	logger    *logging.Logger

	// completion runs kit's completion installer for the completion phase.
	completion func(ctx context.Context, env Environment) error
}

// New creates a Provisioner.
func New(opts Options, runner Runner, registrar Registrar, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	p := &Provisioner{opts: opts, runner: runner, registrar: registrar, logger: logger}
	p.completion = p.installCompletion
	return p
}

type phase struct {
	name string
	run  func(ctx context.Context, env Environment) error
}

// Ensure returns a provisioned environment. A non-empty override is
// trusted but must contain a package manager. Otherwise the default path
// is used, and created with every installation phase if missing.
func (p *Provisioner) Ensure(ctx context.Context, override string) (Environment, error) {
	if override != "" {
		return p.useOverride(override)
	}

	root := p.opts.DefaultPath
	if root == "" {
		return Environment{}, errors.NewProvisionError("no environment path configured", nil).
			WithPhase(PhaseValidate)
	}
	if env, ok := p.existing(root); ok {
		return env, nil
	}

	if p.opts.Lock {
		unlock, err := p.lock(ctx, root)
		if err != nil {
			return Environment{}, err
		}
		defer unlock()
		// Another launcher may have finished while we waited.
		if env, ok := p.existing(root); ok {
			return env, nil
		}
	}

	env := Layout(root, p.opts.GOOS)
	p.logger.Info("provisioning environment", "root", root)
	if err := p.runPhases(ctx, env, p.phases(true)); err != nil {
		return Environment{}, err
	}
	env.Provisioned = true
	p.logger.Info("environment provisioned", "root", root)
	return env, nil
}

// Redo re-runs every phase after create-venv against an existing
// environment (override, or the default path).
func (p *Provisioner) Redo(ctx context.Context, override string) (Environment, error) {
	root := override
	if root == "" {
		root = p.opts.DefaultPath
	}
	env := Layout(root, p.opts.GOOS)
	if !exists(root) {
		return Environment{}, errors.NewProvisionError("environment does not exist", nil).
			WithPhase(PhaseValidate).
			WithRoot(root)
	}
	if !isFile(env.PackageManager) {
		return Environment{}, errors.NewProvisionError("package manager not found: "+env.PackageManager, nil).
			WithPhase(PhaseValidate).
			WithRoot(root)
	}

	p.logger.Info("re-provisioning environment", "root", root)
	if err := p.runPhases(ctx, env, p.phases(false)); err != nil {
		return Environment{}, err
	}
	env.Provisioned = true
	return env, nil
}

func (p *Provisioner) useOverride(root string) (Environment, error) {
	env, err := TrustOverride(root, p.opts.GOOS)
	if err != nil {
		p.logger.Error("override environment has no package manager",
			"root", root, "package_manager", env.PackageManager)
		return Environment{}, err
	}
	p.logger.Info("using environment override", "root", root)
	return env, nil
}

// TrustOverride returns the environment at root as provisioned without
// running any phase. Its package manager must exist; there is no fallback
// to system tooling.
func TrustOverride(root, goos string) (Environment, error) {
	env := Layout(root, goos)
	if !isFile(env.PackageManager) {
		return env, errors.NewProvisionError("package manager not found: "+env.PackageManager, nil).
			WithPhase(PhaseValidate).
			WithRoot(root)
	}
	env.Provisioned = true
	return env, nil
}

func (p *Provisioner) existing(root string) (Environment, bool) {
	if !exists(root) {
		return Environment{}, false
	}
	env := Layout(root, p.opts.GOOS)
	env.Provisioned = true
	p.logger.Debug("environment already provisioned", "root", root)
	return env, true
}

func (p *Provisioner) phases(create bool) []phase {
	var phases []phase
	if create {
		phases = append(phases, phase{PhaseCreateVenv, func(ctx context.Context, env Environment) error {
			return p.runner.Run(ctx, p.opts.Python, "-m", "venv", env.Root)
		}})
	}
	phases = append(phases,
		phase{PhaseUpgradePip, func(ctx context.Context, env Environment) error {
			return p.pip(ctx, env, "install", "--upgrade", "pip")
		}},
		phase{PhaseBuildTools, func(ctx context.Context, env Environment) error {
			if len(p.opts.BuildTools) == 0 {
				return nil
			}
			return p.pip(ctx, env, append([]string{"install", "--upgrade"}, p.opts.BuildTools...)...)
		}},
		phase{PhaseRequirements, func(ctx context.Context, env Environment) error {
			if p.opts.Requirements == "" {
				return nil
			}
			return p.pip(ctx, env, "install", "-r", p.opts.Requirements)
		}},
		phase{PhaseCompletion, func(ctx context.Context, env Environment) error {
			return p.completion(ctx, env)
		}},
		phase{PhaseRegister, func(ctx context.Context, env Environment) error {
			return p.registrar.Register(ctx, EnvVar, env.Root)
		}},
	)
	return phases
}

// pip runs the environment's package manager through its interpreter.
// pip.exe on Windows refuses to upgrade itself.
func (p *Provisioner) pip(ctx context.Context, env Environment, args ...string) error {
	return p.runner.Run(ctx, env.Interpreter, append([]string{"-m", "pip"}, args...)...)
}

func (p *Provisioner) installCompletion(ctx context.Context, env Environment) error {
	tool := env.Tool(p.logger)
	out, err := tool.InstallCompletion(ctx)
	if err != nil {
		return &CommandError{Name: tool.Path(), Args: []string{"--install-completion"}, Output: out, Err: err}
	}
	return nil
}

func (p *Provisioner) runPhases(ctx context.Context, env Environment, phases []phase) error {
	for _, ph := range phases {
		log := p.logger.WithPhase(ph.name)
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrInterrupted, "provisioning canceled before "+ph.name)
		}

		start := time.Now()
		log.Info("phase started")
		if err := ph.run(ctx, env); err != nil {
			if ctx.Err() != nil {
				return errors.Wrap(errors.ErrInterrupted, "provisioning canceled during "+ph.name)
			}
			perr := errors.NewProvisionError("phase failed", err).WithPhase(ph.name).WithRoot(env.Root)
			var cmdErr *CommandError
			if errors.As(err, &cmdErr) {
				perr = perr.WithOutput(cmdErr.Output)
			}
			log.Error("phase failed", "error", err.Error())
			return perr
		}
		log.Info("phase completed", "duration_ms", time.Since(start).Milliseconds())
	}
	return nil
}

// lock takes the cross-process provisioning lock next to root.
func (p *Provisioner) lock(ctx context.Context, root string) (func(), error) {
	path := root + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.NewProvisionError("failed to create lock directory", err).WithPhase(PhaseValidate)
	}

	fl := flock.New(path)
	p.logger.Debug("waiting for provisioning lock", "path", path)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrInterrupted, "waiting for provisioning lock")
		}
		return nil, errors.NewProvisionError(fmt.Sprintf("failed to lock %s", path), err).WithPhase(PhaseValidate)
	}
	if !locked {
		return nil, errors.NewProvisionError("provisioning lock held: "+path, nil).WithPhase(PhaseValidate)
	}
	return func() { _ = fl.Unlock() }, nil
}
