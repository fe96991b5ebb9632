package launcher

import (
	"context"
	"time"

	"github.com/menace-cli/menace/internal/provision"
	"github.com/menace-cli/menace/internal/supervisor"
)

// Child is a running process as seen by the coordinator.
type Child interface {
	PID() int
	Done() <-chan struct{}
	Result() supervisor.Result
	Terminate(grace time.Duration) error
}

// Spawner starts children. Spawn is the event-driven mode; Run blocks
// until the child exits.
type Spawner interface {
	Spawn(ctx context.Context, spec supervisor.Spec, h supervisor.Handlers) (Child, error)
	Run(ctx context.Context, spec supervisor.Spec) (supervisor.Result, error)
}

// Provisioner ensures the Python environment.
type Provisioner interface {
	Ensure(ctx context.Context, override string) (provision.Environment, error)
}

// SupervisorSpawner adapts a *supervisor.Supervisor to Spawner.
func SupervisorSpawner(s *supervisor.Supervisor) Spawner {
	return supervisorSpawner{s}
}

type supervisorSpawner struct {
	s *supervisor.Supervisor
}

func (a supervisorSpawner) Spawn(ctx context.Context, spec supervisor.Spec, h supervisor.Handlers) (Child, error) {
	p, err := a.s.Spawn(ctx, spec, h)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (a supervisorSpawner) Run(ctx context.Context, spec supervisor.Spec) (supervisor.Result, error) {
	return a.s.Run(ctx, spec)
}
