// Package supervisor spawns and watches the launcher's child processes.
//
// A [Spec] describes one child: its role, command line, environment and a
// [StreamPolicy] per standard stream (inherit the launcher's terminal, pipe
// for inspection, or discard). The [Supervisor] offers two modes:
//
//   - [Supervisor.Spawn] is event-driven. Piped output is delivered chunk by
//     chunk to [Handlers] callbacks from background goroutines and OnExit
//     fires once the process has ended and its output has been drained.
//   - [Supervisor.Run] spawns and blocks until the child exits.
//
// A child that cannot be started (missing or non-executable binary) yields a
// *errors.ProcessError matching errors.ErrSpawnFailed from Spawn or Run. A
// child that starts and later exits nonzero is not an error at this level: it
// is reported through [Result].
//
// Basic usage:
//
//	sup := supervisor.New(logger)
//	proc, err := sup.Spawn(ctx, supervisor.Spec{
//	    Role:    supervisor.RoleBackend,
//	    Command: "python3",
//	    Args:    []string{"reposerver.py"},
//	    Stdout:  supervisor.Pipe,
//	    Stderr:  supervisor.Discard,
//	    NewProcessGroup: true,
//	}, supervisor.Handlers{OnStdout: gate.Observe})
//	if err != nil {
//	    return err
//	}
//	defer proc.Terminate(3 * time.Second)
//	<-proc.Done()
package supervisor
