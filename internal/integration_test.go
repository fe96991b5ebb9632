// Package internal contains integration tests that verify the launcher
// packages work together against real child processes: provisioning through
// the exec runner, spawning through the supervisor, and the readiness
// handshake between backend and agent.
package internal

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/menace-cli/menace/internal/errors"
	"github.com/menace-cli/menace/internal/launcher"
	"github.com/menace-cli/menace/internal/logging"
	"github.com/menace-cli/menace/internal/platform"
	"github.com/menace-cli/menace/internal/provision"
	"github.com/menace-cli/menace/internal/supervisor"
	"github.com/menace-cli/menace/internal/testutil"
)

// fakeSystemPython answers "python3 -m venv ROOT" by laying out an
// environment whose pip and kit record their calls. Its interpreter records
// "-m pip" calls and otherwise behaves like a backend that becomes ready and
// then serves until stopped.
const fakeSystemPython = `
root="$3"
mkdir -p "$root/bin"
for tool in pip kit; do
  printf '#!/bin/sh\necho "%s $*" >> "%s/calls.log"\n' "$tool" "$root" > "$root/bin/$tool"
  chmod +x "$root/bin/$tool"
done
cat > "$root/bin/python" <<'PY'
#!/bin/sh
if [ "$1" = "-m" ]; then
  shift
  echo "$*" >> "$(dirname "$0")/../calls.log"
  exit 0
fi
echo "booting"
echo "FLASK SERVER READY"
exec sleep 30
PY
chmod +x "$root/bin/python"
`

type fixture struct {
	dir      string
	binDir   string
	agentOut string
}

// newFixture writes an agent for the host platform into a bin directory.
// The agent records its environment and arguments, then runs body.
func newFixture(t *testing.T, agentBody string) fixture {
	t.Helper()
	testutil.SkipIfNoShell(t)

	name, err := platform.Resolve(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		t.Skipf("no agent binary for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	dir := t.TempDir()
	f := fixture{
		dir:      dir,
		binDir:   filepath.Join(dir, "bin"),
		agentOut: filepath.Join(dir, "agent.out"),
	}
	testutil.WriteScript(t, f.binDir, name,
		`echo "port=$MENACE_PORT ready=$MENACE_SERVER_READY venv=$MENACE_VENV_PATH args=$*" > "`+f.agentOut+`"`+"\n"+agentBody)
	testutil.WriteFile(t, filepath.Join(f.binDir, "reposerver.py"), "# run by the fake interpreter\n")
	return f
}

func (f fixture) agentLine(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.agentOut)
	if err != nil {
		t.Fatalf("agent did not run: %v", err)
	}
	return strings.TrimSpace(string(data))
}

func (f fixture) options(envRoot string) launcher.Options {
	return launcher.Options{
		BackendRequired:      true,
		ProvisioningRequired: true,
		BinDir:               f.binDir,
		AgentArgs:            []string{"--theme", "dark"},
		BackendScript:        filepath.Join(f.binDir, "reposerver.py"),
		BackendStderr:        supervisor.Discard,
		Port:                 5974,
		EnvOverride:          envRoot,
		ReadyTimeout:         10 * time.Second,
		StopGrace:            time.Second,
	}
}

func newProvisioner(t *testing.T, defaultPath, python string, profile string) *provision.Provisioner {
	t.Helper()
	runner := &provision.ExecRunner{}
	registrar := provision.NewRegistrar(provision.RegistrarOptions{
		GOOS:        runtime.GOOS,
		ShellPath:   "/bin/zsh",
		ProfilePath: profile,
		Runner:      runner,
	})
	return provision.New(provision.Options{
		DefaultPath: defaultPath,
		Python:      python,
		BuildTools:  []string{"setuptools", "wheel"},
		Lock:        true,
	}, runner, registrar, logging.NopLogger())
}

func runSession(t *testing.T, ctx context.Context, opts launcher.Options, prov launcher.Provisioner) launcher.Outcome {
	t.Helper()
	sup := supervisor.New(logging.NopLogger())
	sup.SetGracePeriod(opts.StopGrace)
	coord := launcher.New(opts, prov, launcher.SupervisorSpawner(sup), logging.NopLogger())

	done := make(chan launcher.Outcome, 1)
	go func() { done <- coord.Run(ctx) }()
	select {
	case out := <-done:
		return out
	case <-time.After(30 * time.Second):
		t.Fatal("session did not end in time")
		return launcher.Outcome{}
	}
}

// TestFirstLaunchProvisionsThenRuns covers a first launch on a clean machine:
// the environment is created, every installer runs, the path is registered,
// the backend becomes ready and only then the agent runs.
func TestFirstLaunchProvisionsThenRuns(t *testing.T) {
	f := newFixture(t, "exit 0\n")

	python := testutil.WriteScript(t, filepath.Join(f.dir, "sys"), "python3", fakeSystemPython)
	root := filepath.Join(f.dir, "home", ".menace", "venv")
	profile := filepath.Join(f.dir, "home", ".zshrc")
	prov := newProvisioner(t, root, python, profile)

	out := runSession(t, context.Background(), f.options(""), prov)

	if out.Cause != launcher.CauseClean || out.ExitCode != 0 {
		t.Fatalf("outcome = %+v, want clean exit", out)
	}
	if got, want := f.agentLine(t), "port=5974 ready=1 venv="+root+" args=--theme dark"; got != want {
		t.Errorf("agent saw %q, want %q", got, want)
	}

	want := []string{
		"pip install --upgrade pip",
		"pip install --upgrade setuptools wheel",
		"kit --install-completion",
	}
	if calls := testutil.ReadCalls(t, root); strings.Join(calls, "\n") != strings.Join(want, "\n") {
		t.Errorf("installer calls = %v, want %v", calls, want)
	}

	data, err := os.ReadFile(profile)
	if err != nil {
		t.Fatalf("profile not written: %v", err)
	}
	if !strings.Contains(string(data), `export MENACE_VENV_PATH='`+root+`'`) {
		t.Errorf("profile = %q", data)
	}
	if out.Timeline.AgentStartedAt.Before(out.Timeline.ReadyAt) {
		t.Error("agent started before the backend was ready")
	}

	// Second launch reuses the environment without running installers again.
	if err := os.Remove(filepath.Join(root, "calls.log")); err != nil {
		t.Fatalf("failed to reset calls: %v", err)
	}
	out = runSession(t, context.Background(), f.options(""), prov)
	if out.Cause != launcher.CauseClean {
		t.Fatalf("second outcome = %+v", out)
	}
	if calls := testutil.ReadCalls(t, root); len(calls) != 0 {
		t.Errorf("second launch ran installers: %v", calls)
	}
}

func TestAgentExitCodeBecomesLauncherExitCode(t *testing.T) {
	f := newFixture(t, "exit 9\n")
	root := testutil.SetupFakeEnv(t, map[string]string{
		"python": "echo \"FLASK SERVER READY\"\nexec sleep 30\n",
	})

	out := runSession(t, context.Background(), f.options(root), newProvisioner(t, "", "python3", ""))

	if out.Cause != launcher.CauseAgentCrashed || out.ExitCode != 9 {
		t.Errorf("outcome = %+v, want agent exit 9", out)
	}
	if !errors.Is(out.Err, errors.ErrChildCrashed) {
		t.Errorf("Err = %v, want ErrChildCrashed", out.Err)
	}
}

func TestBackendExitingBeforeReadyNeverStartsAgent(t *testing.T) {
	f := newFixture(t, "exit 0\n")
	root := testutil.SetupFakeEnv(t, map[string]string{
		"python": "echo \"Traceback: no module named flask\"\nexit 5\n",
	})

	out := runSession(t, context.Background(), f.options(root), newProvisioner(t, "", "python3", ""))

	if out.Cause != launcher.CauseBackendNeverReady || out.ExitCode != 1 {
		t.Errorf("outcome = %+v, want backend never ready, exit 1", out)
	}
	var procErr *errors.ProcessError
	if !errors.As(out.Err, &procErr) || procErr.ExitCode != 5 {
		t.Errorf("Err = %v, want backend exit code 5 attached", out.Err)
	}
	if _, err := os.Stat(f.agentOut); !os.IsNotExist(err) {
		t.Error("agent must not run when the backend never became ready")
	}
}

func TestBackendCrashStopsAgent(t *testing.T) {
	f := newFixture(t, "exec sleep 30\n")
	root := testutil.SetupFakeEnv(t, map[string]string{
		"python": "echo \"FLASK SERVER READY\"\nsleep 1\nexit 3\n",
	})

	out := runSession(t, context.Background(), f.options(root), newProvisioner(t, "", "python3", ""))

	if out.Cause != launcher.CauseBackendCrashed || out.ExitCode != 1 {
		t.Errorf("outcome = %+v, want backend crash, exit 1", out)
	}
}

func TestInterruptStopsBothChildren(t *testing.T) {
	f := newFixture(t, "exec sleep 30\n")
	stopped := filepath.Join(f.dir, "backend.stopped")
	root := testutil.SetupFakeEnv(t, map[string]string{
		"python": "trap 'echo term > \"" + stopped + "\"; exit 0' TERM\necho \"FLASK SERVER READY\"\nwhile true; do sleep 1; done\n",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts := f.options(root)
	opts.OnTransition = func(tr launcher.Transition) {
		if tr.To == launcher.StateRunning {
			time.AfterFunc(200*time.Millisecond, cancel)
		}
	}

	out := runSession(t, ctx, opts, newProvisioner(t, "", "python3", ""))

	if out.Cause != launcher.CauseInterrupted || out.ExitCode != errors.ExitInterrupted {
		t.Errorf("outcome = %+v, want interrupted, exit 130", out)
	}
	if _, err := os.Stat(stopped); err != nil {
		t.Errorf("backend did not receive SIGTERM: %v", err)
	}
}

func TestExternalBackendRunsAgentAlone(t *testing.T) {
	f := newFixture(t, "exit 0\n")
	root := testutil.SetupFakeEnv(t, map[string]string{
		"python": "echo \"python should not run\" >&2\nexit 1\n",
	})

	opts := f.options(root)
	opts.BackendExternal = true
	out := runSession(t, context.Background(), opts, newProvisioner(t, "", "python3", ""))

	if out.Cause != launcher.CauseClean {
		t.Fatalf("outcome = %+v, want clean", out)
	}
	if got := f.agentLine(t); !strings.HasPrefix(got, "port=5974 ready=1 ") {
		t.Errorf("agent saw %q, want ready=1 passed through", got)
	}
}

// TestPythonBackendMarkerReachesPipe runs a real interpreter as the backend.
// Its stdout is a pipe, so the marker must not sit in Python's block buffer.
func TestPythonBackendMarkerReachesPipe(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not found in PATH, skipping test")
	}
	f := newFixture(t, "exit 0\n")
	testutil.WriteFile(t, filepath.Join(f.binDir, "reposerver.py"),
		"import time\nprint(\"FLASK SERVER READY\")\ntime.sleep(30)\n")

	var base []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "PYTHONUNBUFFERED=") {
			base = append(base, kv)
		}
	}
	opts := f.options("")
	opts.ProvisioningRequired = false
	opts.Python = python
	opts.BaseEnv = base
	opts.ReadyTimeout = 5 * time.Second

	out := runSession(t, context.Background(), opts, nil)

	if out.Cause != launcher.CauseClean || out.ExitCode != 0 {
		t.Fatalf("outcome = %+v, want clean exit", out)
	}
	if got := f.agentLine(t); !strings.HasPrefix(got, "port=5974 ready=1 ") {
		t.Errorf("agent saw %q", got)
	}
}

func TestBackendDescendantStoppedAfterBackendExits(t *testing.T) {
	f := newFixture(t, "exit 0\n")
	ready := filepath.Join(f.dir, "reloader.ready")
	stopped := filepath.Join(f.dir, "reloader.stopped")
	root := testutil.SetupFakeEnv(t, map[string]string{
		"python": `(
  trap 'echo term > "` + stopped + `"; exit 0' TERM
  touch "` + ready + `"
  sleep 30 &
  wait
) &
while [ ! -f "` + ready + `" ]; do sleep 0.1; done
echo "starting"
exit 137
`,
	})

	out := runSession(t, context.Background(), f.options(root), newProvisioner(t, "", "python3", ""))

	if out.Cause != launcher.CauseBackendNeverReady {
		t.Fatalf("outcome = %+v, want backend never ready", out)
	}
	if _, err := os.Stat(stopped); err != nil {
		t.Errorf("backend descendant survived teardown: %v", err)
	}
}
