//go:build unix

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcessGroup puts the child in a new process group led by itself.
// Terminal-generated signals then reach only the foreground group.
func configureProcessGroup(cmd *exec.Cmd, newGroup bool) {
	if !newGroup {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalTerminate sends SIGTERM to the process, or to its whole group.
func signalTerminate(p *os.Process, group bool) error {
	if group {
		return terminateGroup(p.Pid)
	}
	return p.Signal(unix.SIGTERM)
}

// signalKill sends SIGKILL to the process, or to its whole group.
func signalKill(p *os.Process, group bool) error {
	if group {
		return killGroup(p.Pid)
	}
	return p.Kill()
}

func terminateGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGTERM)
}

func killGroup(pgid int) error {
	return unix.Kill(-pgid, unix.SIGKILL)
}

// groupAlive reports whether any process is left in the group.
func groupAlive(pgid int) bool {
	err := unix.Kill(-pgid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
