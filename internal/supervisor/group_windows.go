//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
)

// configureProcessGroup starts the child in a new process group so console
// Ctrl+C events aimed at the launcher do not reach it.
func configureProcessGroup(cmd *exec.Cmd, newGroup bool) {
	if !newGroup {
		return
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// signalTerminate has no polite equivalent on Windows; the process is killed.
func signalTerminate(p *os.Process, _ bool) error {
	return p.Kill()
}

func signalKill(p *os.Process, _ bool) error {
	return p.Kill()
}

// Process groups are not signalled on Windows; only the leader is killed.
func terminateGroup(int) error { return nil }

func killGroup(int) error { return nil }

func groupAlive(int) bool { return false }
