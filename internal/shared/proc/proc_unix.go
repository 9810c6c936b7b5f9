//go:build !windows

package proc

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

const pollInterval = 20 * time.Millisecond

// Configure starts cmd in its own process group so Terminate also reaches
// every process it spawns.
func Configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Terminate sends SIGTERM to the process group of cmd, waits up to grace for
// the group to exit, then sends SIGKILL. The group leader must be reaped by a
// concurrent cmd.Wait for an early exit to be noticed.
func Terminate(cmd *exec.Cmd, grace time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if pid <= 0 {
		return
	}
	pgid, err := syscall.Getpgid(pid)
	if err != nil || pgid <= 0 || pgid != pid {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if syscall.Kill(-pgid, 0) != nil {
			return
		}
		time.Sleep(pollInterval)
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}

// CloseOnExec keeps f from leaking into processes started later, such as the
// browser launched by a worker.
func CloseOnExec(f *os.File) {
	if f == nil {
		return
	}
	syscall.CloseOnExec(int(f.Fd()))
}
