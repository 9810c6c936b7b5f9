//go:build windows

package proc

import (
	"os"
	"os/exec"
	"time"
)

func Configure(cmd *exec.Cmd) {}

func Terminate(cmd *exec.Cmd, _ time.Duration) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func CloseOnExec(f *os.File) {}
