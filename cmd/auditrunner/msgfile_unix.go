//go:build !windows

package main

import (
	"fmt"
	"os"
	"syscall"
)

// messageFile opens the inherited message descriptor and keeps it from
// leaking into the browser the worker launches.
func messageFile(fd int) (*os.File, error) {
	var st syscall.Stat_t
	if err := syscall.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("message descriptor %d: %w", fd, err)
	}
	syscall.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), "message"), nil
}
