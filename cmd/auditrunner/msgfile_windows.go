//go:build windows

package main

import (
	"errors"
	"os"
)

func messageFile(int) (*os.File, error) {
	return nil, errors.New("worker processes are not supported on windows; set AUDIT_IN_PROCESS=true")
}
