//go:build windows

package tsp

import (
	"os"
	"syscall"
)

func buildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

// gracefulStop has no portable equivalent of SIGTERM on Windows; Kill is the
// best available signal.
func gracefulStop(proc *os.Process) error {
	return proc.Kill()
}
