//go:build !windows

package tsp

import (
	"os"
	"syscall"
)

func buildSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// gracefulStop sends SIGTERM, letting the subprocess shut itself down.
func gracefulStop(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
