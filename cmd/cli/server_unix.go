//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// detachSysProcAttr puts the child in its own process group so terminal
// signals aimed at the CLI never reach the server.
func detachSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0, // new group led by the child itself
	}
}
