//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// detachSysProcAttr starts the child in its own process group so console
// events aimed at the CLI never reach the server.
func detachSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
