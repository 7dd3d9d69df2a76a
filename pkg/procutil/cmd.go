package procutil

import (
	"errors"
	"os/exec"
	"syscall"
)

// CmdExitCode returns the exit status of a finished command given the error
// from Wait or Run, or -1 when no status is available.
func CmdExitCode(cmd *exec.Cmd, err error) int {
	if err == nil {
		if cmd.ProcessState == nil {
			return -1
		}
		ws := cmd.ProcessState.Sys().(syscall.WaitStatus)
		return ws.ExitStatus()
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		ws := exitError.Sys().(syscall.WaitStatus)
		return ws.ExitStatus()
	}

	// the binary could not be started at all
	return -1
}
