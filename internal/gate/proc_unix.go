//go:build !windows

package gate

import (
	"os/exec"
	"syscall"
)

// setProcessGroup runs the command in its own process group so a timeout
// kills every child, not only the shell.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
