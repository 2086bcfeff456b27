//go:build unix

package workerproc

import (
	"os/exec"
	"syscall"
)

// configure puts the child in its own process group and makes cancellation
// interrupt the whole group.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGINT)
	}
}
