//go:build unix

package shell

import (
	"os/exec"
	"syscall"
)

// setProcessGroup запускает команду в собственной группе и при отмене убивает группу целиком
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
