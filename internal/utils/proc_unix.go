//go:build unix

package utils

import (
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// processWaitDelay bounds how long Wait blocks on pipes held open by
// orphaned children after the group was killed
const processWaitDelay = 5 * time.Second

// IsolateProcessGroup runs cmd in its own process group and makes context
// cancellation kill the whole group, so helpers forked by the command die
// with it.
func IsolateProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = processWaitDelay
}
