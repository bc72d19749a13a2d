//go:build !unix

package utils

import (
	"os/exec"
	"time"
)

// IsolateProcessGroup only bounds Wait where process groups are unavailable
func IsolateProcessGroup(cmd *exec.Cmd) {
	cmd.WaitDelay = 5 * time.Second
}
