//go:build !unix

package executor

import "os/exec"

// killProcessGroup keeps exec's default cancel (Process.Kill) on platforms
// without POSIX process groups.
func killProcessGroup(cmd *exec.Cmd) {}
