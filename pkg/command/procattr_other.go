//go:build !unix

package command

import "os/exec"

// isolateProcessGroup relies on exec.CommandContext's default Kill on
// platforms without process groups.
func isolateProcessGroup(cmd *exec.Cmd) {}
