//go:build windows

package pip

import "os/exec"

// setProcessGroup is a no-op on Windows; cancellation kills the direct child
// and waitDelay bounds the wait on pipes held by its descendants.
func setProcessGroup(cmd *exec.Cmd) {}
