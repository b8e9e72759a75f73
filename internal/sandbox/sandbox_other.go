//go:build !linux && !darwin && !windows

package sandbox

import "os/exec"

// Apply is a no-op on platforms with no sandbox backend implemented. The
// subprocess still runs, just without OS-level confinement — the
// taint/policy evaluator remains the primary security boundary regardless
// of platform.
func (b *Backend) Apply(cmd *exec.Cmd) error {
	return nil
}

// RunSandboxedExecIfRequested always returns false: this platform has no
// re-exec-based sandbox wrapper to intercept.
func RunSandboxedExecIfRequested() (handled bool) {
	return false
}
