//go:build !linux && !darwin && !windows

package supervisor

import "os/exec"

// installParentDeathSignal has no implementation on this platform; the
// supervisor's own Stop() path remains the cleanup mechanism, same as a
// graceful shutdown on any platform.
func installParentDeathSignal(cmd *exec.Cmd) {}

func watchParentDeath(childPID int) (stop func()) {
	return func() {}
}

// RunDeathSignalMonitorIfRequested always returns false: this platform has
// no re-exec-based death-signal monitor to intercept.
func RunDeathSignalMonitorIfRequested() (handled bool) {
	return false
}
