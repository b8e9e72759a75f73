//go:build darwin

package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// monitorEnvVar carries "parentPID:childPID" to a re-executed copy of this
// binary that does nothing but watch the parent via kqueue and kill the
// child when it exits. macOS has no prctl(PR_SET_PDEATHSIG) equivalent —
// a goroutine in the supervisor's own process cannot help here, since a
// SIGKILL to the supervisor takes every goroutine with it. A separate
// process is the only way to observe the supervisor's death from outside
// it.
const monitorEnvVar = "MCPGATE_PDEATHSIG_MONITOR"

// installParentDeathSignal is a no-op on Darwin; watchParentDeath carries
// the whole mechanism via the re-exec'd shim instead.
func installParentDeathSignal(cmd *exec.Cmd) {}

// watchParentDeath re-execs the current binary as a detached monitor shim
// watching parentPID, killing childPID as soon as the parent disappears.
// The returned stop func kills the shim once normal Stop() cleanup runs,
// since it is then redundant.
func watchParentDeath(childPID int) (stop func()) {
	exe, err := os.Executable()
	if err != nil {
		return func() {}
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d:%d", monitorEnvVar, os.Getpid(), childPID))
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return func() {}
	}

	return func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// RunDeathSignalMonitorIfRequested checks for monitorEnvVar and, if
// present, blocks forever watching the named parent pid via kqueue,
// killing the named child the moment the parent exits, then exits the
// process itself. The caller's main() should invoke this before anything
// else and return immediately if it reports handled=true.
func RunDeathSignalMonitorIfRequested() (handled bool) {
	spec := os.Getenv(monitorEnvVar)
	if spec == "" {
		return false
	}

	var parentPID, childPID int
	if _, err := fmt.Sscanf(spec, "%d:%d", &parentPID, &childPID); err != nil {
		os.Exit(1)
	}

	kq, err := unix.Kqueue()
	if err != nil {
		os.Exit(1)
	}
	defer unix.Close(kq)

	changes := []unix.Kevent_t{{
		Ident:  uint64(parentPID),
		Filter: unix.EVFILT_PROC,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
		Fflags: unix.NOTE_EXIT,
	}}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		os.Exit(1)
	}

	events := make([]unix.Kevent_t, 1)
	for {
		n, err := unix.Kevent(kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			os.Exit(1)
		}
		if n > 0 {
			break
		}
	}

	if proc, err := os.FindProcess(childPID); err == nil {
		_ = proc.Signal(syscall.SIGKILL)
	}
	os.Exit(0)
	return true
}
