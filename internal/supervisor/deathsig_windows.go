//go:build windows

package supervisor

import (
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"
)

// installParentDeathSignal is a no-op at this stage on Windows: a Job
// Object can only be assigned to a process that already has an open
// handle, so the real work happens in attachJobObject, called from Spawn
// right after cmd.Start() succeeds.
func installParentDeathSignal(cmd *exec.Cmd) {}

// attachJobObject creates a Job Object with the kill-on-close limit set
// and assigns pid to it, so Windows tears the child down the moment the
// supervisor's last handle to the job closes — including an ungraceful
// exit of the supervisor itself. Errors are non-fatal: the child still
// runs, just without this guarantee, matching the fail-open posture of
// the other platforms' best-effort cleanup.
func attachJobObject(pid int) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	_, err = windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	)
	if err != nil {
		_ = windows.CloseHandle(job)
		return
	}

	proc, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		_ = windows.CloseHandle(job)
		return
	}
	defer windows.CloseHandle(proc)

	_ = windows.AssignProcessToJobObject(job, proc)
	// The job handle is intentionally leaked for the process lifetime:
	// closing it early would trigger kill-on-close immediately.
}

// watchParentDeath attaches the child to a kill-on-close Job Object via
// attachJobObject; the returned stop func does nothing.
func watchParentDeath(childPID int) (stop func()) {
	attachJobObject(childPID)
	return func() {}
}

// RunDeathSignalMonitorIfRequested always returns false on Windows: the
// Job Object attached in watchParentDeath needs no re-exec'd monitor shim.
func RunDeathSignalMonitorIfRequested() (handled bool) {
	return false
}
