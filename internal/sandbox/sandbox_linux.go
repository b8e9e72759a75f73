//go:build linux

package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/landlock-lsm/go-landlock/landlock"
)

// reexecEnvVar carries the JSON-encoded Policy to a re-invocation of this
// same binary. Landlock restricts the calling process (and everything it
// subsequently execs) for the rest of its lifetime, so the restriction
// must be applied in a process that is about to become the upstream
// server — never in the long-lived supervisor itself. Re-executing
// ourselves as a thin wrapper that applies Landlock then execve()s the
// real target is the Go analogue of the original's pre_exec closure,
// which Go's os/exec has no equivalent hook for.
const reexecEnvVar = "MCPGATE_SANDBOX_POLICY"

// Apply rewrites cmd to run through a self-re-exec wrapper that installs
// the Landlock ruleset before handing control to the real upstream
// command via execve.
func (b *Backend) Apply(cmd *exec.Cmd) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("sandbox: resolve self path: %w", err)
	}

	encoded, err := json.Marshal(b.Policy)
	if err != nil {
		return fmt.Errorf("sandbox: encode policy: %w", err)
	}

	target := cmd.Path
	args := append([]string{target}, cmd.Args[1:]...)

	cmd.Path = exe
	cmd.Args = append([]string{exe}, args...)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, reexecEnvVar+"="+string(encoded))

	return nil
}

// RunSandboxedExecIfRequested checks for reexecEnvVar and, if present,
// applies its encoded Policy via Landlock to the current process and
// then replaces it with the real target via execve, never returning. The
// caller's main() should invoke this before anything else.
func RunSandboxedExecIfRequested() (handled bool) {
	encoded := os.Getenv(reexecEnvVar)
	if encoded == "" {
		return false
	}

	var policy Policy
	if err := json.Unmarshal([]byte(encoded), &policy); err != nil {
		os.Exit(1)
	}

	rules := make([]landlock.Rule, 0, 2)
	if len(policy.ReadPaths) > 0 {
		rules = append(rules, landlock.RODirs(policy.ReadPaths...))
	}
	if len(policy.WritePaths) > 0 {
		rules = append(rules, landlock.RWDirs(policy.WritePaths...))
	}
	cfg := landlock.V5.BestEffort()
	restrict := cfg.RestrictPaths
	if !policy.AllowNetwork {
		// Restrict also handles TCP bind/connect; with no network rules
		// given, all of it is denied.
		restrict = cfg.Restrict
	}
	if err := restrict(rules...); err != nil {
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		os.Exit(1)
	}
	target := os.Args[1]
	targetArgs := os.Args[1:]

	env := os.Environ()
	filtered := env[:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, reexecEnvVar+"=") {
			filtered = append(filtered, kv)
		}
	}

	if err := syscall.Exec(target, targetArgs, filtered); err != nil {
		os.Exit(1)
	}
	return true
}
