//go:build darwin

package sandbox

import (
	"fmt"
	"os/exec"
	"strings"
)

// Apply rewrites cmd to run under sandbox-exec with a generated Seatbelt
// (SBPL) profile. macOS has no supported library-level sandbox API from
// Go the way Landlock does on Linux, so the original's rusty-sandbox
// dependency is replaced with the OS-provided sandbox-exec binary, the
// same mechanism Chromium and other sandboxed macOS tools use.
func (b *Backend) Apply(cmd *exec.Cmd) error {
	profile := buildSeatbeltProfile(b.Policy)

	target := cmd.Path
	args := append([]string{target}, cmd.Args[1:]...)

	wrapped := append([]string{"-p", profile, "--"}, args...)
	cmd.Path = "/usr/bin/sandbox-exec"
	cmd.Args = append([]string{"/usr/bin/sandbox-exec"}, wrapped...)

	return nil
}

// buildSeatbeltProfile renders a minimal SBPL document: deny everything
// by default, then allow process-exec (required to run at all), plus
// read/write access scoped to the policy's paths and network only when
// explicitly allowed.
func buildSeatbeltProfile(policy Policy) string {
	var b strings.Builder
	b.WriteString("(version 1)\n(deny default)\n(allow process-exec)\n(allow process-fork)\n(allow signal (target self))\n")

	for _, p := range policy.ReadPaths {
		fmt.Fprintf(&b, "(allow file-read* (subpath %q))\n", p)
	}
	for _, p := range policy.WritePaths {
		fmt.Fprintf(&b, "(allow file-read* file-write* (subpath %q))\n", p)
	}
	if policy.AllowNetwork {
		b.WriteString("(allow network*)\n")
	}

	return b.String()
}

// RunSandboxedExecIfRequested always returns false on macOS: Apply wraps
// the child in sandbox-exec directly rather than re-exec'ing this binary,
// so there is nothing for main() to intercept here.
func RunSandboxedExecIfRequested() (handled bool) {
	return false
}
