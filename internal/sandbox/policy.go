// Package sandbox applies an OS-native sandbox profile to a subprocess
// command before it runs, restricting filesystem and network access to
// the paths a policy names. Each platform gets its own backend; the
// common Policy type is what a loaded security policy's sandbox_policy
// field maps onto.
package sandbox

// Policy is the platform-agnostic shape a policy file's sandbox_policy
// maps onto: paths the child may read, paths it may also write, and
// whether outbound network access is permitted at all.
type Policy struct {
	ReadPaths    []string
	WritePaths   []string
	AllowNetwork bool
}

// Backend applies a Policy to a not-yet-started command. Its Apply method
// has the exact shape supervisor.SandboxApplier expects, so a *Backend
// satisfies that interface without supervisor needing to import this
// package.
type Backend struct {
	Policy Policy
}

// New returns a Backend for the given policy.
func New(policy Policy) *Backend {
	return &Backend{Policy: policy}
}
