// Command mcpgate wraps an MCP server subprocess with the security
// interceptor: policy evaluation, taint tracking, audit logging, and
// optional OS-level sandboxing of the child.
package main

import (
	"os"

	"github.com/mcpgate/mcpgate/cmd/mcpgate/cmd"
	"github.com/mcpgate/mcpgate/internal/sandbox"
	"github.com/mcpgate/mcpgate/internal/supervisor"
)

func main() {
	// These two checks must run before anything else: both are re-exec
	// shims that, when invoked with their marker environment variable set,
	// never return to normal main() flow on success.
	if supervisor.RunDeathSignalMonitorIfRequested() {
		return
	}
	if sandbox.RunSandboxedExecIfRequested() {
		return
	}

	os.Exit(cmd.Execute())
}
