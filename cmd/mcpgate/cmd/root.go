// Package cmd provides the CLI commands for mcpgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/internal/config"
)

var (
	upstreamCmdFlag string
	policyFlag      string
	metricsAddrFlag string
	traceFlag       bool
)

// exitCode carries the process exit status out of whichever RunE ran,
// since cobra itself only distinguishes "error" from "no error". Set by
// runProxy's callers; read by Execute.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "mcpgate [upstream-command] [-- upstream-args...]",
	Short: "mcpgate is a security interceptor for MCP servers",
	Long: `mcpgate wraps an MCP server subprocess with policy evaluation, taint
tracking, audit logging, and optional OS-level sandboxing, without
requiring changes to the upstream server.

The upstream command is given either positionally or via --upstream-cmd,
with its own arguments after a "--" separator:

  mcpgate -- /usr/bin/my-mcp-server --verbose
  mcpgate --upstream-cmd /usr/bin/my-mcp-server -- --verbose

Configuration is environment-first (MCPGATE_* variables, e.g.
MCPGATE_LOG_LEVEL or MCPGATE_POLICIES_YAML_PATH). --policy points at an
optional YAML policy file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRootOrRun,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&upstreamCmdFlag, "upstream-cmd", "", "path to the upstream MCP server binary")
	rootCmd.PersistentFlags().StringVar(&policyFlag, "policy", "", "path to a policy YAML file (overrides POLICIES_YAML_PATH)")
	rootCmd.PersistentFlags().StringVar(&metricsAddrFlag, "metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false, "emit one OpenTelemetry span per pipeline stage to stdout")
}

// Execute runs the root command and returns the process exit code:
// 0 clean shutdown, 1 configuration error, 2 irrecoverable runtime
// failure, or the upstream process's own exit code on normal termination.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func initConfig() {
	config.InitViper()
}

func init() {
	cobra.OnInitialize(initConfig)
}
