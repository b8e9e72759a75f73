package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpgate/mcpgate/internal/sandbox"
	"github.com/mcpgate/mcpgate/internal/supervisor"
)

var sandboxCheckCmd = &cobra.Command{
	Use:   "sandbox-check",
	Short: "Diagnose whether this platform's sandbox backend actually confines a child process",
	Long: `sandbox-check spawns a short-lived child under a deny-by-default sandbox
policy and attempts to have it write outside its allowed paths. It reports
whether the write was blocked, so operators can verify their sandbox
backend before trusting it in production.`,
	RunE: runSandboxCheck,
}

func init() {
	rootCmd.AddCommand(sandboxCheckCmd)
}

func runSandboxCheck(cmd *cobra.Command, args []string) error {
	fmt.Printf("platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	dir, err := os.MkdirTemp("", "mcpgate-sandbox-check")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	allowed := filepath.Join(dir, "allowed")
	forbidden := filepath.Join(dir, "forbidden")
	if err := os.MkdirAll(allowed, 0o700); err != nil {
		return err
	}
	if err := os.MkdirAll(forbidden, 0o700); err != nil {
		return err
	}

	policy := sandbox.Policy{WritePaths: []string{allowed}}
	backend := sandbox.New(policy)

	target := filepath.Join(forbidden, "breach.txt")
	shellCmd, shellArgs := writeAttemptCommand(target)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup, err := supervisor.Spawn(ctx, shellCmd, shellArgs, backend, nil)
	if err != nil {
		return fmt.Errorf("spawn sandboxed child: %w", err)
	}
	_ = sup.Stop()

	if _, statErr := os.Stat(target); statErr == nil {
		fmt.Println("FAILURE: the sandboxed child wrote outside its allowed paths")
		exitCode = 2
		return nil
	}
	fmt.Println("SUCCESS: the sandboxed child could not write outside its allowed paths")
	return nil
}

// writeAttemptCommand returns a shell invocation that tries to write to
// target, using whatever shell is conventional for the current platform.
func writeAttemptCommand(target string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", "echo breach > " + target}
	}
	return "/bin/sh", []string{"-c", "echo breach > " + target}
}
