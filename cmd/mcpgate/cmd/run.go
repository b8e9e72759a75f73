package cmd

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mcpgate/mcpgate/internal/adapter/protocol"
	"github.com/mcpgate/mcpgate/internal/adapter/protocol/v20241105"
	"github.com/mcpgate/mcpgate/internal/adapter/protocol/v20251125"
	"github.com/mcpgate/mcpgate/internal/audit"
	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/crypto"
	"github.com/mcpgate/mcpgate/internal/ctxkey"
	"github.com/mcpgate/mcpgate/internal/metrics"
	"github.com/mcpgate/mcpgate/internal/middleware"
	"github.com/mcpgate/mcpgate/internal/policy"
	"github.com/mcpgate/mcpgate/internal/policyfile"
	"github.com/mcpgate/mcpgate/internal/sandbox"
	"github.com/mcpgate/mcpgate/internal/session"
	"github.com/mcpgate/mcpgate/internal/supervisor"
)

// defaultProtocolVersion is the adapter used when MCP_VERSION is unset.
const defaultProtocolVersion = "2025-11-25"

// sessionTTL bounds how long an idle session's state is retained.
const sessionTTL = 1 * time.Hour

var runCmd = &cobra.Command{
	Use:   "run [upstream-command] [-- upstream-args...]",
	Short: "Run the interceptor, wrapping the given upstream MCP server",
	RunE:  runRootOrRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runRootOrRun backs both the root command and its "run" alias, so
// operators can invoke mcpgate directly without naming a subcommand.
func runRootOrRun(cmd *cobra.Command, args []string) error {
	upstreamCmd, upstreamArgs, err := resolveUpstream(cmd, args)
	if err != nil {
		exitCode = 1
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		exitCode = 1
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Upstream.Command = upstreamCmd
	cfg.Upstream.Args = upstreamArgs
	if policyFlag != "" {
		cfg.PoliciesYAMLPath = policyFlag
	}

	if err := config.FinishAndValidate(cfg); err != nil {
		exitCode = 1
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg)
	code := runProxy(cfg, logger)
	exitCode = code
	if code != 0 {
		return fmt.Errorf("mcpgate exited with status %d", code)
	}
	return nil
}

// resolveUpstream determines the upstream command and its arguments from
// --upstream-cmd plus "-- args...", or from a bare positional command.
func resolveUpstream(cmd *cobra.Command, args []string) (string, []string, error) {
	if upstreamCmdFlag != "" {
		return upstreamCmdFlag, args, nil
	}
	if len(args) == 0 {
		return "", nil, errors.New("no upstream command given: pass it positionally, after \"--\", or via --upstream-cmd")
	}
	return args[0], args[1:], nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// runProxy wires every component together and runs the middleware loop
// to completion, returning the process exit code.
func runProxy(cfg *config.Config, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(ctxkey.WithLogger(context.Background(), logger), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop() // restore default signal handling: a second interrupt kills us immediately.
	}()

	result, err := policyfile.Load(cfg.PoliciesYAMLPath)
	if err != nil {
		logger.Error("failed to load policy file", "path", cfg.PoliciesYAMLPath, "error", err)
		return 1
	}
	result.Definition.ProtectLethalTrifecta = result.Definition.ProtectLethalTrifecta || cfg.ForceLethalTrifecta

	evaluator := policy.NewEvaluator(result.Definition)

	sessions := session.NewStore(sessionTTL)
	defer sessions.Stop()

	auditSecret := make([]byte, crypto.SecretKeyLength)
	if _, err := rand.Read(auditSecret); err != nil {
		logger.Error("failed to generate audit signing secret", "error", err)
		return 2
	}
	auditLog, err := audit.NewLogger(audit.Config{
		Dir:           cfg.Audit.Dir,
		RetentionDays: cfg.Audit.RetentionDays,
		MaxFileSizeMB: cfg.Audit.MaxFileSizeMB,
		CacheSize:     cfg.Audit.CacheSize,
	}, auditSecret)
	if err != nil {
		logger.Error("failed to open audit log", "dir", cfg.Audit.Dir, "error", err)
		return 2
	}
	defer auditLog.Close()

	signer, err := crypto.NewEphemeralSessionSigner()
	if err != nil {
		logger.Error("failed to generate session signing secret", "error", err)
		return 2
	}

	defaultVersion := cfg.MCPVersion
	if defaultVersion == "" {
		defaultVersion = defaultProtocolVersion
	}
	adapters := map[string]protocol.Adapter{
		"2025-11-25": v20251125.New(),
		"2024-11-05": v20241105.New(),
	}

	engine := middleware.NewEngine(adapters, defaultVersion, evaluator, sessions, auditLog, signer, logger)
	if len(result.ToolClasses) > 0 {
		engine.Classifier = toolClassMap(result.ToolClasses)
	}
	if cfg.RequiresAudience() {
		engine.Audience = crypto.NewAudienceVerifier([]byte(cfg.JWTSecret), cfg.ExpectedAudience)
	}

	var reg *prometheus.Registry
	if metricsAddrFlag != "" {
		reg = prometheus.NewRegistry()
		engine.Metrics = metrics.New(reg)
		go serveMetrics(metricsAddrFlag, reg, logger)
	}

	if traceFlag {
		shutdownTracing, err := setupTracing()
		if err != nil {
			logger.Error("failed to set up tracing", "error", err)
			return 2
		}
		defer shutdownTracing(context.Background())
		engine.Tracer = otel.Tracer(tracerScope)
	}

	var sandboxApplier supervisor.SandboxApplier
	if result.Sandbox != nil {
		sandboxApplier = sandbox.New(*result.Sandbox)
	}

	sup, err := supervisor.Spawn(ctx, cfg.Upstream.Command, cfg.Upstream.Args, sandboxApplier, logger)
	if err != nil {
		logger.Error("failed to spawn upstream process", "command", cfg.Upstream.Command, "error", err)
		return 2
	}

	go sup.WatchDownstream(ctx, os.Stdin)

	runErr := engine.Run(ctx, sup, func(b []byte) error {
		_, writeErr := os.Stdout.Write(b)
		return writeErr
	})
	_ = sup.Stop()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("middleware loop exited with an error", "error", runErr)
		return 2
	}

	if code := sup.ExitCode(); code > 0 {
		return code
	}
	logger.Info("mcpgate stopped")
	return 0
}

// toolClassMap adapts the tool->classes map loaded from the policy file
// to middleware.ToolClassifier.
type toolClassMap map[string][]string

func (m toolClassMap) ClassesFor(tool string) []string { return m[tool] }

// tracerScope matches the scope name the middleware engine registers its
// default Tracer under.
const tracerScope = "github.com/mcpgate/mcpgate/internal/middleware"

// setupTracing installs a TracerProvider and a MeterProvider that export
// every span and metric reading to stdout, and registers both as global,
// so middleware.NewEngine's otel.Tracer/otel.Meter calls pick them up. It
// returns a combined Shutdown func.
func setupTracing() (func(context.Context) error, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("create stdout metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if mErr := mp.Shutdown(ctx); mErr != nil && err == nil {
			err = mErr
		}
		return err
	}, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", "error", err)
	}
}
