// Package config provides configuration types for mcpgate.
//
// Configuration is environment-first (per spec.md §6's recognized
// environment variables) with an optional policy YAML file referenced by
// path rather than inlined — policy content itself is parsed by
// internal/policyfile, not here. This mirrors the teacher's split between
// "how do I start" (config) and "what are the rules" (a separate loader),
// just with the policy rules living in their own file instead of nested
// under the same config struct.
package config

import (
	"os"
)

// Config is the top-level configuration for mcpgate, populated from
// environment variables (see loader.go) and CLI flags supplied by the
// caller (cmd/mcpgate).
type Config struct {
	// PoliciesYAMLPath is the path to the policy definition file.
	// Optional: when empty, the interceptor runs with an empty (default-deny
	// on DENY-listed tools only, allow otherwise) policy definition.
	PoliciesYAMLPath string `mapstructure:"policies_yaml_path"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn" (or "warning"), "error".
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogFormat selects the slog handler. Valid values: "json", "text".
	LogFormat string `mapstructure:"log_format" validate:"omitempty,oneof=json text"`

	// Owner identifies the operator of this gate instance. It is loaded
	// from the environment but not read by any component; audit entries
	// do not carry it.
	Owner string `mapstructure:"owner"`

	// ExpectedAudience is the set of acceptable `aud` claim values for the
	// optional JWT audience binding (spec.md §4.7). Empty disables audience
	// verification entirely.
	ExpectedAudience []string `mapstructure:"expected_audience"`

	// SecurityLevel names the sandbox posture ("audit_only" or
	// "full_isolation"). It is defaulted and validated but not read when
	// the upstream is spawned: the sandbox is applied, enforcing, whenever
	// the policy file has a sandbox section, whatever this value is.
	SecurityLevel string `mapstructure:"security_level" validate:"omitempty,oneof=audit_only full_isolation"`

	// MCPVersion pins the protocol version the negotiator offers during
	// handshake when the client's requested version is unrecognized.
	// When empty, cmd/mcpgate uses its defaultProtocolVersion ("2025-11-25").
	MCPVersion string `mapstructure:"mcp_version"`

	// JWTSecret is the HS256 signing secret for the optional audience
	// token. Required if ExpectedAudience is non-empty.
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=16"`

	// ForceLethalTrifecta turns on the lethal-trifecta guard (spec.md's
	// private-data + untrusted-content + external-communication triad)
	// even when the policy file leaves protect_lethal_trifecta unset.
	// Defaults to false: the policy file alone decides.
	ForceLethalTrifecta bool `mapstructure:"force_lethal_trifecta"`

	// Upstream configures the wrapped MCP server subprocess. In normal
	// operation this is populated from CLI flags (--upstream-cmd / --
	// args), not environment variables, but it lives here so the whole
	// startup configuration travels as one value.
	Upstream UpstreamConfig `mapstructure:"upstream"`

	// Audit configures the signed, line-oriented audit log's on-disk layout.
	Audit AuditFileConfig `mapstructure:"audit"`
}

// UpstreamConfig configures the subprocess mcpgate supervises.
type UpstreamConfig struct {
	// Command is the path to the MCP server executable to spawn.
	Command string `mapstructure:"command" validate:"required"`

	// Args are the arguments passed to Command.
	Args []string `mapstructure:"args"`
}

// AuditFileConfig configures the file-based audit persistence. Not part of
// spec.md §6's recognized environment variables; an ambient addition so
// the audit logger has somewhere to write by default.
type AuditFileConfig struct {
	// Dir is the directory audit files are written to.
	Dir string `mapstructure:"dir"`
	// RetentionDays is the number of days to keep rotated audit files.
	RetentionDays int `mapstructure:"retention_days" validate:"omitempty,min=1"`
	// MaxFileSizeMB is the per-file size before rotation.
	MaxFileSizeMB int `mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
	// CacheSize is the number of recent entries kept in the in-memory ring
	// buffer for fast inspection (e.g. by a future admin surface).
	CacheSize int `mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// SetDefaults applies sensible default values to fields left unset by the
// environment. Must be called before Validate.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.SecurityLevel == "" {
		c.SecurityLevel = "full_isolation"
	}

	if c.Audit.Dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			c.Audit.Dir = cwd + "/audit-logs"
		} else {
			c.Audit.Dir = "audit-logs"
		}
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}
	if c.Audit.CacheSize == 0 {
		c.Audit.CacheSize = 1000
	}
}

// RequiresAudience reports whether JWT audience binding is configured.
func (c *Config) RequiresAudience() bool {
	return len(c.ExpectedAudience) > 0
}
