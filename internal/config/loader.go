// Package config provides configuration loading for mcpgate.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper wires environment-variable binding, prefixed `MCPGATE_` per
// spec.md §6. There is no config file search here: every recognized
// setting is either an environment variable or a CLI flag layered on top
// by the caller — the only file mcpgate reads is the policy YAML named by
// POLICIES_YAML_PATH, parsed separately by internal/policyfile.
func InitViper() {
	viper.SetEnvPrefix("MCPGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindEnvKeys()
}

// bindEnvKeys binds every recognized environment variable from spec.md §6
// to its mapstructure key, so viper.Unmarshal populates Config even though
// no config file backs these values.
func bindEnvKeys() {
	_ = viper.BindEnv("policies_yaml_path", "MCPGATE_POLICIES_YAML_PATH")
	_ = viper.BindEnv("log_level", "MCPGATE_LOG_LEVEL")
	_ = viper.BindEnv("log_format", "MCPGATE_LOG_FORMAT")
	_ = viper.BindEnv("owner", "MCPGATE_OWNER")
	_ = viper.BindEnv("expected_audience", "MCPGATE_EXPECTED_AUDIENCE")
	_ = viper.BindEnv("security_level", "MCPGATE_SECURITY_LEVEL")
	_ = viper.BindEnv("mcp_version", "MCPGATE_MCP_VERSION")
	_ = viper.BindEnv("jwt_secret", "MCPGATE_JWT_SECRET")
	_ = viper.BindEnv("force_lethal_trifecta", "MCPGATE_FORCE_LETHAL_TRIFECTA")
	_ = viper.BindEnv("audit.dir", "MCPGATE_AUDIT_DIR")
}

// Load reads environment variables into a Config, splits the
// comma-separated EXPECTED_AUDIENCE value, and applies defaults. It does
// not validate. Upstream command/args are not read from the environment;
// the caller (cmd/mcpgate) sets cfg.Upstream from CLI flags before calling
// FinishAndValidate.
func Load() (*Config, error) {
	var cfg Config

	cfg.PoliciesYAMLPath = viper.GetString("policies_yaml_path")
	cfg.LogLevel = viper.GetString("log_level")
	cfg.LogFormat = viper.GetString("log_format")
	cfg.Owner = viper.GetString("owner")
	cfg.SecurityLevel = viper.GetString("security_level")
	cfg.MCPVersion = viper.GetString("mcp_version")
	cfg.JWTSecret = viper.GetString("jwt_secret")
	cfg.ForceLethalTrifecta = viper.GetBool("force_lethal_trifecta")
	cfg.Audit.Dir = viper.GetString("audit.dir")

	if raw := viper.GetString("expected_audience"); raw != "" {
		for _, aud := range strings.Split(raw, ",") {
			aud = strings.TrimSpace(aud)
			if aud != "" {
				cfg.ExpectedAudience = append(cfg.ExpectedAudience, aud)
			}
		}
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// FinishAndValidate is called once CLI-supplied fields (Upstream, and any
// flag overrides of env-sourced fields) have been set on cfg.
func FinishAndValidate(cfg *Config) error {
	if cfg.RequiresAudience() && cfg.JWTSecret == "" {
		return fmt.Errorf("config: expected_audience is set but jwt_secret is empty")
	}
	return cfg.Validate()
}
