// Package config provides configuration loading for pbx-gate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// legacyEnvAliases are environment names of earlier deployments, bound as
// fallbacks after the PBX_GATE_ names.
var legacyEnvAliases = map[string]string{
	"pbx.base_url": "UCM_API_BASE_URL",
	"pbx.user":     "UCM_API_USER",
	"pbx.password": "UCM_API_PASS",
}

// InitViper initializes Viper with the configuration file and environment variables.
// If configFile is empty, it searches for pbx-gate.yaml/.yml in standard locations.
// The search requires an explicit YAML extension to avoid matching the binary itself,
// which Viper's built-in SetConfigName would match (same base name, no extension).
func InitViper(configFile string) {
	initViper(viper.GetViper(), configFile, findConfigFile)
}

func initViper(v *viper.Viper, configFile string, find func() string) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else if found := find(); found != "" {
		v.SetConfigFile(found)
	} else {
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		v.SetConfigName("pbx-gate")
		v.SetConfigType("yaml")
	}

	// Environment variable support: PBX_GATE_SERVER_HTTP_ADDR
	v.SetEnvPrefix("PBX_GATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindNestedEnvKeys(v)
}

// findConfigFile searches standard locations for a pbx-gate config file
// with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".pbx-gate"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "pbx-gate"))
		}
	} else {
		paths = append(paths, "/etc/pbx-gate")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for pbx-gate.yaml or .yml.
// Returns the full path of the first match, or empty string if none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "pbx-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds config keys for environment variable support.
// Example: PBX_GATE_PBX_BASE_URL overrides pbx.base_url
func bindNestedEnvKeys(v *viper.Viper) {
	keys := []string{
		"server.http_addr",
		"server.log_level",
		"server.tls_cert_file",
		"server.tls_key_file",
		"server.trust_forwarded_for",
		"server.login_rate_limit.enabled",
		"server.login_rate_limit.rate",
		"server.login_rate_limit.burst",
		"server.login_rate_limit.period",
		"server.admin_rate_limit.enabled",
		"server.admin_rate_limit.rate",
		"server.admin_rate_limit.burst",
		"server.admin_rate_limit.period",

		"pbx.cdr_url",
		"pbx.recording_url",
		"pbx.version",
		"pbx.shared_secret",
		"pbx.insecure_skip_verify",
		"pbx.auth_timeout",
		"pbx.data_timeout",
		"pbx.max_payload_mb",
		"pbx.circuit_breaker.enabled",
		"pbx.circuit_breaker.max_requests",
		"pbx.circuit_breaker.interval",
		"pbx.circuit_breaker.timeout",
		"pbx.circuit_breaker.min_requests",
		"pbx.circuit_breaker.failure_ratio",

		"session.ttl",
		"cache.recording_ttl",
		"cache.max_entries",
		"reaper.interval",
		"telemetry.enabled",
		"telemetry.output",
		"dev_mode",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
	// Note: admin.api_keys is an array; use the config file for it.

	// The PBX_GATE_ name wins over the legacy alias when both are set.
	for key, alias := range legacyEnvAliases {
		_ = v.BindEnv(key, envName(key), alias)
	}
}

func envName(key string) string {
	return "PBX_GATE_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and returns the validated Config.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults,
// but does NOT apply dev defaults or validate.
// Use this when CLI flags may override DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	return loadRaw(viper.GetViper())
}

func loadRaw(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: continue with env vars only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.setDefaults(v.IsSet)
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
