// Package config provides configuration types for the PBX gateway.
//
// Configuration is file-based (pbx-gate.yaml) with environment overrides.
// All state is held in memory; there is no persistence section:
//
//   - sessions live for session.ttl and are lost on restart
//   - recordings are cached for cache.recording_ttl
//   - admin API keys are configured as hashes only
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration of pbx-gate.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// PBX configures the upstream PBX HTTP API.
	PBX PBXConfig `yaml:"pbx" mapstructure:"pbx"`

	// Session configures the session store.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Cache configures the recording cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Reaper configures periodic expiry of sessions and cache entries.
	Reaper ReaperConfig `yaml:"reaper" mapstructure:"reaper"`

	// Admin configures access to /admin/api.
	// Optional: when empty, only localhost can reach the admin API.
	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`

	// Telemetry configures OpenTelemetry exporters for outbound PBX calls.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// DevMode enables development features (debug logging, localhost PBX).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string `yaml:"tls_cert_file" mapstructure:"tls_cert_file" validate:"required_with=TLSKeyFile"`
	TLSKeyFile  string `yaml:"tls_key_file" mapstructure:"tls_key_file" validate:"required_with=TLSCertFile"`

	// TrustForwardedFor takes the client IP from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that sets these headers.
	TrustForwardedFor bool `yaml:"trust_forwarded_for" mapstructure:"trust_forwarded_for"`

	// LoginRateLimit throttles login attempts per client IP.
	LoginRateLimit RateLimitConfig `yaml:"login_rate_limit" mapstructure:"login_rate_limit"`

	// AdminRateLimit throttles remote admin API requests per client IP.
	AdminRateLimit RateLimitConfig `yaml:"admin_rate_limit" mapstructure:"admin_rate_limit"`
}

// RateLimitConfig configures a GCRA limiter: Rate requests per Period with
// bursts of up to Burst.
type RateLimitConfig struct {
	// Enabled turns the limiter on or off.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Rate is the number of requests allowed per Period.
	Rate int `yaml:"rate" mapstructure:"rate" validate:"omitempty,min=1"`

	// Burst is the number of requests allowed at once. Defaults to Rate.
	Burst int `yaml:"burst" mapstructure:"burst" validate:"omitempty,min=1"`

	// Period is the window for Rate (e.g., "1m").
	Period string `yaml:"period" mapstructure:"period" validate:"omitempty,duration"`
}

// PBXConfig configures the PBX HTTP API.
type PBXConfig struct {
	// BaseURL is the control API endpoint (e.g., "https://pbx:8089/api").
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`

	// CDRURL and RecordingURL override BaseURL for CDR queries and recording
	// downloads. Empty means BaseURL.
	CDRURL       string `yaml:"cdr_url" mapstructure:"cdr_url" validate:"omitempty,url"`
	RecordingURL string `yaml:"recording_url" mapstructure:"recording_url" validate:"omitempty,url"`

	// Version is sent as "version" with challenge and login requests.
	// Defaults to "1.0".
	Version string `yaml:"version" mapstructure:"version"`

	// SharedSecret derives the token for the challenge auto-login.
	SharedSecret string `yaml:"shared_secret" mapstructure:"shared_secret"`

	// User and Password are the default API credentials, used by the
	// digest command and as the default login user.
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`

	// InsecureSkipVerify disables TLS verification for self-signed appliances.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`

	// AuthTimeout bounds challenge, login, logout and call actions.
	// Defaults to "10s".
	AuthTimeout string `yaml:"auth_timeout" mapstructure:"auth_timeout" validate:"omitempty,duration"`

	// DataTimeout bounds CDR queries and recording downloads.
	// Defaults to "30s".
	DataTimeout string `yaml:"data_timeout" mapstructure:"data_timeout" validate:"omitempty,duration"`

	// MaxPayloadMB bounds recordings read in full. Defaults to 64.
	MaxPayloadMB int `yaml:"max_payload_mb" mapstructure:"max_payload_mb" validate:"omitempty,min=1"`

	// CircuitBreaker fails PBX calls fast while the appliance keeps failing.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig configures the PBX circuit breaker.
type CircuitBreakerConfig struct {
	// Enabled turns the breaker on. Default: false.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32 `yaml:"max_requests" mapstructure:"max_requests"`
	// Interval is the closed-state window after which counts reset.
	Interval string `yaml:"interval" mapstructure:"interval" validate:"omitempty,duration"`
	// Timeout is how long the breaker stays open.
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
	// MinRequests is the sample size needed before the breaker may trip.
	MinRequests uint32 `yaml:"min_requests" mapstructure:"min_requests"`
	// FailureRatio trips the breaker once reached.
	FailureRatio float64 `yaml:"failure_ratio" mapstructure:"failure_ratio" validate:"omitempty,gt=0,lte=1"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	// TTL is the lifetime of a stored session. Defaults to "15m".
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`
}

// CacheConfig configures the recording cache.
type CacheConfig struct {
	// RecordingTTL is how long a fetched recording is served from cache.
	// Defaults to "30m".
	RecordingTTL string `yaml:"recording_ttl" mapstructure:"recording_ttl" validate:"omitempty,duration"`
	// MaxEntries bounds the cache. Defaults to 1000.
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries" validate:"omitempty,min=1"`
}

// ReaperConfig configures the periodic sweep.
type ReaperConfig struct {
	// Interval between sweeps. Defaults to "5m".
	Interval string `yaml:"interval" mapstructure:"interval" validate:"omitempty,duration"`
}

// AdminConfig configures admin API authentication.
type AdminConfig struct {
	// APIKeys are accepted as "Authorization: Bearer <key>" from remote clients.
	APIKeys []AdminKeyConfig `yaml:"api_keys" mapstructure:"api_keys" validate:"omitempty,dive"`
}

// AdminKeyConfig defines one admin API key.
type AdminKeyConfig struct {
	// Name identifies the key in logs.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// KeyHash is an Argon2id PHC string ("$argon2id$...", from `pbx-gate hash-key`)
	// or a SHA-256 hex digest prefixed with "sha256:".
	KeyHash string `yaml:"key_hash" mapstructure:"key_hash" validate:"required"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns tracing and metric export on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Output is "stdout" or "file:///absolute/path". Defaults to "stdout".
	Output string `yaml:"output" mapstructure:"output" validate:"omitempty,telemetry_output"`
}

// SetDevDefaults applies permissive defaults for development mode.
// This allows running pbx-gate against a local PBX simulator with no config.
// These defaults are applied BEFORE validation so required fields are satisfied.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	c.Server.LogLevel = "debug"

	if c.PBX.BaseURL == "" {
		c.PBX.BaseURL = "https://127.0.0.1:8089/api"
	}
	// Development appliances run with self-signed certificates.
	c.PBX.InsecureSkipVerify = true
}

// SetDefaults applies default values to the configuration.
func (c *Config) SetDefaults() {
	c.setDefaults(viper.IsSet)
}

func (c *Config) setDefaults(isSet func(key string) bool) {
	// Bind to localhost only unless told otherwise.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	// Login throttling is opt-in; the admin limiter is on by default.
	// viper.IsSet distinguishes "not set" from "explicitly false".
	setRateLimitDefaults(&c.Server.LoginRateLimit, 10, "1m")
	if !isSet("server.admin_rate_limit.enabled") {
		c.Server.AdminRateLimit.Enabled = true
	}
	setRateLimitDefaults(&c.Server.AdminRateLimit, 100, "1m")

	if c.PBX.Version == "" {
		c.PBX.Version = "1.0"
	}
	if c.PBX.AuthTimeout == "" {
		c.PBX.AuthTimeout = "10s"
	}
	if c.PBX.DataTimeout == "" {
		c.PBX.DataTimeout = "30s"
	}
	if c.PBX.MaxPayloadMB == 0 {
		c.PBX.MaxPayloadMB = 64
	}

	cb := &c.PBX.CircuitBreaker
	if cb.MaxRequests == 0 {
		cb.MaxRequests = 3
	}
	if cb.Interval == "" {
		cb.Interval = "1m"
	}
	if cb.Timeout == "" {
		cb.Timeout = "2m"
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = 10
	}
	if cb.FailureRatio == 0 {
		cb.FailureRatio = 0.6
	}

	if c.Session.TTL == "" {
		c.Session.TTL = "15m"
	}
	if c.Cache.RecordingTTL == "" {
		c.Cache.RecordingTTL = "30m"
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Reaper.Interval == "" {
		c.Reaper.Interval = "5m"
	}
	if c.Telemetry.Output == "" {
		c.Telemetry.Output = "stdout"
	}
}

func setRateLimitDefaults(rl *RateLimitConfig, rate int, period string) {
	if rl.Rate == 0 {
		rl.Rate = rate
	}
	if rl.Burst == 0 {
		rl.Burst = rl.Rate
	}
	if rl.Period == "" {
		rl.Period = period
	}
}

// Durations holds the parsed duration fields of a validated Config.
type Durations struct {
	AuthTimeout    time.Duration
	DataTimeout    time.Duration
	SessionTTL     time.Duration
	RecordingTTL   time.Duration
	ReaperInterval time.Duration
	BreakerWindow  time.Duration
	BreakerTimeout time.Duration
	LoginPeriod    time.Duration
	AdminPeriod    time.Duration
}

// Durations parses every duration field. Empty fields parse as zero.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"pbx.auth_timeout", c.PBX.AuthTimeout, &d.AuthTimeout},
		{"pbx.data_timeout", c.PBX.DataTimeout, &d.DataTimeout},
		{"session.ttl", c.Session.TTL, &d.SessionTTL},
		{"cache.recording_ttl", c.Cache.RecordingTTL, &d.RecordingTTL},
		{"reaper.interval", c.Reaper.Interval, &d.ReaperInterval},
		{"pbx.circuit_breaker.interval", c.PBX.CircuitBreaker.Interval, &d.BreakerWindow},
		{"pbx.circuit_breaker.timeout", c.PBX.CircuitBreaker.Timeout, &d.BreakerTimeout},
		{"server.login_rate_limit.period", c.Server.LoginRateLimit.Period, &d.LoginPeriod},
		{"server.admin_rate_limit.period", c.Server.AdminRateLimit.Period, &d.AdminPeriod},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		v, err := time.ParseDuration(f.value)
		if err != nil {
			return Durations{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return d, nil
}

const redacted = "[redacted]"

// Redacted returns a copy of c with secrets replaced.
func (c *Config) Redacted() Config {
	out := *c
	if out.PBX.Password != "" {
		out.PBX.Password = redacted
	}
	if out.PBX.SharedSecret != "" {
		out.PBX.SharedSecret = redacted
	}
	if len(c.Admin.APIKeys) > 0 {
		out.Admin.APIKeys = make([]AdminKeyConfig, len(c.Admin.APIKeys))
		for i, k := range c.Admin.APIKeys {
			out.Admin.APIKeys[i] = AdminKeyConfig{Name: k.Name, KeyHash: redacted}
		}
	}
	return out
}

// RedactedYAML renders the redacted configuration as YAML.
func (c *Config) RedactedYAML() ([]byte, error) {
	r := c.Redacted()
	data, err := yaml.Marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return data, nil
}
