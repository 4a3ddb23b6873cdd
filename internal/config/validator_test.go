package config

import (
	"strings"
	"testing"
)

func minimalValidConfig() *Config {
	cfg := &Config{
		PBX: PBXConfig{BaseURL: "https://pbx.example:8089/api"},
	}
	cfg.setDefaults(func(string) bool { return false })
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	if err := minimalValidConfig().Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestValidate_ZeroConfig(t *testing.T) {
	t.Parallel()

	var cfg Config
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for zero config")
	}
	if !strings.Contains(err.Error(), "BaseURL is required") {
		t.Errorf("error %q should mention BaseURL", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid base url",
			mutate:  func(c *Config) { c.PBX.BaseURL = "not a url" },
			wantErr: "BaseURL must be a valid URL",
		},
		{
			name:    "invalid cdr url",
			mutate:  func(c *Config) { c.PBX.CDRURL = "::" },
			wantErr: "CDRURL must be a valid URL",
		},
		{
			name:    "invalid http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "no-port" },
			wantErr: "HTTPAddr must be a valid host:port",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantErr: "LogLevel must be one of",
		},
		{
			name:    "unparsable duration",
			mutate:  func(c *Config) { c.Session.TTL = "forever" },
			wantErr: "TTL must be a positive duration",
		},
		{
			name:    "negative duration",
			mutate:  func(c *Config) { c.Reaper.Interval = "-5m" },
			wantErr: "Interval must be a positive duration",
		},
		{
			name:    "relative telemetry file",
			mutate:  func(c *Config) { c.Telemetry.Output = "file://relative/out.log" },
			wantErr: "must be 'stdout' or 'file://<absolute-path>'",
		},
		{
			name:    "unknown telemetry output",
			mutate:  func(c *Config) { c.Telemetry.Output = "otlp" },
			wantErr: "must be 'stdout' or 'file://<absolute-path>'",
		},
		{
			name:    "failure ratio above one",
			mutate:  func(c *Config) { c.PBX.CircuitBreaker.FailureRatio = 1.5 },
			wantErr: "FailureRatio must be at most 1",
		},
		{
			name:    "tls cert without key",
			mutate:  func(c *Config) { c.Server.TLSCertFile = "/etc/pbx-gate/cert.pem" },
			wantErr: "TLSKeyFile is required when TLSCertFile is set",
		},
		{
			name:    "admin key without name",
			mutate:  func(c *Config) { c.Admin.APIKeys = []AdminKeyConfig{{KeyHash: "sha256:00"}} },
			wantErr: "Name is required",
		},
		{
			name: "duplicate admin key names",
			mutate: func(c *Config) {
				c.Admin.APIKeys = []AdminKeyConfig{
					{Name: "ops", KeyHash: "sha256:00"},
					{Name: "ops", KeyHash: "sha256:11"},
				}
			},
			wantErr: "admin.api_keys[1]: duplicate name: ops",
		},
		{
			name:    "negative login rate",
			mutate:  func(c *Config) { c.Server.LoginRateLimit.Rate = -1 },
			wantErr: "Rate must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := minimalValidConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"telemetry stdout", func(c *Config) { c.Telemetry.Output = "stdout" }},
		{"telemetry absolute file", func(c *Config) { c.Telemetry.Output = "file:///var/log/pbx-gate/otel.log" }},
		{"tls pair", func(c *Config) {
			c.Server.TLSCertFile = "/etc/pbx-gate/cert.pem"
			c.Server.TLSKeyFile = "/etc/pbx-gate/key.pem"
		}},
		{"warning log level", func(c *Config) { c.Server.LogLevel = "warning" }},
		{"distinct admin keys", func(c *Config) {
			c.Admin.APIKeys = []AdminKeyConfig{
				{Name: "ops", KeyHash: "sha256:00"},
				{Name: "ci", KeyHash: "sha256:11"},
			}
		}},
		{"all endpoints", func(c *Config) {
			c.PBX.CDRURL = "https://pbx.example:8443/cdrapi"
			c.PBX.RecordingURL = "https://pbx.example:8443/recapi"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() error: %v", err)
			}
		})
	}
}
