package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbxgate/pbxgate/internal/adapter/inbound/admin"
	"github.com/pbxgate/pbxgate/internal/adapter/inbound/http"
	"github.com/pbxgate/pbxgate/internal/adapter/outbound/memory"
	"github.com/pbxgate/pbxgate/internal/adapter/outbound/pbxhttp"
	"github.com/pbxgate/pbxgate/internal/config"
	"github.com/pbxgate/pbxgate/internal/domain/auth"
	"github.com/pbxgate/pbxgate/internal/domain/cache"
	"github.com/pbxgate/pbxgate/internal/domain/ratelimit"
	"github.com/pbxgate/pbxgate/internal/port/outbound"
	"github.com/pbxgate/pbxgate/internal/service"
	"github.com/pbxgate/pbxgate/internal/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the pbx-gate HTTP gateway.

The gateway serves the client API under /api/v1, the admin API under
/admin/api, /health and /metrics on server.http_addr.

Examples:
  # Start with config file settings
  pbx-gate start

  # Start against a local PBX simulator with debug logging
  pbx-gate start --dev

  # Start with a specific config file
  pbx-gate --config /path/to/pbx-gate.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, local PBX defaults)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidatedConfig(devMode)
	if err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(cfg)

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("development mode enabled: PBX TLS verification is disabled")
	}

	// Write PID file so "pbx-gate stop" can find us.
	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("pbx-gate stopped")
	return nil
}

// newLogger builds the process logger. DevMode always forces debug.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// gateway holds the wired components of a running server.
type gateway struct {
	telemetry *telemetry.Provider
	client    *pbxhttp.Client
	sessions  *memory.SessionStore
	artifacts *memory.TTLCache[cache.Artifact]
	throttle  *memory.LoginThrottle
	adminRate *memory.LoginThrottle
	reaper    *service.Reaper
	api       *http.Handler
	admin     *admin.AdminAPIHandler
	transport *http.HTTPTransport
}

// run wires all components together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	gw, err := buildGateway(cfg, logger, time.Now().UTC())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gw.telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	gw.reaper.Start(ctx)
	defer gw.reaper.Stop()

	logger.Info("pbx-gate started",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"pbx", cfg.PBX.BaseURL,
		"circuit_breaker", cfg.PBX.CircuitBreaker.Enabled,
		"login_rate_limit", cfg.Server.LoginRateLimit.Enabled,
		"admin_keys", len(cfg.Admin.APIKeys),
		"reap_interval", gw.reaper.Interval(),
	)

	return gw.transport.Start(ctx)
}

// buildGateway creates every component from cfg without starting anything.
func buildGateway(cfg *config.Config, logger *slog.Logger, startTime time.Time) (*gateway, error) {
	d, err := cfg.Durations()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	tel, err := telemetry.New(telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Output:         cfg.Telemetry.Output,
		ServiceName:    "pbx-gate",
		ServiceVersion: Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start telemetry: %w", err)
	}

	gw := &gateway{telemetry: tel}

	// ===== Outbound: PBX client and in-memory stores =====
	clientOpts := []pbxhttp.ClientOption{
		pbxhttp.WithInsecureSkipVerify(cfg.PBX.InsecureSkipVerify),
		pbxhttp.WithTimeouts(d.AuthTimeout, d.DataTimeout),
		pbxhttp.WithEndpointURL(outbound.EndpointCDR, cfg.PBX.CDRURL),
		pbxhttp.WithEndpointURL(outbound.EndpointRecording, cfg.PBX.RecordingURL),
		pbxhttp.WithMaxPayloadSize(int64(cfg.PBX.MaxPayloadMB) << 20),
		pbxhttp.WithLogger(logger),
		pbxhttp.WithTelemetry(tel),
	}
	if cb := cfg.PBX.CircuitBreaker; cb.Enabled {
		clientOpts = append(clientOpts, pbxhttp.WithCircuitBreaker(pbxhttp.BreakerSettings{
			MaxRequests:  cb.MaxRequests,
			Interval:     d.BreakerWindow,
			Timeout:      d.BreakerTimeout,
			MinRequests:  cb.MinRequests,
			FailureRatio: cb.FailureRatio,
		}))
	}
	gw.client = pbxhttp.NewClient(cfg.PBX.BaseURL, clientOpts...)
	gw.sessions = memory.NewSessionStore(memory.WithSessionTTL(d.SessionTTL))
	gw.artifacts = memory.NewTTLCache[cache.Artifact](memory.WithMaxEntries(cfg.Cache.MaxEntries))

	// ===== Core services =====
	authService := service.NewAuthService(gw.client, gw.sessions, service.AuthConfig{
		APIVersion:   cfg.PBX.Version,
		SharedSecret: cfg.PBX.SharedSecret,
	}, logger)
	sessionService := service.NewSessionService(gw.sessions, logger)
	recordingService := service.NewRecordingService(gw.client, gw.sessions, gw.artifacts, d.RecordingTTL, logger)
	cdrService := service.NewCDRService(gw.client, gw.sessions, logger)
	callService := service.NewCallService(gw.client, gw.sessions, logger)
	cacheService := service.NewCacheService(gw.artifacts, gw.sessions, logger)

	// ===== Limiters and reaper =====
	gw.reaper = service.NewReaper(d.ReaperInterval, logger).
		Register("recordings", gw.artifacts).
		Register("sessions", gw.sessions)

	handlerOpts := []http.HandlerOption{http.WithHandlerLogger(logger)}
	if rl := cfg.Server.LoginRateLimit; rl.Enabled {
		gw.throttle = memory.NewLoginThrottle(ratelimit.Limit{Rate: rl.Rate, Burst: rl.Burst, Period: d.LoginPeriod})
		gw.reaper.Register("login_throttle", gw.throttle)
		handlerOpts = append(handlerOpts, http.WithLoginThrottle(gw.throttle))
	}

	keyring, err := auth.NewKeyring(adminKeys(cfg.Admin.APIKeys))
	if err != nil {
		return nil, fmt.Errorf("invalid admin keys: %w", err)
	}

	adminOpts := []admin.AdminAPIOption{
		admin.WithSessionDirectory(sessionService),
		admin.WithCacheAdmin(cacheService),
		admin.WithSweeper(gw.reaper),
		admin.WithKeyring(keyring),
		admin.WithConfigRenderer(cfg.RedactedYAML),
		admin.WithAPILogger(logger),
		admin.WithBuildInfo(&admin.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}),
		admin.WithStartTime(startTime),
	}
	if rl := cfg.Server.AdminRateLimit; rl.Enabled {
		gw.adminRate = memory.NewLoginThrottle(ratelimit.Limit{Rate: rl.Rate, Burst: rl.Burst, Period: d.AdminPeriod})
		gw.reaper.Register("admin_rate_limit", gw.adminRate)
		adminOpts = append(adminOpts, admin.WithRateLimiter(gw.adminRate))
	}
	gw.admin = admin.NewAdminAPIHandler(adminOpts...)

	// ===== Inbound: gateway API and transport =====
	gw.api = http.NewHandler(http.Services{
		Auth:       authService,
		Sessions:   sessionService,
		Recordings: recordingService,
		CDR:        cdrService,
		Calls:      callService,
	}, handlerOpts...)

	sizes := http.StoreSizes{
		Sessions:     gw.sessions.Len,
		CacheEntries: gw.artifacts.Len,
	}
	if gw.throttle != nil {
		sizes.ThrottledKeys = gw.throttle.Len
	}

	transportOpts := []http.Option{
		http.WithAddr(cfg.Server.HTTPAddr),
		http.WithLogger(logger),
		http.WithTrustForwarded(cfg.Server.TrustForwardedFor),
		http.WithExtraHandler(gw.admin.Routes()),
		http.WithHealthChecker(http.NewHealthChecker(gw.sessions.Len, gw.artifacts.Len, gw.client, Version)),
		http.WithStoreSizes(sizes),
	}
	if cfg.Server.TLSCertFile != "" {
		transportOpts = append(transportOpts, http.WithTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile))
	}
	gw.transport = http.NewHTTPTransport(gw.api, transportOpts...)

	return gw, nil
}

func adminKeys(keys []config.AdminKeyConfig) []auth.AdminKey {
	out := make([]auth.AdminKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, auth.AdminKey{Name: k.Name, Hash: k.KeyHash})
	}
	return out
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
