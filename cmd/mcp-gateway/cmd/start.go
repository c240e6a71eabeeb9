package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	gwhttp "github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/adapter/inbound/http"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/adapter/inbound/ws"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/adapter/outbound/memory"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/config"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/auth"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/backend"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/routing"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/domain/session"
	"github.com/Bothire-Agent-Marketplace/omni-mcp-sub003/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway",
	Long: `Start the MCP gateway.

Backends are declared in the mcp_servers section of the config file; the
capability map is built from their declared capability sets at boot, and a
health probe loop runs per backend.

Examples:
  # Start with config file settings
  mcp-gateway start

  # Start with a specific config file
  mcp-gateway --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Force development environment (permissive defaults, simulate-org header)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration (without validation, so the CLI flag can override
	// the environment first).
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.Environment = config.EnvDevelopment
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Signal context for graceful shutdown.
	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("mcp-gateway stopped")
	return nil
}

// run wires all components and blocks until shutdown.
func run(ctx context.Context, cfg *config.GatewayConfig, logger *slog.Logger) error {
	// Lookup stores. The production org/API-key lookup layer is an external
	// system behind these interfaces; the in-memory adapters back
	// single-node and development deployments.
	orgStore := memory.NewOrganizationStore()
	keyStore := memory.NewAPIKeyStore()

	resolver := auth.NewResolver(orgStore, keyStore, !cfg.IsProduction(), logger)
	signer := session.NewTokenSigner(cfg.JWTSecret)
	sessions := session.NewManager(resolver, signer, session.Config{
		Timeout:     cfg.SessionTimeout(),
		MaxSessions: cfg.MaxConcurrentSessions,
	}, logger)
	sessions.StartSweeper(ctx)
	defer sessions.Stop()

	// Backend pool and capability router from the declared server set.
	pool := backend.NewPool(logger)
	declared := make([]routing.Declared, 0, len(cfg.MCPServers))
	for id, srv := range cfg.MCPServers {
		if err := pool.Register(&backend.Server{
			ID:             id,
			BaseURL:        strings.TrimRight(srv.URL, "/"),
			Capabilities:   srv.Capabilities,
			Description:    srv.Description,
			MaxConnections: srv.MaxConnections,
			MaxRetries:     srv.MaxRetries,
			RequiresAuth:   srv.RequiresAuth,
			ProbeInterval:  cfg.ProbeInterval(srv),
		}); err != nil {
			return fmt.Errorf("failed to register backend: %w", err)
		}
		declared = append(declared, routing.Declared{BackendID: id, Capabilities: srv.Capabilities})
	}

	router, err := routing.Build(declared)
	if err != nil {
		return fmt.Errorf("failed to build capability map: %w", err)
	}

	// Shared metrics: the transport serves them, the pipeline records into them.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := gwhttp.NewMetrics(reg, sessions.Count)

	forwarder := service.NewForwarder(logger)
	pipeline := service.NewPipeline(sessions, router, pool, forwarder, metrics, logger)

	var limiter *memory.MemoryRateLimiter
	if cfg.EnableRateLimit {
		limiter = memory.NewRateLimiter(cfg.RateLimitPerMinute)
		limiter.StartCleanup(ctx)
		defer limiter.Stop()
	}

	wsHandler := ws.NewHandler(pipeline, sessions, logger)

	transport := gwhttp.NewTransport(pipeline, gwhttp.Admission{
		MaxBodyBytes:    cfg.MaxRequestSizeBytes(),
		AllowedOrigins:  cfg.AllowedOrigins,
		CORSCredentials: cfg.CORSCredentials,
		SecurityHeaders: cfg.SecurityHeaders,
		RequireAPIKey:   cfg.RequireAPIKey,
		GatewayAPIKey:   cfg.MCPAPIKey,
		RateLimiter:     limiter,
	},
		gwhttp.WithAddr(cfg.Host, cfg.Port),
		gwhttp.WithWebSocketHandler(wsHandler),
		gwhttp.WithHealthChecker(gwhttp.NewHealthChecker(pool)),
		gwhttp.WithSessionCounter(sessions.Count),
		gwhttp.WithMetrics(metrics, reg),
		gwhttp.WithLogger(logger),
	)

	pool.StartProbes()
	// Shutdown order: the transport stops accepting and drains in-flight
	// forwards first; probe cancellation follows via this defer.
	defer pool.Close()

	logger.Info("mcp-gateway starting",
		"addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		"environment", cfg.Environment,
		"backends", len(cfg.MCPServers),
	)

	return transport.Start(ctx)
}

// parseLogLevel maps the configured level string to a slog level.
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
