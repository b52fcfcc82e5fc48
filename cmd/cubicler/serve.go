package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/cubicler/cubicler/internal/httpapi"
	"github.com/cubicler/cubicler/pkg/agenttransport"
	"github.com/cubicler/cubicler/pkg/config"
	"github.com/cubicler/cubicler/pkg/dispatch"
	"github.com/cubicler/cubicler/pkg/dispatcher"
	"github.com/cubicler/cubicler/pkg/internaltools"
	"github.com/cubicler/cubicler/pkg/jwtauth"
	"github.com/cubicler/cubicler/pkg/logging"
	"github.com/cubicler/cubicler/pkg/mcpservice"
	"github.com/cubicler/cubicler/pkg/output"
	"github.com/cubicler/cubicler/pkg/providers"
	"github.com/cubicler/cubicler/pkg/reload"
	"github.com/cubicler/cubicler/pkg/restservice"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker",
	Long: `Starts the Cubicler broker: loads the agents and providers
configuration from the sources named by CUBICLER_AGENTS_SOURCE and
CUBICLER_PROVIDERS_SOURCE (file paths or http(s) URLs), connects the
configured MCP backends, and serves the dispatch and MCP endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	printer := output.New()
	printer.Banner(version)

	logger, logBuffer := buildLogger()

	agentsSrc, ok := config.SourceFromEnv("CUBICLER_AGENTS_SOURCE")
	if !ok {
		return fmt.Errorf("CUBICLER_AGENTS_SOURCE is not set")
	}
	providersSrc, ok := config.SourceFromEnv("CUBICLER_PROVIDERS_SOURCE")
	if !ok {
		return fmt.Errorf("CUBICLER_PROVIDERS_SOURCE is not set")
	}

	ttl := envSeconds("CUBICLER_CONFIG_TTL_SECONDS", 600)
	agentsRepo := config.NewAgentsRepository(agentsSrc, ttl)
	providersRepo := config.NewProvidersRepository(providersSrc, ttl)

	if src, ok := config.SourceFromEnv("CUBICLER_WEBHOOKS_SOURCE"); ok {
		if _, err := config.LoadWebhooks(src); err != nil {
			logger.Warn("webhooks config failed to load", "source", src.Location, "error", err)
		}
	}

	agentsCfg, err := agentsRepo.Get()
	if err != nil {
		return fmt.Errorf("loading agents config: %w", err)
	}
	providersCfg, err := providersRepo.Get()
	if err != nil {
		return fmt.Errorf("loading providers config: %w", err)
	}

	provRepo := providers.New(providersRepo)
	if err := provRepo.Refresh(); err != nil {
		return fmt.Errorf("deriving server metadata: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := setupTracing(ctx)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing()

	mcpSvc := mcpservice.New(providersCfg.McpServers, provRepo, logging.WithComponent(logger, "mcp"))
	defer mcpSvc.Close()

	restSvc := restservice.New(providersCfg.RestServers, provRepo)
	restSvc.StrictParams = envBool("STRICT_PARAMS")

	internalSvc := internaltools.New(provRepo, mcpSvc, restSvc)

	// Router order: internal tools never touch a backend, MCP claims by
	// hash token, REST claims whatever remains addressable.
	disp := dispatcher.New(mcpSvc, restSvc, internalSvc,
		internalSvc, dispatcher.WrapMCP(mcpSvc), restSvc)

	mcpSvc.Start(ctx)
	mcpSvc.StartHealthMonitor(ctx, envSeconds("CUBICLER_HEALTH_INTERVAL_SECONDS", 30))

	sseTimeout := envSeconds("CUBICLER_SSE_RESPONSE_TIMEOUT_SECONDS", 300)
	sseTransports := make(map[string]*agenttransport.SSETransport)
	pools := make(map[string]*agenttransport.StdioPoolTransport)
	transports := make(map[string]agenttransport.Transport, len(agentsCfg.Agents))
	for _, agent := range agentsCfg.Agents {
		switch agent.Transport {
		case config.TransportSSE:
			sseTransports[agent.Identifier] = agenttransport.NewSSETransport(agent.Identifier, sseTimeout)
		case config.TransportStdio:
			pool, err := agenttransport.NewStdioPool(agent)
			if err != nil {
				return fmt.Errorf("configuring agent %s: %w", agent.Identifier, err)
			}
			pools[agent.Identifier] = pool
		}
		tr, err := agenttransport.New(agent, sseTransports[agent.Identifier], pools)
		if err != nil {
			return fmt.Errorf("configuring agent %s: %w", agent.Identifier, err)
		}
		transports[agent.Identifier] = tr
	}
	defer func() {
		for _, p := range pools {
			p.Close()
		}
		for _, s := range sseTransports {
			s.Disconnect()
		}
	}()

	go reapIdleWorkers(ctx, pools)

	dispatchSvc := dispatch.New(agentsRepo, disp, provRepo, transports)

	verifier := jwtauth.New(
		os.Getenv("CUBICLER_JWT_SECRET"),
		os.Getenv("CUBICLER_JWT_ISSUER"),
		os.Getenv("CUBICLER_JWT_AUDIENCE"),
	)

	api := httpapi.NewServer(dispatchSvc, disp, agentsRepo, sseTransports, verifier, mcpSvc, logBuffer)

	watchSource(ctx, agentsSrc, logger, func() error {
		agentsRepo.Invalidate()
		return nil
	})
	watchSource(ctx, providersSrc, logger, func() error {
		providersRepo.Invalidate()
		return provRepo.Refresh()
	})

	addr := ":" + envString("CUBICLER_PORT", "1503")
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	printer.Info("cubicler listening",
		"addr", addr,
		"agents", len(agentsCfg.Agents),
		"mcpServers", len(providersCfg.McpServers),
		"restServers", len(providersCfg.RestServers))

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// buildLogger assembles the process logger from environment settings; a
// configured log file rotates via lumberjack. Every record also lands in a
// ring buffer that backs /health's recent-errors list, and bearer tokens
// and other secrets are redacted before reaching either sink.
func buildLogger() (*slog.Logger, *logging.LogBuffer) {
	cfg := logging.DefaultConfig()
	cfg.Component = "cubicler"
	cfg.Level = logging.ParseLevel(os.Getenv("CUBICLER_LOG_LEVEL"))
	if f := os.Getenv("CUBICLER_LOG_FORMAT"); f != "" {
		cfg.Format = logging.ParseFormat(f)
	}
	if file := os.Getenv("CUBICLER_LOG_FILE"); file != "" {
		cfg.Output = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}
	}
	buffer := logging.NewLogBuffer(1000)
	base := logging.NewStructuredLogger(cfg)
	handler := logging.NewRedactingHandler(logging.NewBufferHandler(buffer, base.Handler()))
	return slog.New(handler), buffer
}

// setupTracing installs an OTLP/HTTP trace exporter when
// CUBICLER_OTLP_ENDPOINT is set; otherwise spans stay no-ops.
func setupTracing(ctx context.Context) (func(), error) {
	endpoint := os.Getenv("CUBICLER_OTLP_ENDPOINT")
	if endpoint == "" {
		return func() {}, nil
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(sdkresource.NewSchemaless(
			attribute.String("service.name", "cubicler"),
			attribute.String("service.version", version),
		)),
	)
	otel.SetTracerProvider(provider)
	return func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = provider.Shutdown(shutdownCtx)
	}, nil
}

// watchSource hot-reloads a file-backed config source. URL sources rely on
// the repository TTL instead.
func watchSource(ctx context.Context, src config.Source, logger *slog.Logger, onChange func() error) {
	if src.IsURL() {
		return
	}
	w := reload.NewWatcher(src.Location, onChange)
	w.SetLogger(logging.WithComponent(logger, "reload"))
	go func() {
		if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("config watcher stopped", "source", src.Location, "error", err)
		}
	}()
}

func reapIdleWorkers(ctx context.Context, pools map[string]*agenttransport.StdioPoolTransport) {
	if len(pools) == 0 {
		return
	}
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range pools {
				p.ReapIdle()
			}
		}
	}
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envSeconds(name string, fallback int) time.Duration {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(fallback) * time.Second
}

func envBool(name string) bool {
	v, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && v
}
