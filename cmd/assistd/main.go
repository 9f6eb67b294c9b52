// Assistd serves the site's DIY auto-repair chat assistants over HTTP.
//
// This binary wires configuration, logging, telemetry, the completion
// provider, event sinks and one pipeline per assistant variant, then
// serves them with echo.
//
// Configuration is loaded from ~/.config/assistd/config.yaml (if present)
// and environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	GEMINI_API_KEY=... assistd
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9090 PROVIDER_NAME=openai PROVIDER_BASE_URL=http://localhost:11434/v1 assistd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/assistd/internal/assistant"
	"github.com/fyrsmithlabs/assistd/internal/completion"
	"github.com/fyrsmithlabs/assistd/internal/config"
	"github.com/fyrsmithlabs/assistd/internal/diagnosis"
	httpserver "github.com/fyrsmithlabs/assistd/internal/http"
	"github.com/fyrsmithlabs/assistd/internal/logging"
	"github.com/fyrsmithlabs/assistd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/assistd/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  assistd [-config path]   Start the assistant server\n")
			fmt.Fprintf(os.Stderr, "  assistd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("assistd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the server and blocks until ctx is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes telemetry and the logger
//  3. Builds the completion provider and event sinks
//  4. Builds one pipeline per variant plus the diagnosis service
//  5. Serves HTTP until ctx is done, then shuts down gracefully
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "Starting assistd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("provider", cfg.Provider.Name),
		zap.Bool("telemetry", cfg.Observability.EnableTelemetry),
	)

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	srv, err := newServer(cfg, deps, tel, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// initLogger builds the structured logger, bridged to OTEL when telemetry
// is enabled.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg, err := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	logCfg.Fields["version"] = version

	provider := tel.LoggerProvider()
	logCfg.Output.OTEL = cfg.Observability.EnableTelemetry && provider != nil
	return logging.NewLogger(logCfg, provider)
}

// dependencies holds the provider and the event side channel.
type dependencies struct {
	completer completion.Completer
	sink      assistant.EventSink
	natsConn  *nats.Conn
}

// Close releases infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		_ = d.natsConn.Drain()
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*dependencies, error) {
	completer, err := completion.NewFromConfig(ctx, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("completion provider: %w", err)
	}
	logger.Info(ctx, "completion provider configured",
		zap.String("provider", cfg.Provider.Name),
		zap.String("model", cfg.Provider.Model),
		logging.Secret("api_key", cfg.Provider.APIKey),
	)

	deps := &dependencies{completer: completer}
	sinks := assistant.MultiSink{assistant.NewLogSink(logger)}

	if cfg.Events.NATSURL != "" {
		nc, err := nats.Connect(cfg.Events.NATSURL,
			nats.Name("assistd"),
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		deps.natsConn = nc
		sinks = append(sinks, assistant.NewNATSSink(nc, cfg.Events.SubjectPrefix))
		logger.Info(ctx, "Publishing assistant events to NATS",
			zap.String("subject_prefix", cfg.Events.SubjectPrefix))
	}
	deps.sink = sinks
	return deps, nil
}

func newServer(cfg *config.Config, deps *dependencies, tel *telemetry.Telemetry, logger *logging.Logger) (*httpserver.Server, error) {
	variants, err := assistant.Configure(cfg.Assistant)
	if err != nil {
		return nil, fmt.Errorf("assistant variants: %w", err)
	}

	tracer := tel.Tracer("github.com/fyrsmithlabs/assistd")
	pipelines := make([]*assistant.Pipeline, 0, len(variants))
	for _, v := range variants {
		p, err := assistant.NewPipeline(v, deps.completer,
			assistant.WithSink(deps.sink),
			assistant.WithLogger(logger),
			assistant.WithTracer(tracer),
			assistant.WithCompletionTimeout(cfg.Assistant.CompletionTimeout),
		)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}

	diag, err := diagnosis.NewService(deps.completer,
		diagnosis.WithLogger(logger),
		diagnosis.WithTracer(tracer),
		diagnosis.WithTimeout(cfg.Provider.Timeout),
	)
	if err != nil {
		return nil, err
	}

	return httpserver.NewServer(logger, &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		BodyLimit:      cfg.Server.BodyLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, pipelines,
		httpserver.WithDiagnosis(diag),
		httpserver.WithMetrics(httpserver.NewHTTPMetrics(tel.Meter("github.com/fyrsmithlabs/assistd/internal/http"), logger)),
		httpserver.WithMetricsHandler(promhttp.Handler()),
		httpserver.WithHealth(healthReport(pipelines, tel)),
	)
}

// healthReport reports the served variants and telemetry state.
func healthReport(pipelines []*assistant.Pipeline, tel *telemetry.Telemetry) func() httpserver.HealthResponse {
	names := make([]string, 0, len(pipelines))
	for _, p := range pipelines {
		names = append(names, p.Name())
	}
	return func() httpserver.HealthResponse {
		resp := httpserver.HealthResponse{Status: "ok", Variants: names}
		switch h := tel.Health(); {
		case !tel.IsEnabled():
			resp.Telemetry = "disabled"
		case h.Degraded:
			resp.Telemetry = "degraded"
		default:
			resp.Telemetry = "ok"
		}
		return resp
	}
}
