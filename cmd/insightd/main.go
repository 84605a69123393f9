// Insightd watches conversation text for behavioral patterns and keeps a
// per-user profile of the ones that recur.
//
// Configuration is read from ~/.config/insightd/config.yaml and INSIGHTD_*
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	insightd
//
//	# Use a specific config file and an in-memory store
//	INSIGHTD_STORAGE_BACKEND=memory insightd --config /etc/insightd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/advisory"
	"github.com/fyrsmithlabs/insightd/internal/config"
	"github.com/fyrsmithlabs/insightd/internal/conversation"
	"github.com/fyrsmithlabs/insightd/internal/detector"
	httpserver "github.com/fyrsmithlabs/insightd/internal/http"
	"github.com/fyrsmithlabs/insightd/internal/indicators"
	"github.com/fyrsmithlabs/insightd/internal/insights"
	"github.com/fyrsmithlabs/insightd/internal/insightstore"
	"github.com/fyrsmithlabs/insightd/internal/logging"
	"github.com/fyrsmithlabs/insightd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/insightd/config.yaml)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  insightd           Start the insightd daemon\n")
			fmt.Fprintf(os.Stderr, "  insightd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("insightd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts insightd and blocks until ctx is cancelled or the HTTP server
// fails. Components are released in reverse order of construction.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	a.logger.Info(ctx, "insightd started",
		zap.String("version", version),
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("events", a.publisher != nil),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info(ctx, "shutdown signal received")
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	return errors.Join(runErr, a.close(shutdownCtx))
}

// app holds the wired components of a running daemon.
type app struct {
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	store     insightstore.Store
	publisher *insights.NATSPublisher
	recorder  *insights.Recorder
	server    *httpserver.Server
}

// newApp builds every component from cfg. On failure anything already
// built is released.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a = &app{}
	defer func() {
		if err != nil {
			_ = a.close(context.Background())
			a = nil
		}
	}()

	a.telemetry, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
	if err != nil {
		return a, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return a, fmt.Errorf("invalid logging config: %w", err)
	}
	a.logger, err = logging.NewLogger(logCfg, a.telemetry.LoggerProvider())
	if err != nil {
		return a, fmt.Errorf("initializing logger: %w", err)
	}
	zl := a.logger.Underlying()

	if health := a.telemetry.Health(); health.Degraded {
		a.logger.Warn(ctx, "telemetry degraded", zap.String("reason", health.Reason))
	}

	catalog := indicators.DefaultCatalog()
	if cfg.Detector.CatalogPath != "" {
		path, err := config.ExpandHome(cfg.Detector.CatalogPath)
		if err != nil {
			return a, err
		}
		catalog, err = indicators.Load(path)
		if err != nil {
			return a, fmt.Errorf("loading pattern catalog: %w", err)
		}
		a.logger.Info(ctx, "pattern catalog loaded",
			zap.String("path", path),
			zap.String("catalog.version", catalog.Version()),
			zap.Int("rules", catalog.Len()),
		)
	}

	det := detector.New(catalog,
		detector.WithMaxInputChars(cfg.Detector.MaxInputChars),
		detector.WithMinInputChars(cfg.Detector.MinInputChars),
		detector.WithLogger(zl),
	)

	transcriptDir, err := config.ExpandHome(cfg.Conversation.TranscriptDir)
	if err != nil {
		return a, err
	}
	analyzer := conversation.NewAnalyzer(
		conversation.NewJSONLSource(transcriptDir, zl),
		det,
		zl,
		conversation.WithMaxTurns(cfg.Conversation.MaxTurns),
	)

	a.store, err = insightstore.NewStore(ctx, cfg.Storage, zl)
	if err != nil {
		return a, fmt.Errorf("initializing insight store: %w", err)
	}

	opts := []insights.ServiceOption{insights.WithBuilder(advisory.NewBuilder(catalog))}
	if cfg.Events.NATSURL != "" {
		a.publisher, err = insights.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, zl)
		if err != nil {
			return a, err
		}
		opts = append(opts, insights.WithPublisher(a.publisher))
	}

	svc, err := insights.NewService(a.store, zl, opts...)
	if err != nil {
		return a, err
	}

	recorder, err := insights.NewRecorder(svc, zl,
		insights.WithWorkers(cfg.Recorder.Workers),
		insights.WithQueueSize(cfg.Recorder.QueueSize),
		insights.WithJobTimeout(cfg.Recorder.JobTimeout),
	)
	if err != nil {
		return a, err
	}
	if err := recorder.Start(); err != nil {
		return a, err
	}
	a.recorder = recorder

	a.server, err = httpserver.NewServer(httpserver.Services{
		Detector: det,
		Analyzer: analyzer,
		Insights: svc,
		Recorder: recorder,
	}, zl, &httpserver.Config{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		Version:   version,
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
		BodyLimit: cfg.Server.BodyLimit,
	})
	if err != nil {
		return a, err
	}

	return a, nil
}

// close stops accepting requests, drains the recorder, then releases
// everything else.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("recorder stop: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("event publisher close: %w", err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("insight store close: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync() // Best-effort sync on shutdown
	}
	return errors.Join(errs...)
}
