// Command ariatree is the browser pilot daemon.
//
// Usage:
//
//	ariatree -config ariatree.yaml          # run the HTTP API daemon
//	ariatree -mcp                           # serve MCP tools over stdio
//	ariatree -url https://example.com       # snapshot a single page and exit
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ariatree/dbopen"
	"github.com/hazyhaar/ariatree/observability"
	"github.com/hazyhaar/ariatree/pilot"
)

func main() {
	configPath := flag.String("config", "", "path to ariatree.yaml config file")
	singleURL := flag.String("url", "", "snapshot a single URL to stdout and exit")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools over stdio instead of HTTP")
	listen := flag.String("listen", "", "HTTP listen address (overrides config)")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// Logs go to stderr: stdout belongs to the MCP transport in -mcp mode.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *listen, *mcpStdio); err != nil {
		logger.Error("ariatree: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, listen string, mcpStdio bool) error {
	cfg, err := resolveConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}

	svc := pilot.NewService(cfg, logger)

	obs, err := openObservability(ctx, logger, svc, cfg)
	if err != nil {
		return err
	}
	if obs != nil {
		defer obs.close()
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close()

	if singleURL != "" {
		return runSingle(ctx, svc, singleURL)
	}

	if mcpStdio {
		return runMCP(ctx, logger, svc)
	}

	return runHTTP(ctx, logger, svc, cfg.Listen)
}

func resolveConfig(configPath string) (*pilot.Config, error) {
	if configPath != "" {
		cfg, err := pilot.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	return pilot.DefaultConfig(), nil
}

// runSingle opens one tab, prints the rendered snapshot, and exits.
func runSingle(ctx context.Context, svc *pilot.Service, url string) error {
	info, err := svc.OpenTab(ctx, url)
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	res, err := svc.Snapshot(ctx, info.TabID)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	fmt.Println(res.Tree)
	return nil
}

func runMCP(ctx context.Context, logger *slog.Logger, svc *pilot.Service) error {
	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "ariatree",
		Version: "1.0.0",
	}, nil)
	svc.RegisterMCP(srv)

	logger.Info("ariatree: MCP serving on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func runHTTP(ctx context.Context, logger *slog.Logger, svc *pilot.Service, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           svc.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("ariatree: server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ariatree: server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("ariatree: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("ariatree: shutdown", "error", err)
	}
	return nil
}

// obsStack holds the event database and its writers so shutdown can flush
// them in order.
type obsStack struct {
	db        *sql.DB
	recorder  *observability.ToolRecorder
	metrics   *observability.MetricsManager
	heartbeat *observability.HeartbeatWriter
}

func (o *obsStack) close() {
	o.heartbeat.Stop()
	o.recorder.Close()
	o.metrics.Close()
	o.db.Close()
}

// openObservability opens the flight-recorder database and wires it into the
// service. An empty path disables persistence entirely.
func openObservability(ctx context.Context, logger *slog.Logger, svc *pilot.Service, cfg *pilot.Config) (*obsStack, error) {
	path := cfg.Observability.Path
	if path == "" {
		return nil, nil
	}

	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("open event db: %w", err)
	}
	if err := observability.Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init event db: %w", err)
	}

	recorder := observability.NewToolRecorder(db, 256)
	pages := observability.NewPageLog(db)
	metrics := observability.NewMetricsManager(db, 256, 10*time.Second)
	svc.SetObservability(recorder, pages, metrics)

	heartbeat := observability.NewHeartbeatWriter(db, "ariatree", cfg.Observability.HeartbeatInterval)
	heartbeat.Start(ctx)

	go retentionLoop(ctx, logger, db, cfg.Observability.RetentionDays)

	logger.Info("ariatree: event db ready", "path", path)
	return &obsStack{db: db, recorder: recorder, metrics: metrics, heartbeat: heartbeat}, nil
}

func retentionLoop(ctx context.Context, logger *slog.Logger, db *sql.DB, days int) {
	ticker := time.NewTicker(6 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := observability.Cleanup(ctx, db, observability.RetentionConfig{
				ToolEventsDays: days,
				PageEventsDays: days,
				HeartbeatsDays: days,
				MetricsDays:    days,
			})
			if err != nil {
				logger.Warn("ariatree: retention cleanup", "error", err)
			}
		}
	}
}
