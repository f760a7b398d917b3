// CLAUDE:SUMMARY CLI entry point for feedpilot: Chrome feed tab, engine supervisor, HTTP control API and optional MCP stdio.
// Command feedpilot runs the feed engagement engine on a Chrome tab.
//
// Usage:
//
//	feedpilot -config feedpilot.yaml
//	feedpilot -url https://www.linkedin.com/feed/ -addr 127.0.0.1:8086
//	feedpilot -mcp                # serve MCP tools on stdio
package main

import (
	"context"
	"errors"
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

	"github.com/hazyhaar/feedpilot/channel"
	"github.com/hazyhaar/feedpilot/dbopen"
	"github.com/hazyhaar/feedpilot/liker"
	"github.com/hazyhaar/feedpilot/trace"
)

func main() {
	configPath := flag.String("config", "", "path to feedpilot.yaml config file")
	feedURL := flag.String("url", "", "feed URL (overrides config)")
	dbPath := flag.String("db", "", "settings database path (overrides config)")
	addr := flag.String("addr", "", "control API listen address, empty to disable (overrides config)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	traceSQL := flag.Bool("trace-sql", false, "log every SQL statement (overrides config)")
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
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := liker.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = liker.LoadConfigFile(*configPath); err != nil {
			logger.Error("feedpilot: load config", "error", err)
			os.Exit(1)
		}
	}
	if *feedURL != "" {
		cfg.Feed.URL = *feedURL
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *addr != "" {
		cfg.Control.Addr = *addr
	}
	if *mcpStdio {
		cfg.Control.MCP = true
	}
	if *traceSQL {
		cfg.Store.Trace = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("feedpilot: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *liker.Config) error {
	opts := []dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(liker.Schema)}
	if cfg.Store.Trace {
		trace.SetLogger(logger)
		trace.SetSlowThreshold(cfg.Store.SlowQuery)
		opts = append(opts, dbopen.WithTrace())
	}
	db, err := dbopen.Open(cfg.Store.Path, opts...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	router := channel.New(
		channel.WithLogger(logger),
		channel.WithMiddleware(channel.Recovery(logger), channel.Logging(logger)),
	)

	sup := liker.NewSupervisor(db, router, cfg, liker.WithLogger(logger))
	if err := sup.Seed(ctx); err != nil {
		logger.Warn("feedpilot: seed defaults", "error", err)
	}

	chrome, err := sup.Launch(ctx)
	if err != nil {
		return err
	}
	defer chrome.Close()
	defer sup.Close()

	var srv *http.Server
	if cfg.Control.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.Control.Addr,
			Handler:           liker.NewControlServer(sup, router, logger).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("feedpilot: control API listening", "addr", cfg.Control.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("feedpilot: control API", "error", err)
			}
		}()
	}

	if cfg.Control.MCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "feedpilot",
			Version: "1.0.0",
		}, nil)
		sup.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("feedpilot: mcp stdio", "error", err)
			}
		}()
		logger.Info("feedpilot: MCP tools on stdio")
	}

	sup.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("feedpilot: shutdown", "error", err)
		}
	}
	logger.Info("feedpilot: stopped")
	return nil
}
