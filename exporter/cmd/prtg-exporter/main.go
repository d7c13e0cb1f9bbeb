package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/obsidianstack/prtg-exporter/exporter/internal/api"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/collector"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/config"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/observability"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/status"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/store"
	"github.com/obsidianstack/prtg-exporter/exporter/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn or error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	slog.Info("prtg-exporter starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"prtg_url", cfg.PRTG.URL,
		"page_size", cfg.PRTG.PageSize,
		"channel_parallelism", cfg.PRTG.ChannelParallelism,
		"pause", cfg.Refresh.Pause,
		"http_port", cfg.Server.HTTPPort,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Snapshot store shared by the refresh loop and every reader.
	st := store.New(cfg.Scrape.BlockUntilReady)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewRefreshMetrics(reg)
	if err != nil {
		slog.Error("failed to register metrics", "err", err)
		os.Exit(1)
	}

	coll, err := collector.New(st, cfg)
	if err != nil {
		slog.Error("failed to build collector", "err", err)
		os.Exit(1)
	}
	reg.MustRegister(coll)

	tracker := status.NewTracker()
	apiHandler := api.New(st, tracker, cfg)

	// WebSocket hub: status on connect, every broadcast interval and after
	// each refresh cycle.
	hub := ws.New(apiHandler, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	run := newRunner(ctx, st, metrics, tracker, hub)
	if err := run.start(cfg); err != nil {
		slog.Error("failed to start refresh loop", "err", err)
		os.Exit(1)
	}

	// Hot reload: labels and converters apply to the next scrape; PRTG and
	// refresh changes restart the loop.
	go func() {
		err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			if err := coll.Reconfigure(updated); err != nil {
				slog.Error("config reload rejected", "err", err)
				return
			}
			apiHandler.Reconfigure(updated)
			restarted, err := run.reload(updated)
			if err != nil {
				slog.Error("refresh loop restart failed", "err", err)
				return
			}
			slog.Info("config hot-reloaded", "loop_restarted", restarted)
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	httpMux := http.NewServeMux()
	httpMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(handler, slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("prtg-exporter shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if !run.stop(shutdownCtx) {
		slog.Error("refresh loop still running at exit")
	}
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
