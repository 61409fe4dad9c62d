package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/internhub/reportwatch/internal/api"
	"github.com/internhub/reportwatch/internal/backend"
	"github.com/internhub/reportwatch/internal/config"
	"github.com/internhub/reportwatch/internal/metrics"
	"github.com/internhub/reportwatch/internal/notify"
	"github.com/internhub/reportwatch/internal/store"
	"github.com/internhub/reportwatch/internal/tracker"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("REPORTWATCH_CONFIG"), "path to an optional YAML config file")
		listenAddr = flag.String("listen", "", "listen address (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		noWait     = flag.Bool("no-wait", false, "start without waiting for the report service")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	level, err := cfg.Level()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	kv, err := store.NewSQLiteKV(cfg.DBPath)
	if err != nil {
		slog.Error("store", "error", err)
		os.Exit(1)
	}
	defer kv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := backend.New(backend.Options{
		BaseURL: cfg.BackendURL,
		APIKey:  cfg.BackendAPIKey,
		RPS:     float64(cfg.BackendRPS),
		Burst:   cfg.BackendRPS,
	})
	if err != nil {
		slog.Error("backend", "error", err)
		os.Exit(1)
	}
	if !*noWait {
		if err := client.WaitReady(ctx, cfg.ReadyTimeout); err != nil {
			slog.Error("backend", "error", err)
			os.Exit(1)
		}
	}

	var sinks []notify.Sink
	if cfg.WebhookURL != "" {
		wh, err := notify.NewWebhook(ctx, cfg.WebhookURL)
		if err != nil {
			slog.Warn("webhook: disabled", "url", cfg.WebhookURL, "error", err)
		} else {
			sinks = append(sinks, wh)
		}
	}
	hub := notify.NewHub(sinks...)
	defer hub.Close()

	metrics.MustRegister()

	tr, err := tracker.New(ctx, tracker.Options{
		Backend:         client,
		Repo:            store.NewSnapshotRepo(kv, store.ActiveJobsKey),
		Notifier:        hub,
		Saver:           tracker.DirSaver{Dir: cfg.DownloadDir},
		BadgeInterval:   cfg.BadgeInterval,
		MonitorInterval: cfg.MonitorInterval,
		RefreshDebounce: cfg.RefreshDebounce,
		SuccessGrace:    cfg.SuccessGrace,
		FailureGrace:    cfg.FailureGrace,
		PageSize:        cfg.PageSize,
	})
	if err != nil {
		slog.Error("tracker", "error", err)
		os.Exit(1)
	}
	tr.Start()
	slog.Info("tracker started", "active_jobs", len(tr.Active()))

	mux := http.NewServeMux()
	h := api.NewHandler(tr, hub, client)
	h.RegisterRoutes(mux)

	handler := api.Chain(mux,
		api.CORS(cfg.CORSOrigins),
		api.RequestID,
		api.Logging,
		api.Auth(cfg.APIKeys),
		api.RateLimit(ctx, cfg.SubmitRPS),
	)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		tr.Close()
		hub.Close()
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if len(cfg.APIKeys) == 0 {
		slog.Warn("REPORTWATCH_API_KEYS is empty, local API is unauthenticated")
	}
	slog.Info("reportwatch listening", "addr", cfg.ListenAddr, "backend", cfg.BackendURL)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
