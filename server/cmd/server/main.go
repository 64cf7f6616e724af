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

	"github.com/pibench/pibench/server/internal/aggregator"
	"github.com/pibench/pibench/server/internal/api"
	"github.com/pibench/pibench/server/internal/backend"
	"github.com/pibench/pibench/server/internal/config"
	"github.com/pibench/pibench/server/internal/source"
	"github.com/pibench/pibench/server/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file; empty uses defaults and environment only")
	uiDir := flag.String("ui-dir", "", "serve the frontend static files from this directory (e.g. frontend/dist); leave empty to disable")
	flag.Parse()

	var level slog.LevelVar
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("pibench-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.Log.SlogLevel())

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"compute_base_url", cfg.Server.Compute.BaseURL,
		"compute_timeout", cfg.Server.Compute.Timeout,
		"db_path", cfg.Server.Storage.DBPath,
		"metadata_path", cfg.Server.Storage.MetadataPath,
		"rate_limit", cfg.Server.RateLimit.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Server.Storage.DBPath, cfg.Server.Storage.MetadataPath, store.WithMkdirAll())
	if err != nil {
		slog.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	if cfg.Server.Storage.WatchMetadata {
		go func() {
			if err := st.Catalog().Watch(ctx); err != nil {
				slog.Error("catalog watcher stopped", "err", err)
			}
		}()
	}

	scraper, err := source.New(cfg.Server.Source)
	if err != nil {
		slog.Error("failed to create source scraper", "err", err)
		os.Exit(1)
	}
	defer scraper.Close()

	compute := backend.New(cfg.Server.Compute)
	defer compute.Close()

	svc := aggregator.New(scraper, st, compute)
	apiHandler := api.New(svc, compute, cfg.Server)

	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", apiHandler)
	httpMux.Handle("/metrics", apiHandler)

	// The "/" catch-all serves index.html for any unknown path (SPA routing).
	if *uiDir != "" {
		fs := http.FileServer(http.Dir(*uiDir))
		httpMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			path := *uiDir + r.URL.Path
			if _, err := os.Stat(path); os.IsNotExist(err) {
				http.ServeFile(w, r, *uiDir+"/index.html")
				return
			}
			fs.ServeHTTP(w, r)
		})
		slog.Info("serving UI static files", "dir", *uiDir)
	}

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
	slog.Info("pibench-server shutting down")

	// Reruns may still be waiting on the compute backend.
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.Compute.Timeout+5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
