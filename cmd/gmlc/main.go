package main

import (
	"context"
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

	"github.com/openlcs/gmlc/internal/api"
	"github.com/openlcs/gmlc/internal/cdr"
	"github.com/openlcs/gmlc/internal/cdrstore"
	"github.com/openlcs/gmlc/internal/config"
	"github.com/openlcs/gmlc/internal/engine"
	"github.com/openlcs/gmlc/internal/mapnet"
	"github.com/openlcs/gmlc/internal/metrics"
	"github.com/openlcs/gmlc/internal/slr"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting gmlc",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"gmlc_gt", cfg.GMLCAddress,
	)

	// CDR line sink.
	sink, err := cdr.OpenSink(cfg.CDRFile)
	if err != nil {
		slog.Error("failed to open cdr sink", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	// CDR store: PostgreSQL when a DSN is configured, embedded SQLite
	// otherwise.
	var store cdrstore.Store
	if cfg.CDRDSN != "" {
		store, err = cdrstore.OpenPostgres(cfg.CDRDSN)
	} else {
		store, err = cdrstore.OpenSQLite(cfg.DataDir)
	}
	if err != nil {
		slog.Error("failed to open cdr store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Signalling collaborator. The in-process simulator answers MAP
	// operations from the configured subscriber profile table.
	var profiles []mapnet.Profile
	if cfg.SimProfiles != "" {
		profiles, err = mapnet.LoadProfiles(cfg.SimProfiles)
		if err != nil {
			slog.Error("failed to load simulator profiles", "error", err)
			os.Exit(1)
		}
		slog.Info("simulator profiles loaded", "count", len(profiles))
	}
	conn := mapnet.NewSimulator(profiles, logger)
	defer conn.Close()

	// Deferred location report registry and callback delivery.
	registry := slr.NewRegistry(logger)
	notifier := slr.NewNotifier(registry, cfg.CallbackTimeoutDuration(), logger)

	// Orchestration engine.
	eng := engine.New(cfg, conn, registry, notifier, sink, store, logger)
	eng.Start()
	defer eng.Close()

	// Prometheus metrics.
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(metrics.NewCollector(eng, registry, store, time.Now()))
	metricsHandler := promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})

	// HTTP server using the api package.
	handler := api.NewServer(cfg, eng, store, metricsHandler)
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown: drain HTTP first so no new requests arrive, then
	// fail over whatever dialogs are still in flight.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("gmlc stopped")
}
