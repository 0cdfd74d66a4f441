package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/foldedspace/arena-server/config"
	"github.com/foldedspace/arena-server/server"
	"github.com/foldedspace/arena-server/telemetry"
)

// main is the host binary spec §6 carves out: it owns environment/CLI
// parsing, process exit codes, and wiring the core's two HTTP surfaces. The
// core itself (config, server, telemetry packages aside) never touches the
// environment.
func main() {
	log := telemetry.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	gameServer := server.NewServer(cfg, log, metrics)
	endpoint := server.NewEndpoint(cfg, log, gameServer, metrics,
		func() { metrics.ActiveConnections.Inc() },
		func() { metrics.ActiveConnections.Dec() },
	)

	simCtx, cancelSim := context.WithCancel(context.Background())
	defer cancelSim()
	go gameServer.Run(simCtx)

	mux := http.NewServeMux()
	mux.Handle(cfg.UpgradePath, endpoint)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	httpSrv := &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	bindErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.BindAddr).Str("path", cfg.UpgradePath).Msg("listening")
		bindErr <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-bindErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to bind listener")
		}
	case sig := <-sigCh:
		log.Info().Stringer("signal", sig).Msg("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()

		// Accept loop stops and in-flight upgrades drain first (spec §5).
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(ctx)
		}

		// Then the simulation finishes its current tick and exits.
		gameServer.Shutdown()
	}

	log.Info().Msg("server stopped")
	os.Exit(0)
}
