package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meter-reader/internal/config"
	"meter-reader/internal/meterclient"
	"meter-reader/internal/meterrpc"
	"meter-reader/internal/observability/metrics"
	"meter-reader/internal/telemetry/adapters/generator"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.LoadClient()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	metrics.Init(nil, logger)

	conn, err := meterrpc.Dial(cfg.ServiceURL)
	if err != nil {
		logger.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	client := meterrpc.NewClient(conn)

	cache, err := meterclient.NewTokenCache(client, cfg.Username, cfg.Password, meterclient.WithCacheLogger(logger))
	if err != nil {
		logger.Fatalf("token cache error: %v", err)
	}
	driver, err := meterclient.NewDriver(client, generator.New(), cache, meterclient.DriverConfig{
		CustomerID:       cfg.CustomerID,
		Delay:            cfg.DelayInterval,
		DiagnosticsEvery: cfg.DiagnosticsEvery,
		BatchSize:        cfg.BatchSize,
		Notes:            cfg.Notes,
	}, logger)
	if err != nil {
		logger.Fatalf("driver error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("meter client for customer %d sending to %s every %s", cfg.CustomerID, cfg.ServiceURL, cfg.DelayInterval)
		return driver.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		g.Go(func() error {
			logger.Printf("metrics listening on %s", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Fatalf("client error: %v", err)
	}
	logger.Printf("meter client stopped after %d cycles", driver.CycleCount())
}
