package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meter-reader/internal/audit"
	"meter-reader/internal/auth"
	"meter-reader/internal/config"
	"meter-reader/internal/observability/metrics"
	telemetryapp "meter-reader/internal/telemetry/application"
	telemetry "meter-reader/internal/telemetry/domain"
	"meter-reader/internal/telemetry/infrastructure/memory"
	telemetrypostgres "meter-reader/internal/telemetry/infrastructure/postgres"
	"meter-reader/internal/telemetry/interfaces/grpcapi"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	var (
		db          *sql.DB
		repo        telemetry.ReadingRepository
		serviceOpts []grpcapi.ServiceOption
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		repo = telemetrypostgres.NewReadingRepository(db)
		serviceOpts = append(serviceOpts, grpcapi.WithAuditLogger(audit.NewRepository(db)))
	} else {
		logger.Printf("DATABASE_URL not set, keeping readings in memory")
		repo = memory.NewReadingRepository()
	}

	metrics.Init(db, logger)

	issuer, err := auth.NewIssuer([]byte(cfg.JWTSecret), cfg.Users,
		auth.WithTokenTTL(cfg.TokenTTL), auth.WithLogger(logger))
	if err != nil {
		logger.Fatalf("issuer error: %v", err)
	}
	pipeline, err := telemetryapp.NewPipeline(repo, logger)
	if err != nil {
		logger.Fatalf("pipeline error: %v", err)
	}
	service, err := grpcapi.NewMeterService(issuer, pipeline, telemetryapp.NewDiagnosticsSink(logger), logger, serviceOpts...)
	if err != nil {
		logger.Fatalf("meter service error: %v", err)
	}
	policy := auth.NewDefaultPolicy(cfg.RequireDiagnosticsAuth())
	grpcServer := grpcapi.NewServer(service, auth.NewInterceptor([]byte(cfg.JWTSecret), policy), logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatalf("grpc listen error: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("grpc listening on %s", cfg.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
