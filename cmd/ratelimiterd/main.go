// Command ratelimiterd wires the storage, audit, and metrics adapters
// into the rate-limit service and serves both transport surfaces
// (spec.md §4.7 / C7).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pallabcodes/distributed-ratelimiter/audit"
	auditkafka "github.com/pallabcodes/distributed-ratelimiter/audit/kafka"
	auditmemory "github.com/pallabcodes/distributed-ratelimiter/audit/memory"
	"github.com/pallabcodes/distributed-ratelimiter/config"
	"github.com/pallabcodes/distributed-ratelimiter/metrics/prom"
	"github.com/pallabcodes/distributed-ratelimiter/service"
	"github.com/pallabcodes/distributed-ratelimiter/storage"
	storagememory "github.com/pallabcodes/distributed-ratelimiter/storage/memory"
	storagepostgres "github.com/pallabcodes/distributed-ratelimiter/storage/postgres"
	storageredis "github.com/pallabcodes/distributed-ratelimiter/storage/redis"
	"github.com/pallabcodes/distributed-ratelimiter/transport/httpapi"
	"github.com/pallabcodes/distributed-ratelimiter/transport/rpcapi"
)

func main() {
	if err := run(); err != nil {
		slog.Error("ratelimiterd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	resolver, err := config.NewResolver(cfg)
	if err != nil {
		return err
	}

	store, err := buildStorage(cfg)
	if err != nil {
		return err
	}

	publisher, err := buildAudit(cfg)
	if err != nil {
		return err
	}

	recorder := prom.New(prometheus.DefaultRegisterer)

	limiter := service.New(service.Options{
		Resolver:        resolver,
		Storage:         store,
		Audit:           publisher,
		Metrics:         recorder,
		FailOpen:        cfg.FailOpen,
		RequestDeadline: cfg.RequestDeadline,
		CASMaxAttempts:  cfg.CASMaxAttempts,
		AuditQueueSize:  cfg.AuditQueueSize,
		AuditWorkers:    cfg.AuditWorkers,
	})
	defer limiter.Close()

	httpSrv := httpapi.NewServer(limiter)
	mux := http.NewServeMux()
	mux.Handle("/", httpSrv.Router(cfg.RequestDeadline))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	rpcSvc := rpcapi.NewRateLimiterService(limiter, cfg.RequestDeadline)
	rpcServer, err := rpcapi.Listen(cfg.RPCAddr, rpcSvc)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	go func() {
		slog.Info("rpc server listening", "addr", rpcServer.Addr().String())
		rpcServer.Serve()
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	_ = rpcServer.Close()
	_ = store.Close()

	return nil
}

func buildStorage(cfg config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case "redis":
		return storageredis.New(storageredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "postgres":
		return storagepostgres.New(storagepostgres.Config{ConnString: cfg.PostgresDSN})
	case "memory", "":
		return storagememory.New(), nil
	default:
		return nil, errors.New("ratelimiterd: unknown STORAGE_BACKEND: " + cfg.StorageBackend)
	}
}

func buildAudit(cfg config.Config) (audit.Publisher, error) {
	switch cfg.AuditBackend {
	case "kafka":
		return auditkafka.New(auditkafka.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
	case "memory", "":
		return auditmemory.New(), nil
	default:
		return nil, errors.New("ratelimiterd: unknown AUDIT_BACKEND: " + cfg.AuditBackend)
	}
}
