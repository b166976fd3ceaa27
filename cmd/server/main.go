package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"casegate/internal/classifier/artifact"
	"casegate/internal/intake/handler"
	"casegate/internal/intake/metrics"
	"casegate/internal/intake/service"
	"casegate/internal/intake/store"
	jwttoken "casegate/internal/jwt_token"
	"casegate/internal/platform/config"
	"casegate/internal/platform/httpserver"
	"casegate/internal/platform/logger"
	platformmetrics "casegate/internal/platform/metrics"
	"casegate/internal/platform/postgres"
	"casegate/internal/platform/ratelimit"
	"casegate/internal/platform/redis"
	audit "casegate/pkg/platform/audit"
	"casegate/pkg/platform/audit/publisher"
	"casegate/pkg/platform/audit/publishers/ops"
	auditkafka "casegate/pkg/platform/audit/store/kafka"
	auditmemory "casegate/pkg/platform/audit/store/memory"
	auditpostgres "casegate/pkg/platform/audit/store/postgres"
	authmw "casegate/pkg/platform/middleware/auth"
	"casegate/pkg/platform/middleware/metadata"
	request "casegate/pkg/platform/middleware/request"
	"casegate/pkg/platform/middleware/requesttime"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownGrace = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("casegate stopped", "error", err)
		os.Exit(1)
	}
}

type intakeStore interface {
	service.Store
	store.CrisisSeeder
	handler.HealthChecker
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	var (
		db *sql.DB
		st intakeStore
	)
	if cfg.DatabaseURL != "" {
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		st = store.NewPostgres(db)
	} else {
		log.Warn("DATABASE_URL not set; records are kept in memory only")
		st = store.NewInMemory()
	}

	crises, err := store.ParseCrisisList(cfg.SeedCrises)
	if err != nil {
		return fmt.Errorf("parse SEED_CRISES: %w", err)
	}
	seeded, err := store.SeedCrises(ctx, st, crises)
	if err != nil {
		return fmt.Errorf("seed crises: %w", err)
	}
	if seeded > 0 {
		log.Info("seeded crises", "count", seeded)
	}

	var modelStore artifact.Store
	switch cfg.Model.Store {
	case config.ModelStoreRedis:
		modelStore = artifact.NewRedisStore(redisClient.Client, artifact.WithKey(cfg.Model.RedisKey))
	default:
		modelStore = artifact.NewFileStore(cfg.Model.Path)
	}
	model, meta, err := artifact.Load(ctx, modelStore)
	if err != nil {
		return fmt.Errorf("load classifier: %w", err)
	}
	log.Info("classifier loaded",
		"store", cfg.Model.Store,
		"trained_at", meta.TrainedAt,
		"samples", model.Samples(),
		"neighbors", model.Neighbors(),
		"label_agreement", meta.LabelAgreement,
	)

	registry := platformmetrics.NewRegistry(version)
	intakeMetrics := metrics.New(registry)

	handlerOpts := []handler.Option{
		handler.WithLogger(log),
		handler.WithMetrics(intakeMetrics),
		handler.WithGatherer(registry),
		handler.WithHealthCheck("store", st),
	}
	if redisClient != nil {
		handlerOpts = append(handlerOpts, handler.WithHealthCheck("redis", redisClient))
	}

	var sink audit.Store
	switch cfg.Audit.Sink {
	case config.AuditSinkKafka:
		kafkaSink, err := auditkafka.New(cfg.Audit.Brokers, cfg.Audit.Topic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		handlerOpts = append(handlerOpts, handler.WithHealthCheck("kafka", handler.HealthCheckFunc(kafkaSink.Ping)))
	case config.AuditSinkPostgres:
		if db == nil {
			return fmt.Errorf("postgres audit sink requires DATABASE_URL")
		}
		sink = auditpostgres.New(db)
	default:
		sink = auditmemory.NewInMemoryStore()
	}
	auditPublisher := publisher.NewPublisher(sink,
		publisher.WithAsyncBuffer(cfg.Audit.Buffer),
		publisher.WithLogger(log),
		publisher.WithMetrics(ops.NewMetrics(registry)),
	)
	defer auditPublisher.Close()

	svc := service.New(st, model,
		service.WithLogger(log),
		service.WithMetrics(intakeMetrics),
		service.WithAuditPublisher(auditPublisher),
	)

	if cfg.Auth.Enabled() {
		jwtService := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
		handlerOpts = append(handlerOpts, handler.WithAuth(
			authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log),
		))
	}
	var limiter *ratelimit.SlidingWindow
	if cfg.Connect.Limit > 0 {
		limiter = ratelimit.NewSlidingWindow(cfg.Connect.Limit, cfg.Connect.Window)
		handlerOpts = append(handlerOpts, handler.WithConnectLimit(ratelimit.Middleware(limiter, log)))
	}
	intakeHandler := handler.New(svc, handlerOpts...)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	intakeHandler.Register(r)

	srv := httpserver.New(cfg.Addr, r)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting casegate", "addr", cfg.Addr, "version", version, "audit_sink", cfg.Audit.Sink)
		return httpserver.Serve(gctx, srv, shutdownGrace)
	})
	if limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Connect.Window)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					limiter.Sweep()
				}
			}
		})
	}
	err = g.Wait()
	log.Info("casegate shut down")
	return err
}
