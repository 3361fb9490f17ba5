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

	"golang.org/x/sync/errgroup"

	govconfig "teagate/internal/governance/config"
	"teagate/internal/governance/handler"
	"teagate/internal/governance/metrics"
	govmiddleware "teagate/internal/governance/middleware"
	"teagate/internal/governance/ports"
	adminsvc "teagate/internal/governance/service/admin"
	"teagate/internal/governance/service/admission"
	"teagate/internal/governance/service/credits"
	"teagate/internal/governance/service/quota"
	"teagate/internal/governance/service/ratelimit"
	"teagate/internal/governance/service/referral"
	"teagate/internal/governance/store/counter"
	"teagate/internal/governance/store/override"
	httpapi "teagate/internal/http"
	jwttoken "teagate/internal/jwt_token"
	"teagate/internal/platform/audit"
	"teagate/internal/platform/config"
	"teagate/internal/platform/httpserver"
	"teagate/internal/platform/logger"
	"teagate/internal/platform/postgres"
	"teagate/internal/platform/redis"
)

// main wires the stores, the governance services, and the HTTP surface,
// then runs the server until a shutdown signal arrives. Business logic
// lives in internal/governance.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Counter store: Redis when configured, in-memory otherwise.
	var counters ports.CounterStore
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		fatal(log, "redis connection failed", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		counters = counter.NewRedisStore(redisClient.Client)
		log.Info("using redis counter store")
	} else {
		counters = counter.NewMemoryStore()
		log.Warn("REDIS_URL not set, using in-memory counter store")
	}

	// Override store: Postgres when configured, in-memory otherwise.
	var overrides ports.OverrideStore
	pool, err := postgres.NewPool(ctx, cfg.PostgresURL)
	if err != nil {
		fatal(log, "postgres connection failed", err)
	}
	if pool != nil {
		defer pool.Close()
		overrides = override.NewPostgres(pool)
		log.Info("using postgres override store")
	} else {
		overrides = override.NewMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory override store")
	}

	// Audit sink: Kafka when configured, in-memory otherwise.
	var auditStore audit.Store
	if cfg.KafkaBrokers != "" {
		kafkaStore, err := audit.NewKafkaStore(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			fatal(log, "kafka connection failed", err)
		}
		defer kafkaStore.Close()
		auditStore = kafkaStore
		log.Info("streaming audit events to kafka", "topic", cfg.AuditTopic)
	} else {
		auditStore = audit.NewMemoryStore()
	}
	auditPublisher := audit.NewPublisher(auditStore)

	govCfg := govconfig.DefaultConfig()
	m := metrics.New()

	rateSvc, err := ratelimit.New(counters, overrides,
		ratelimit.WithLogger(log),
		ratelimit.WithConfig(govCfg),
		ratelimit.WithMetrics(m),
		ratelimit.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		fatal(log, "build rate limit service", err)
	}

	quotaSvc, err := quota.New(counters, overrides,
		quota.WithLogger(log),
		quota.WithConfig(govCfg),
		quota.WithMetrics(m),
		quota.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		fatal(log, "build quota service", err)
	}

	creditSvc, err := credits.New(counters,
		credits.WithLogger(log),
		credits.WithMetrics(m),
		credits.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		fatal(log, "build credits service", err)
	}

	referralSvc, err := referral.New(counters, creditSvc,
		referral.WithLogger(log),
		referral.WithConfig(govCfg),
		referral.WithMetrics(m),
		referral.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		fatal(log, "build referral service", err)
	}

	admissionSvc, err := admission.New(rateSvc, quotaSvc, creditSvc,
		admission.WithLogger(log),
		admission.WithConfig(govCfg),
	)
	if err != nil {
		fatal(log, "build admission service", err)
	}

	adminSvc, err := adminsvc.New(overrides, quotaSvc, creditSvc,
		adminsvc.WithLogger(log),
		adminsvc.WithConfig(govCfg),
		adminsvc.WithAuditPublisher(auditPublisher),
	)
	if err != nil {
		fatal(log, "build admin service", err)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "teagate", "teagate-api")
	jwtValidator := jwttoken.NewMiddlewareAdapter(jwtService)

	router := httpapi.NewRouter(httpapi.Deps{
		Logger:       log,
		Governance:   govmiddleware.New(admissionSvc, log),
		Handler:      handler.New(referralSvc, adminSvc, jwtValidator, cfg.AdminToken, log),
		JWTValidator: jwtValidator,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting teagate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		fatal(log, "server error", err)
	}
	log.Info("shutdown complete")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
