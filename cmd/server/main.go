package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"caretrail/internal/audit"
	audithandler "caretrail/internal/audit/handler"
	"caretrail/internal/audit/interceptor"
	auditmemory "caretrail/internal/audit/store/memory"
	auditpostgres "caretrail/internal/audit/store/postgres"
	"caretrail/internal/jwttoken"
	"caretrail/internal/notification"
	"caretrail/internal/notification/forwarder"
	notifhandler "caretrail/internal/notification/handler"
	notifmemory "caretrail/internal/notification/store/memory"
	notifpostgres "caretrail/internal/notification/store/postgres"
	"caretrail/internal/platform/config"
	"caretrail/internal/platform/httpserver"
	"caretrail/internal/platform/logger"
	"caretrail/internal/platform/metrics"
	"caretrail/internal/platform/middleware"
	"caretrail/internal/platform/postgres"
	"caretrail/internal/platform/redis"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.Development)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores: Postgres when configured, in-memory otherwise so the service
	// stays runnable in development without infrastructure.
	var (
		auditStore audit.Store
		notifStore notification.Store
	)
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		recordStore := auditpostgres.New(db)
		if err := recordStore.EnsureSchema(ctx); err != nil {
			log.Error("failed to ensure audit schema", "error", err)
			os.Exit(1)
		}
		alertStore := notifpostgres.New(db)
		if err := alertStore.EnsureSchema(ctx); err != nil {
			log.Error("failed to ensure notification schema", "error", err)
			os.Exit(1)
		}
		auditStore = recordStore
		notifStore = alertStore
	} else {
		log.Warn("DATABASE_URL not set, using in-memory stores")
		auditStore = auditmemory.New()
		notifStore = notifmemory.New()
	}

	rdb, err := redis.New(cfg.Redis())
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	var locker audit.Locker = audit.NewKeyedMutex()
	if rdb != nil {
		defer rdb.Close()
		locker = audit.NewRedisLocker(rdb.Client, 5*time.Second)
		log.Info("view aggregation lock backed by redis")
	}

	var brokers []string
	if cfg.KafkaBrokers != "" {
		brokers = strings.Split(cfg.KafkaBrokers, ",")
	}
	fwd, err := forwarder.New(ctx, brokers, cfg.KafkaTopic, log, m)
	if err != nil {
		log.Error("failed to connect to kafka", "error", err)
		os.Exit(1)
	}

	factory := notification.NewFactory(notifStore, cfg.NotificationTTL, log, m)
	sinks := []audit.CriticalSink{factory}
	if fwd != nil {
		defer fwd.Close()
		sinks = append(sinks, fwd)
		log.Info("critical records forwarded to kafka", "topic", cfg.KafkaTopic)
	}

	aggregator := audit.NewViewAggregator(auditStore, locker, cfg.ViewWindow, log, m)
	writer := audit.NewWriter(auditStore, log,
		audit.WithAggregator(aggregator),
		audit.WithSinks(sinks...),
		audit.WithMetrics(m),
	)
	queries := audit.NewQueryEngine(auditStore)
	retention := audit.NewRetentionManager(auditStore, writer, log, m)
	notifications := notification.NewService(notifStore, log, m)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "caretrail", "caretrail")

	selfAudit := interceptor.New(writer, log, map[string]interceptor.Rule{
		"GET /logs": {
			ActionType:  audit.ActionViewedLogs,
			Description: "Viewed audit logs",
			SuccessOnly: true,
		},
		"GET /export": {
			ActionType:  audit.ActionViewedLogs,
			Description: "Exported audit logs to CSV",
			SuccessOnly: true,
		},
	})

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ClientMetadata)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(jwtService, log))
		r.Use(selfAudit.Middleware)
		audithandler.New(queries, retention, writer, log).Register(r)
		notifhandler.New(notifications, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting caretrail", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := notifications.RunSweeper(ctx, cfg.SweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("caretrail stopped")
}
