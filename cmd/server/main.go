// Command server runs the allowlist eligibility gate: an HTTP front door
// backed by an in-memory bloom filter that shields the durable allowlist
// store from ineligible membership checks.
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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"allowgate/internal/gate/handler"
	"allowgate/internal/gate/metrics"
	"allowgate/internal/gate/notify"
	"allowgate/internal/gate/ports"
	"allowgate/internal/gate/rotation"
	"allowgate/internal/gate/service"
	"allowgate/internal/gate/store/allowlist"
	gatesync "allowgate/internal/gate/sync"
	"allowgate/internal/platform/config"
	"allowgate/internal/platform/httpserver"
	"allowgate/internal/platform/logger"
	"allowgate/internal/platform/postgres"
	platformredis "allowgate/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	store := allowlist.NewPostgres(db)

	// Redis is optional: with it, allowlist changes propagate across
	// instances via pub/sub; without it, each instance converges on its
	// poll interval.
	var notifier ports.ChangeNotifier
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		notifier = notify.NewRedis(redisClient.Client, notify.WithLogger(log))
		log.Info("change notifications over redis enabled")
	} else {
		notifier = notify.NewMemory()
	}

	mx := metrics.New(nil)
	ctl := rotation.New(nil)

	mgr, err := gatesync.New(store, ctl, gatesync.Config{
		TargetFalsePositiveRate: cfg.TargetFalsePositiveRate,
		ExpectedItemsFloor:      cfg.ExpectedItemsFloor,
		GrowthMargin:            cfg.GrowthMargin,
		FalsePositiveCeiling:    cfg.FalsePositiveCeiling,
		RebuildInterval:         cfg.RebuildInterval,
		SyncInterval:            cfg.SyncInterval,
		PageSize:                cfg.SyncPageSize,
		BackoffMin:              cfg.BackoffMin,
		BackoffMax:              cfg.BackoffMax,
	},
		gatesync.WithLogger(log),
		gatesync.WithNotifier(notifier),
		gatesync.WithMetrics(mx),
	)
	if err != nil {
		return err
	}

	log.Info("hydrating bloom filter from allowlist store")
	if err := mgr.InitialLoad(ctx); err != nil {
		return err
	}
	active := ctl.Active()
	log.Info("bloom filter ready",
		"items", active.Items(),
		"bits", active.BitCount(),
		"hashes", active.HashCount())

	svc, err := service.New(store, ctl,
		service.WithLogger(log),
		service.WithNotifier(notifier),
		service.WithMetrics(mx),
		service.WithConfirmTimeout(cfg.ConfirmTimeout),
	)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	handler.New(svc, log).Register(r)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := mgr.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting allowgate", "addr", cfg.Addr)
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

	return g.Wait()
}
