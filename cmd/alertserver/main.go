package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/citypulse/viewport-alert-cache/internal/cache"
	"github.com/citypulse/viewport-alert-cache/internal/cache/memstore"
	"github.com/citypulse/viewport-alert-cache/internal/cache/redisstore"
	"github.com/citypulse/viewport-alert-cache/internal/config"
	"github.com/citypulse/viewport-alert-cache/internal/fallback"
	"github.com/citypulse/viewport-alert-cache/internal/invalidation/kafkaconsumer"
	"github.com/citypulse/viewport-alert-cache/internal/logger"
	"github.com/citypulse/viewport-alert-cache/internal/observability"
	"github.com/citypulse/viewport-alert-cache/internal/query"
	"github.com/citypulse/viewport-alert-cache/internal/router"
	"github.com/citypulse/viewport-alert-cache/internal/server"
	"github.com/citypulse/viewport-alert-cache/internal/service"
	"github.com/citypulse/viewport-alert-cache/internal/source/mongostore"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = strings.TrimSpace(*addrFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "alertserver",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting alertserver",
		"addr", cfg.Addr,
		"version", Version,
		"cache_backend", cfg.CacheBackend,
		"mongo_db", cfg.MongoDB)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	cli, err := mongostore.Connect(connectCtx, cfg.MongoURI)
	cancel()
	if err != nil {
		appLog.Error("mongo connect failed", "err", err)
		return 1
	}
	defer func() { _ = cli.Disconnect(context.Background()) }()

	db := cli.Database(cfg.MongoDB)
	events := mongostore.NewEventSource(db.Collection(cfg.EventsCollection))
	requests := mongostore.NewRequestSource(db.Collection(cfg.RequestsCollection))

	var store cache.Store
	switch cfg.CacheBackend {
	case "redis":
		rs, err := redisstore.New(ctx, cfg.RedisAddr, cfg.CacheOpTimeout)
		if err != nil {
			appLog.Error("redis store init failed", "err", err)
			return 1
		}
		defer func() { _ = rs.Close() }()
		store = rs
	default:
		store = memstore.New(cfg.CacheMaxAge)
	}

	engine := query.New(appLog, events, requests,
		query.WithEventShare(cfg.EventShare),
		query.WithOverFetch(cfg.OverFetch),
		query.WithTimeout(cfg.SourceTimeout),
	)
	fb := fallback.New(engine, cfg.FallbackFetchLimit, cfg.FallbackCap, cfg.FallbackMinSeverity)

	svc := service.New(appLog, store, engine, fb, service.Config{
		TTLRecent:      cfg.TTLRecent,
		TTLHistorical:  cfg.TTLHistorical,
		RecentLookback: cfg.RecentLookback,
		DefaultLimit:   cfg.DefaultLimit,
		MaxLimit:       cfg.MaxLimit,
	})
	handlers := router.New(appLog, svc, cfg.MaxLimit)

	if cfg.Invalidation.Enabled {
		consumer, err := kafkaconsumer.New(kafkaconsumer.Config{
			Brokers:     strings.Split(cfg.Invalidation.Brokers, ","),
			Topic:       cfg.Invalidation.Topic,
			GroupID:     cfg.Invalidation.GroupID,
			MinInterval: cfg.Invalidation.MinInterval,
		}, appLog, store)
		if err != nil {
			appLog.Error("invalidation consumer init failed", "err", err)
			return 1
		}
		go func() {
			if err := consumer.Start(ctx); err != nil {
				appLog.Error("invalidation consumer exited", "err", err)
			}
		}()
	}

	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.MetricsPath, observability.Handler())
		msrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Printf("metrics: listening on %s%s", cfg.MetricsAddr, cfg.MetricsPath)
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server exited: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = msrv.Shutdown(shutdownCtx)
		}()
	}

	if err := server.Run(ctx, cfg, appLog, handlers); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
