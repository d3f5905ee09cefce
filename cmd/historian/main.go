// cmd/historian/main.go drains the game action queue from Redis into Postgres.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/samyarj/polyhoot/internal/cache"
	"github.com/samyarj/polyhoot/internal/config"
	"github.com/samyarj/polyhoot/internal/database"
	"github.com/samyarj/polyhoot/internal/historian"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dsn := cfg.Postgres.DSN()
	if dsn == "" {
		logger.Fatal("historian requires postgres (DATABASE_URL or PG_HOST)")
	}
	store, err := database.Connect(ctx, dsn)
	if err != nil {
		logger.Fatalf("postgres: %v", err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatalf("postgres schema: %v", err)
	}

	addr := cfg.Redis.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb, err := cache.ConnectRedis(ctx, addr, cfg.Redis.DB)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	svc := historian.NewService(cache.NewActionQueue(rdb, cfg.Redis.Queue), store, historian.Options{
		BatchSize:  cfg.Historian.BatchSize,
		FlushDelay: time.Duration(cfg.Historian.FlushIntervalMs) * time.Millisecond,
		Inactivity: time.Duration(cfg.Historian.InactivitySeconds) * time.Second,
		Logger:     logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Errorf("historian exited: %v", err)
		os.Exit(1)
	}
}
