// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/samyarj/polyhoot/internal/auth"
	"github.com/samyarj/polyhoot/internal/bus"
	"github.com/samyarj/polyhoot/internal/cache"
	"github.com/samyarj/polyhoot/internal/config"
	"github.com/samyarj/polyhoot/internal/database"
	"github.com/samyarj/polyhoot/internal/game"
	"github.com/samyarj/polyhoot/internal/handlers"
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

	ttl, _ := cfg.TokenTTL()
	tokens, err := newTokenIssuer(cfg, ttl)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	var hooks game.Hooks
	var quizzes game.QuizSource

	if dsn := cfg.Postgres.DSN(); dsn != "" {
		store, err := database.Connect(ctx, dsn)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatalf("postgres schema: %v", err)
		}
		hooks.Recorder = store
		quizzes = store
		logger.Info("connected to postgres")
	} else {
		logger.Warn("postgres not configured; quizzes must be sent inline and games are not recorded")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := cache.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		hooks.Actions = cache.NewActionQueue(rdb, cfg.Redis.Queue)
		logger.Infof("logging game actions to redis queue %s", cfg.Redis.Queue)
	}

	if cfg.NATS.URL != "" {
		nc, err := bus.Connect(cfg.NATS.URL, logger)
		if err != nil {
			logger.Fatalf("nats: %v", err)
		}
		pub := bus.NewPublisher(nc, cfg.NATS.SubjectPrefix, logger)
		defer pub.Close()
		hooks.Sink = pub
		logger.Infof("mirroring room events to NATS under %s", cfg.NATS.SubjectPrefix)
	}

	registry := game.NewRegistry(cfg.GameSettings(), hooks, logger)

	gs := handlers.NewGameServer(registry, tokens, logger)
	gs.Quizzes = quizzes
	gs.PublicURL = cfg.Server.PublicURL
	gs.AllowedOrigins = cfg.Server.AllowedOrigins

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handlers.NewRouter(gs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Running on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		registry.RunReaper(gctx, cfg.ReapInterval())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		registry.CloseAll("server_shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Errorf("server exited: %v", err)
		os.Exit(1)
	}
}

func newTokenIssuer(cfg config.Config, ttl time.Duration) (*auth.TokenIssuer, error) {
	if cfg.Auth.PrivateKeyPath != "" && cfg.Auth.PublicKeyPath != "" {
		return auth.NewTokenIssuerFromPath(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath, ttl)
	}
	logrus.Warn("no JWT key pair configured, organizer tokens will not survive a restart")
	return auth.NewTokenIssuer(ttl)
}
