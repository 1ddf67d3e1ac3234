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

	"github.com/Clark-Hu/comment-ratings/internal/config"
	httpserver "github.com/Clark-Hu/comment-ratings/internal/http"
	"github.com/Clark-Hu/comment-ratings/internal/maintenance"
	"github.com/Clark-Hu/comment-ratings/internal/ratings"
	"github.com/Clark-Hu/comment-ratings/internal/registry"
	"github.com/Clark-Hu/comment-ratings/internal/repository"
	"github.com/Clark-Hu/comment-ratings/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := log.New(os.Stdout, "[ratings-api] ", log.LstdFlags|log.Lshortfile)

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer st.Close()

	if cfg.DBAutoMigrate {
		if err := st.Migrate(dbCtx); err != nil {
			log.Fatalf("migrate database: %v", err)
		}
	}

	reg, err := registry.New(cfg.VotesPerIP)
	if err != nil {
		log.Fatalf("register rating fields: %v", err)
	}

	repo := repository.New(st)
	svc := ratings.NewService(repo.Votes, logger)

	if cfg.RecomputeSchedule != "" {
		scheduler := maintenance.NewScheduler(svc, reg.Entities(), maintenance.Options{
			Timeout: 10 * time.Minute,
			Logger:  logger,
		})
		if err := scheduler.Start(cfg.RecomputeSchedule); err != nil {
			log.Fatalf("start recompute scheduler: %v", err)
		}
		defer scheduler.Stop()
	}

	server := httpserver.New(cfg, st, repo, svc, reg, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			log.Printf("server error: %v", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("graceful shutdown error: %v", err)
	}
}
