package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taggate-io/taggate/server/internal/config"
	dbpkg "github.com/taggate-io/taggate/server/internal/db"
	"github.com/taggate-io/taggate/server/internal/httpapi"
	"github.com/taggate-io/taggate/server/internal/notify"
	"github.com/taggate-io/taggate/server/internal/taggate/service"
	sqlitestore "github.com/taggate-io/taggate/server/internal/taggate/store/sqlite"
	"github.com/taggate-io/taggate/server/internal/transport"
)

func main() {
	cfg := config.FromEnv()
	logger := log.New(os.Stdout, "taggate-server ", log.LstdFlags|log.LUTC)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := dbpkg.Open(ctx, dbpkg.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer database.Close()

	writer := dbpkg.NewWorker(database)
	defer writer.Close()

	if cfg.Env == "dev" {
		if err := dbpkg.SeedDev(ctx, database, dbpkg.SeedDevOptions{SeedTagIDs: cfg.SeedTagIDs}); err != nil {
			logger.Fatalf("seed dev: %v", err)
		}
	}

	credStore := sqlitestore.NewCredentialStore(database, writer)
	auditStore := sqlitestore.NewAuditStore(database, writer)

	hub := notify.NewHub(logger)

	tr, err := transport.New(transport.Config{
		ScanEndpoint:   cfg.ScanEndpoint,
		ResultEndpoint: cfg.ResultEndpoint,
		ScanTopic:      cfg.ScanTopic,
		ResultTopic:    cfg.ResultTopic,
	}, logger)
	if err != nil {
		logger.Fatalf("transport: %v", err)
	}

	coordinator := service.NewCoordinator(service.CoordinatorConfig{
		MaxEnrolled: cfg.MaxEnrolled,
		IdleTimeout: cfg.IdleTimeout,
	}, credStore, auditStore, tr, hub, logger)
	defer coordinator.Close()

	transportDone := make(chan struct{})
	go func() {
		defer close(transportDone)
		tr.Run(ctx, func(ctx context.Context, tagID string) {
			if _, err := coordinator.HandleScan(ctx, tagID); err != nil {
				logger.Printf("scan %q: %v", tagID, err)
			}
		})
	}()

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:        logger,
		Addr:          cfg.HTTPAddr,
		Coordinator:   coordinator,
		Hub:           hub,
		AuditPageSize: cfg.AuditPageSize,
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	<-transportDone
	tr.Close()
}
