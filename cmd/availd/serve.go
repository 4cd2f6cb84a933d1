package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/spf13/cobra"

	"rental-availability-backend/config"
	"rental-availability-backend/internal/api"
	"rental-availability-backend/internal/catalog"
	"rental-availability-backend/internal/catalogsync"
	"rental-availability-backend/internal/db"
	"rental-availability-backend/internal/domain"
	"rental-availability-backend/internal/feed"
	"rental-availability-backend/internal/index"
	"rental-availability-backend/internal/notification"
	"rental-availability-backend/internal/reservation"
	"rental-availability-backend/internal/store"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, hold reaper, booking feed and catalog sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			return serve(cfg, logger)
		},
	}
}

func newPublisher(ctx context.Context, cfg config.FeedConfig, logger *slog.Logger) (feed.Publisher, error) {
	switch cfg.Driver {
	case "amqp":
		return feed.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange, logger)
	case "redis":
		return feed.NewRedisPublisher(ctx, cfg.RedisURL, cfg.ChannelPrefix, logger)
	default:
		return feed.NewLogPublisher(logger), nil
	}
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("database initialized")

	appStore := store.NewGormStore(gormDB, logger)

	cached := catalog.NewCached(catalog.NewGormReader(gormDB), cfg.Catalog.CacheTTL)
	reader := catalog.NewGuarded(cached, breakerConfig(cfg.Catalog), logger)

	publisher, err := newPublisher(ctx, cfg.Feed, logger)
	if err != nil {
		return fmt.Errorf("failed to start booking feed: %w", err)
	}
	defer publisher.Close()

	dispatcher := feed.NewDispatcher(cfg.Feed.Workers, cfg.Feed.Buffer, appStore, publisher, logger)
	dispatcher.Start(ctx)

	engine := reservation.NewEngine(index.New(), reader, domain.SystemClock{}, engineConfig(cfg.Engine), logger)
	engine.WithSink(dispatcher)

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, logger)
		workerPool.Start(ctx)
		engine.WithNotifier(workerPool)
	} else {
		logger.Warn("VAPID keys are not configured; capacity-freed notifications are disabled")
	}

	occs, err := appStore.LoadActive(ctx)
	if err != nil {
		return err
	}
	if err := engine.Restore(occs); err != nil {
		return err
	}
	logger.Info("index rebuilt from storage", "occupancies", len(occs))

	engine.StartReaper(ctx, cfg.Engine.ReaperInterval)

	listingTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	listingCache := cache.New(listingTTL, 2*listingTTL)
	syncSvc := catalogsync.NewService(&cfg.CatalogSync, appStore, catalogsync.Refreshers{cached, listingCache}, logger)
	go syncSvc.Run(ctx)

	router := api.NewRouter(api.NewHandler(engine, gormDB, webpushOptions, logger), cfg.Server, listingCache)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received, stopping services")
	case err := <-serverErr:
		logger.Error("HTTP server failed", "error", err)
		cancel()
		dispatcher.Stop()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown", "error", err)
	}
	cancel()
	// Drain queued booking records before the publisher closes.
	dispatcher.Stop()

	logger.Info("server gracefully stopped")
	return nil
}
