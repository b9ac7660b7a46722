package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendlog/internal/amqp"
	"spendlog/internal/auth"
	"spendlog/internal/cache"
	"spendlog/internal/categorize"
	"spendlog/internal/cli"
	apphttp "spendlog/internal/http"
	"spendlog/internal/log"
	"spendlog/internal/parser"
	"spendlog/internal/services"
)

const (
	viewCacheSize     = 1000
	postsPerMinute    = 60
	shutdownTimeout   = 30 * time.Second
	cacheSweepEvery   = time.Minute
	limiterSweepEvery = 5 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, nil)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	store := cli.OpenStore(ctx, logger, cfg)
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Error("Failed to close storage", log.FieldError, err)
		}
	}()

	model := cli.NewModel(ctx, logger, cfg)

	views := cache.NewLRUCache[any](viewCacheSize, cfg.CacheTTL)
	opts := []services.Option{services.WithViewCache(views)}

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// Expenses are still stored; only the mirror falls behind.
			logger.Error("Failed to connect to AMQP, events disabled", log.FieldError, err)
		} else {
			defer amqpClient.Close()
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("AMQP publisher configured", "exchange", cfg.AMQPExchange)
		}
	}

	expenses := services.NewExpenseService(
		parser.New(model, logger),
		categorize.New(model, logger),
		store.Store,
		logger,
		opts...,
	)
	authSvc := auth.NewService(store.Store, []byte(cfg.JWTSecret), cfg.TokenTTL, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		CORSOrigins:       cfg.CORSOrigins,
		RequestsPerMinute: postsPerMinute,
		Logger:            logger,
	}, expenses, authSvc, store.Store)

	cacheManager := cache.NewManager(logger)
	cacheManager.Register(views)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting spendlog server", "port", cfg.Port, "backend", cfg.DataBackend, log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return cacheManager.Run(gctx, cacheSweepEvery) })
	g.Go(func() error { return srv.RateLimiter().Run(gctx, limiterSweepEvery) })

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
