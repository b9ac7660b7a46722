package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendlog/internal/amqp"
	"spendlog/internal/cache"
	"spendlog/internal/cli"
	"spendlog/internal/config"
	"spendlog/internal/log"
	"spendlog/internal/sheets"
	gsheet "spendlog/internal/sheets/google"
	mem "spendlog/internal/sheets/memory"
	"spendlog/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	writer := newWriter(ctx, logger, cfg)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirror := worker.NewMirrorWorker(writer, logger)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(mirror.Seen())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting mirror worker", "queue", cfg.AMQPQueue, log.FieldOperation, log.OpStartup)
		err := amqpClient.ConsumeExpenseCreated(gctx, mirror.HandleExpenseCreated)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error { return cacheManager.Run(gctx, 10*time.Minute) })

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func newWriter(ctx context.Context, logger *log.Logger, cfg *config.Config) sheets.ExpenseWriter {
	if !cfg.MirrorEnabled() {
		logger.Warn("GOOGLE_SPREADSHEET_ID not set, mirroring to memory only")
		return mem.New()
	}
	opts, err := gsheet.CredentialOptions(cfg.GoogleServiceAccountFile, cfg.GoogleServiceAccountJSON)
	if err != nil {
		logger.Error("Invalid Google credentials", log.FieldError, err)
		os.Exit(1)
	}
	client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, opts...)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Mirroring to Google Sheets", "sheet", cfg.GoogleSheetName)
	return client
}
