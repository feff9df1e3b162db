package main

import (
	"context"
	"errors"
	"os"
	"time"

	"expensio/internal/amqp"
	"expensio/internal/cli"
	"expensio/internal/config"
	"expensio/internal/log"
	"expensio/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting expensio-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	audit := worker.NewAuditWorker(repo, logger)

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	err = amqpClient.ConsumeSessionEvents(ctx, audit.HandleSessionEvent)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
