package main

import (
	"context"
	"errors"

	"moviments/internal/amqp"
	"moviments/internal/backend"
	"moviments/internal/cli"
	"moviments/internal/ledger"
	applog "moviments/internal/log"
	"moviments/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.QueueEnabled() {
		cli.Fatal(logger, "Worker cannot start", backend.ErrQueueRequired)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	st, err := backend.NewFactory(logger.Logger).CreateStore(ctx, cfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize record store", err, "backend", cfg.DataBackend)
	}

	led, err := ledger.Open(cfg.SQLiteDBPath)
	if err != nil {
		cli.Fatal(logger, "Failed to open ledger", err, "path", cfg.SQLiteDBPath)
	}
	defer led.Close()

	queue, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer queue.Close()

	w := worker.NewSyncWorker(led, st, cfg.SyncBatchSize)

	logger.Info("Performing startup sync check", applog.FieldOperation, applog.OpStartup)
	if err := w.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	if err := w.StartSchedule(ctx, cfg.SyncSchedule, nil); err != nil {
		cli.Fatal(logger, "Failed to schedule sync sweep", err, "schedule", cfg.SyncSchedule)
	}

	logger.Info("Starting moviments-worker", "queue", cfg.AMQPQueue, "backend", cfg.DataBackend)
	err = queue.ConsumeRecordSync(ctx, w.HandleSyncMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
	}

	logger.Info("Shutting down worker")
	w.Stop(cfg.ShutdownTimeout)
	logger.Info("Worker shutdown complete")
}
