package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"cdc-enrichment/internal/enrich"
	natsbus "cdc-enrichment/internal/nats"
	"cdc-enrichment/internal/processor"
)

func main() {
	// Setup logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)

	// Load configuration
	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Set log level from config
	if level, err := logrus.ParseLevel(config.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting CDC enrichment service...")

	// Initialize NATS subscriber for inbound CDC events
	subscriber, err := natsbus.NewSubscriber(
		config.NATS.URL,
		config.NATS.SubjectIn,
		config.NATS.QueueGroup,
		config.NATS.MaxReconnect,
		config.NATS.ReconnectWait,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create NATS subscriber: %v", err)
	}
	defer subscriber.Close()

	// Initialize NATS publisher for enriched events
	publisher, err := natsbus.NewPublisher(
		config.NATS.URL,
		config.NATS.SubjectOut,
		config.NATS.MaxReconnect,
		config.NATS.ReconnectWait,
		logger,
	)
	if err != nil {
		logger.Fatalf("Failed to create NATS publisher: %v", err)
	}
	defer publisher.Close()

	// Optional JavaScript post-transform
	transformer, err := processor.NewTransformer(config.Processor.Script, logger, publisher.GetConn())
	if err != nil {
		logger.Fatalf("Failed to create transformer: %v", err)
	}

	// Create the enrichment processor
	proc := processor.NewProcessor(
		enrich.NewEnricher(),
		subscriber,
		publisher,
		transformer,
		config.Function.Name,
		config.Function.Version,
		logger,
	)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start processing in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- proc.Start(ctx)
	}()

	// Wait for signal or error
	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v, shutting down...", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Errorf("Processor error: %v", err)
		}
	}

	logger.Info("CDC enrichment service stopped")
}
