package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"lambda-invoker/internal/bridge"
	"lambda-invoker/internal/config"
	"lambda-invoker/internal/invoker"
	"lambda-invoker/internal/observability"
	"lambda-invoker/internal/queue"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	observability.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger := observability.GetLogger()

	observability.WithFields(logrus.Fields{
		"brokers":   cfg.Kafka.Brokers,
		"topic":     cfg.Kafka.Topic,
		"group":     cfg.Kafka.GroupID,
		"client":    cfg.Kafka.Client,
		"transport": cfg.Invoker.Transport,
		"target":    target(cfg.Invoker),
	}).Info("🚀 Starting Lambda invoker")
	logger.Debugf("Configuration:\n%s", cfg)

	if !cfg.Kafka.AutoCommit() {
		logger.Warn("Commit mode is after-forward: offsets are committed only once each invocation attempt has finished")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader, err := queue.Open(ctx, cfg.Kafka.Client, queue.ReaderConfig{
		Brokers:           cfg.Kafka.Brokers,
		Topic:             cfg.Kafka.Topic,
		GroupID:           cfg.Kafka.GroupID,
		StartFromEarliest: cfg.Kafka.StartFromEarliest(),
		AutoCommit:        cfg.Kafka.AutoCommit(),
		CommitInterval:    cfg.Kafka.CommitInterval,
		Logger:            observability.NewClientLogger(cfg.Logging.Level),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Kafka")
	}
	defer func() {
		if err := reader.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close Kafka reader")
		}
	}()

	forwarder, err := invoker.New(ctx, cfg.Invoker, cfg.Kafka.Brokers)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create invoker")
	}

	b := bridge.New(bridge.Config{
		Reader:       reader,
		Forwarder:    forwarder,
		Logger:       logger,
		FailurePause: cfg.Invoker.FailurePause,
		// INVOKER_FAILURE_PAUSE=0 switches the pause off.
		DisableFailurePause: cfg.Invoker.FailurePause == 0,
	})

	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		// The health check has nothing to watch once the bridge is done.
		defer cancel()
		return b.Run(gctx)
	})
	if cfg.Kafka.HealthCheckInterval > 0 {
		checker := queue.NewBrokerChecker(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		g.Go(func() error {
			checker.HealthCheckLoop(gctx, cfg.Kafka.HealthCheckInterval)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Lambda invoker stopped with error")
		return
	}
	logger.Info("Lambda invoker stopped")
}

func target(cfg config.InvokerConfig) string {
	if cfg.Transport == config.TransportLambda {
		if cfg.Endpoint != "" {
			return cfg.FunctionName + "@" + cfg.Endpoint
		}
		return cfg.FunctionName
	}
	return cfg.URL
}
