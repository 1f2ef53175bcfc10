// Package bridge runs the read-forward loop between the queue and the
// function endpoint.
package bridge

import (
	"context"
	"errors"
	"time"

	"lambda-invoker/internal/invoker"
	"lambda-invoker/internal/observability"
	"lambda-invoker/internal/queue"
	"lambda-invoker/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultFailurePause = 2 * time.Second
	readErrorPause      = 1 * time.Second
	ackTimeout          = 10 * time.Second
)

type Config struct {
	Reader    queue.Reader
	Forwarder invoker.Forwarder
	Metrics   observability.MetricsCollector
	Logger    *logrus.Logger
	// FailurePause is slept after every TransportFailed outcome. Zero or
	// negative means DefaultFailurePause.
	FailurePause time.Duration
	// DisableFailurePause turns the pause off entirely.
	DisableFailurePause bool
}

// Bridge forwards every delivery exactly once, in the order read.
type Bridge struct {
	reader       queue.Reader
	forwarder    invoker.Forwarder
	metrics      observability.MetricsCollector
	logger       *logrus.Logger
	failurePause time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Bridge {
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewInMemoryMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.GetLogger()
	}
	switch {
	case cfg.DisableFailurePause:
		cfg.FailurePause = 0
	case cfg.FailurePause <= 0:
		cfg.FailurePause = DefaultFailurePause
	}

	return &Bridge{
		reader:       cfg.Reader,
		forwarder:    cfg.Forwarder,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		failurePause: cfg.FailurePause,
		sleep:        sleepContext,
	}
}

// Run consumes until ctx is cancelled or the reader is closed. Per-message
// failures are logged and never returned.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("Bridge started, waiting for messages")
	defer b.logSummary()

	for {
		delivery, err := b.reader.Next(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				b.logger.Info("Bridge stopping")
				return nil
			}
			b.logger.WithError(err).Error("Failed to read message")
			if err := b.sleep(ctx, readErrorPause); err != nil {
				return nil
			}
			continue
		}

		if err := b.handle(ctx, delivery); err != nil {
			return nil
		}
	}
}

// handle forwards one delivery and acks it. It returns an error only when
// ctx was cancelled during the failure pause.
func (b *Bridge) handle(ctx context.Context, delivery *queue.Delivery) error {
	msg := delivery.Message
	b.metrics.IncReceived()

	entry := b.logger.WithFields(logrus.Fields{
		"invocation_id": uuid.NewString(),
		"topic":         msg.Topic,
		"partition":     msg.Partition,
		"offset":        msg.Offset,
	})
	if id := msg.Headers[models.HeaderMessageID]; id != "" {
		entry = entry.WithField("message_id", id)
	}
	entry.WithField("payload", string(msg.Value)).Info("Received message")

	res := b.forwarder.Forward(ctx, msg)
	entry = entry.WithFields(logrus.Fields{
		"outcome":     res.Outcome.String(),
		"duration_ms": res.Duration.Milliseconds(),
	})

	var pauseErr error
	switch res.Outcome {
	case invoker.Delivered:
		b.metrics.IncDelivered()
		entry.WithFields(logrus.Fields{
			"status": res.StatusCode,
			"body":   res.Body,
		}).Info("Invocation delivered")

	case invoker.Rejected:
		b.metrics.IncRejected()
		fields := logrus.Fields{"status": res.StatusCode, "body": res.Body}
		if res.Err != nil {
			fields[logrus.ErrorKey] = res.Err
		}
		entry.WithFields(fields).Warn("Invocation rejected, not retrying")

	case invoker.TransportFailed:
		b.metrics.IncTransportFailed()
		entry.WithError(res.Err).
			WithField("pause", b.failurePause.String()).
			Error("Invocation failed, message dropped")
		pauseErr = b.sleep(ctx, b.failurePause)
	}

	// The ack runs even if the pause was interrupted: the attempt is over.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := delivery.Ack(ackCtx); err != nil {
		b.metrics.IncCommitFailed()
		entry.WithError(err).Error("Failed to commit offset")
	}

	return pauseErr
}

func (b *Bridge) logSummary() {
	fields := logrus.Fields{}
	if m, ok := b.metrics.(*observability.InMemoryMetrics); ok {
		fields = m.Fields()
	}
	b.logger.WithFields(fields).Info("Bridge stopped")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
