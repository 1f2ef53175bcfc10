package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lambda-invoker/internal/observability"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const defaultDialTimeout = 10 * time.Second

// BrokerChecker checks that the brokers answer.
type BrokerChecker struct {
	brokers     []string
	topic       string
	logger      *logrus.Logger
	dialTimeout time.Duration
}

func NewBrokerChecker(brokers []string, topic string) *BrokerChecker {
	return &BrokerChecker{
		brokers:     brokers,
		topic:       topic,
		logger:      observability.GetLogger(),
		dialTimeout: defaultDialTimeout,
	}
}

// Ping succeeds as soon as one broker accepts a connection and answers a
// metadata request.
func (c *BrokerChecker) Ping(ctx context.Context) error {
	if len(c.brokers) == 0 {
		return errors.New("no brokers configured")
	}

	var errs []error
	for _, broker := range c.brokers {
		if err := c.pingBroker(ctx, broker); err != nil {
			errs = append(errs, err)
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

func (c *BrokerChecker) pingBroker(ctx context.Context, broker string) error {
	ctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", broker, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// Fetch metadata to verify broker health
	if _, err := conn.ReadPartitions(); err != nil {
		return fmt.Errorf("failed to read partitions from broker %s: %w", broker, err)
	}
	return nil
}

// HealthCheckLoop pings the brokers every interval and logs transitions
// between reachable and unreachable. It only observes; the Kafka clients
// reconnect on their own.
func (c *BrokerChecker) HealthCheckLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Health check loop stopped")
			return
		case <-ticker.C:
			err := c.Ping(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				c.logger.WithError(err).WithField("topic", c.topic).Warn("Broker health check failed")
				healthy = false
			case !healthy:
				c.logger.WithField("topic", c.topic).Info("Brokers reachable again")
				healthy = true
			}
		}
	}
}
