// Package queue reads the subscribed topic as a sequence of deliveries.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lambda-invoker/internal/config"
	"lambda-invoker/pkg/models"

	"go.uber.org/zap"
)

// ErrClosed is returned by Next once the reader has been torn down.
// A closed reader cannot be restarted.
var ErrClosed = errors.New("queue reader closed")

// Reader yields messages one at a time, blocking until one is available.
type Reader interface {
	Next(ctx context.Context) (*Delivery, error)
	Close() error
}

// Delivery is one message handed to the forwarding loop.
type Delivery struct {
	Message *models.Message
	ack     func(ctx context.Context) error
}

func NewDelivery(msg *models.Message, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Message: msg, ack: ack}
}

// Ack commits the delivery's offset. It is a no-op when the client
// auto-commits on read.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

type ReaderConfig struct {
	Brokers           []string
	Topic             string
	GroupID           string
	StartFromEarliest bool
	AutoCommit        bool
	CommitInterval    time.Duration
	Logger            *zap.Logger
}

func (c *ReaderConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("brokers cannot be empty")
	}
	if c.Topic == "" {
		return errors.New("topic cannot be empty")
	}
	if c.GroupID == "" {
		return errors.New("groupID cannot be empty")
	}
	if c.AutoCommit && c.CommitInterval <= 0 {
		return errors.New("commitInterval must be greater than zero when auto-commit is enabled")
	}
	return nil
}

// Open verifies the brokers are reachable and subscribes with the named
// client implementation. Any error here means the process cannot start.
func Open(ctx context.Context, client string, cfg ReaderConfig) (Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reader config: %w", err)
	}
	if client == "" {
		client = config.ClientKafkaGo
	}
	if client != config.ClientKafkaGo && client != config.ClientSarama {
		return nil, fmt.Errorf("unknown kafka client %q", client)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	if err := NewBrokerChecker(cfg.Brokers, cfg.Topic).Ping(ctx); err != nil {
		return nil, fmt.Errorf("broker unreachable: %w", err)
	}

	if client == config.ClientSarama {
		return NewSaramaReader(cfg)
	}
	return NewKafkaGoReader(cfg), nil
}
