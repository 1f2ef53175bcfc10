package queue

import (
	"context"
	"errors"
	"fmt"
	"io"

	"lambda-invoker/pkg/models"

	kafka "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaGoReader is the default Reader, backed by a kafka-go group reader.
type KafkaGoReader struct {
	reader     *kafka.Reader
	logger     *zap.Logger
	autoCommit bool
}

func NewKafkaGoReader(cfg ReaderConfig) *KafkaGoReader {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	startOffset := kafka.LastOffset
	if cfg.StartFromEarliest {
		startOffset = kafka.FirstOffset
	}

	// A zero interval makes kafka-go commit synchronously on demand.
	commitInterval := cfg.CommitInterval
	if !cfg.AutoCommit {
		commitInterval = 0
	}

	sugar := cfg.Logger.Sugar()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: commitInterval,
		StartOffset:    startOffset,
		Logger:         kafka.LoggerFunc(sugar.Debugf),
		ErrorLogger:    kafka.LoggerFunc(sugar.Errorf),
	})

	return &KafkaGoReader{
		reader:     reader,
		logger:     cfg.Logger,
		autoCommit: cfg.AutoCommit,
	}
}

// Next blocks for the next message. In auto-commit mode the offset is
// scheduled for commit as soon as the message is read.
func (r *KafkaGoReader) Next(ctx context.Context) (*Delivery, error) {
	var (
		m   kafka.Message
		err error
	)
	if r.autoCommit {
		m, err = r.reader.ReadMessage(ctx)
	} else {
		m, err = r.reader.FetchMessage(ctx)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrClosed
		}
		return nil, err
	}

	msg := toInternalMessage(m)
	if r.autoCommit {
		return NewDelivery(msg, nil), nil
	}

	return NewDelivery(msg, func(ctx context.Context) error {
		if err := r.reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("failed to commit offset %d on %s: %w", m.Offset, msg.TopicPartition(), err)
		}
		return nil
	}), nil
}

// Close gracefully shuts down the reader
func (r *KafkaGoReader) Close() error {
	if err := r.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}

// toInternalMessage converts Kafka message to internal format
func toInternalMessage(m kafka.Message) *models.Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}

	return &models.Message{
		Topic:     m.Topic,
		Partition: m.Partition,
		Offset:    m.Offset,
		Key:       string(m.Key),
		Value:     m.Value,
		Headers:   headers,
		Timestamp: m.Time,
	}
}
