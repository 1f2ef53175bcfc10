package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const sendAttemptTimeout = 10 * time.Second

type KafkaProducer struct {
	writer messageWriter
	topic  string
	logger logrus.FieldLogger
	now    func() time.Time
}

func OpenKafkaProducer(config ProducerConfig) (*KafkaProducer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid producer config: %w", err)
	}

	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.RequiredAcks == 0 {
		config.RequiredAcks = kafka.RequireOne
	}
	if config.Balancer == nil {
		config.Balancer = &kafka.Hash{}
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               config.Balancer,
		WriteTimeout:           config.WriteTimeout,
		ReadTimeout:            config.ReadTimeout,
		RequiredAcks:           config.RequiredAcks,
		Compression:            config.Compression,
		AllowAutoTopicCreation: config.AllowAutoTopicCreation,
	}

	return newKafkaProducer(writer, config), nil
}

func newKafkaProducer(w messageWriter, config ProducerConfig) *KafkaProducer {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &KafkaProducer{
		writer: w,
		topic:  config.Topic,
		logger: config.Logger.WithField("topic", config.Topic),
		now:    time.Now,
	}
}

func (kp *KafkaProducer) Close() error {
	if kp.writer == nil {
		return errors.New("writer is nil")
	}
	return kp.writer.Close()
}

// CloseGracefully flushes and closes the writer, giving up after timeout.
func (kp *KafkaProducer) CloseGracefully(timeout time.Duration) error {
	if kp.writer == nil {
		return errors.New("writer is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- kp.writer.Close()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (kp *KafkaProducer) Send(ctx context.Context, msg Message) error {
	record, err := kp.toKafkaMessage(msg)
	if err != nil {
		return err
	}
	if err := kp.writer.WriteMessages(ctx, record); err != nil {
		return &RetryableError{Err: err}
	}
	return nil
}

// SendWithRetry retries retryable failures with exponential backoff.
// Permanent errors and context cancellation end the loop immediately.
func (kp *KafkaProducer) SendWithRetry(ctx context.Context, msg Message, policy RetryPolicy) error {
	if err := policy.Validate(); err != nil {
		return &PermanentError{Err: fmt.Errorf("invalid retry policy: %w", err)}
	}

	var lastErr error
	for i := 0; i < policy.MaxRetries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, sendAttemptTimeout)
		err := kp.Send(attemptCtx, msg)
		cancel()

		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}

		lastErr = err
		kp.logger.WithFields(logrus.Fields{
			"attempt":     i + 1,
			"max_retries": policy.MaxRetries,
			"key":         msg.Key,
		}).WithError(err).Warn("Failed to send message")

		if i < policy.MaxRetries-1 {
			select {
			case <-time.After(calculateBackoff(policy, i)):
			case <-ctx.Done():
				return fmt.Errorf("send cancelled after %d attempts: %w", i+1, ctx.Err())
			}
		}
	}
	return lastErr
}

func (kp *KafkaProducer) SendBatch(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	records := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		record, err := kp.toKafkaMessage(msg)
		if err != nil {
			return err
		}
		records[i] = record
	}

	if err := kp.writer.WriteMessages(ctx, records...); err != nil {
		return &RetryableError{Err: err}
	}
	return nil
}

func (kp *KafkaProducer) toKafkaMessage(msg Message) (kafka.Message, error) {
	value := msg.RawValue
	if value == nil {
		encoded, err := json.Marshal(msg.Value)
		if err != nil {
			return kafka.Message{}, &PermanentError{Err: fmt.Errorf("failed to encode message value: %w", err)}
		}
		value = encoded
	}

	headers := make([]kafka.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	return kafka.Message{
		Key:     []byte(msg.Key),
		Value:   value,
		Headers: headers,
		Time:    kp.now(),
	}, nil
}

func calculateBackoff(policy RetryPolicy, attempt int) time.Duration {
	backoff := time.Duration(float64(policy.InitialBackoff) * math.Pow(policy.BackoffFactor, float64(attempt)))

	if backoff > policy.MaxBackoff {
		backoff = policy.MaxBackoff
	}

	// Jitter adds up to a quarter of the backoff, still capped at MaxBackoff.
	if policy.Jitter && backoff > 0 {
		maxJitter := backoff / 4
		if maxJitter > 0 {
			backoff += time.Duration(rand.Int63n(int64(maxJitter)))
			if backoff > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			}
		}
	}

	return backoff
}
