// Package kafka publishes events to the topic the invoker consumes. It backs
// the publisher tool and the integration tests.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Message is one record to publish. Value is JSON-encoded unless RawValue
// is set, in which case RawValue is written unchanged.
type Message struct {
	Key      string            `json:"key,omitempty"`
	Value    interface{}       `json:"value,omitempty"`
	RawValue []byte            `json:"-"`
	Headers  map[string]string `json:"headers,omitempty"`
}

type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	RequiredAcks kafka.RequiredAcks
	Balancer     kafka.Balancer
	Compression  kafka.Compression
	// AllowAutoTopicCreation lets a fresh local broker accept the first write.
	AllowAutoTopicCreation bool
	Logger                 logrus.FieldLogger
}

// RetryableError indicates the operation should be retried
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// PermanentError indicates the operation should not be retried
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	return errors.As(err, &retryableErr)
}

func IsPermanent(err error) bool {
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

type Producer interface {
	Send(ctx context.Context, msg Message) error
	SendWithRetry(ctx context.Context, msg Message, policy RetryPolicy) error
	SendBatch(ctx context.Context, msgs []Message) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
