package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lambda-invoker/internal/config"
	"lambda-invoker/internal/observability"
	pkg "lambda-invoker/pkg/kafka"
	"lambda-invoker/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var publishPolicy = pkg.RetryPolicy{
	MaxRetries:     5,
	InitialBackoff: time.Second,
	MaxBackoff:     30 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         true,
}

func main() {
	username := flag.String("username", "alice", "username of the generated user-created event")
	email := flag.String("email", "", "email of the generated event (defaults to <username>@example.com)")
	count := flag.Int("count", 1, "number of events to publish")
	fromStdin := flag.Bool("stdin", false, "publish the JSON document read from stdin unchanged")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	observability.InitLogger(cfg.Logging.Level, cfg.Logging.Format)

	var msgs []pkg.Message
	if *fromStdin {
		msg, err := stdinMessage(os.Stdin)
		if err != nil {
			observability.GetLogger().WithError(err).Fatal("Failed to read stdin")
		}
		msgs = append(msgs, msg)
	} else {
		for i := 0; i < *count; i++ {
			msgs = append(msgs, userCreatedMessage(*username, *email, i, *count))
		}
	}

	if err := run(cfg, msgs); err != nil {
		observability.GetLogger().WithError(err).Fatal("Failed to publish messages")
	}
}

// run owns the producer so it is closed before main exits with a failure.
func run(cfg *config.Config, msgs []pkg.Message) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kp, err := pkg.OpenKafkaProducer(pkg.ProducerConfig{
		Brokers:                cfg.Kafka.Brokers,
		Topic:                  cfg.Kafka.Topic,
		AllowAutoTopicCreation: true,
		Logger:                 observability.GetLogger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	defer func() {
		if err := kp.CloseGracefully(5 * time.Second); err != nil {
			observability.WithField("topic", cfg.Kafka.Topic).WithError(err).Warn("Failed to close producer")
		}
	}()

	if err := publish(ctx, kp, msgs, publishPolicy); err != nil {
		return err
	}
	for _, msg := range msgs {
		observability.WithFields(logrus.Fields{
			"topic":      cfg.Kafka.Topic,
			"key":        msg.Key,
			"message_id": msg.Headers[models.HeaderMessageID],
		}).Info("📤 Published message")
	}
	return nil
}

// publish writes several messages as one batch. A retryable batch failure
// falls back to sending each message with retries.
func publish(ctx context.Context, p pkg.Producer, msgs []pkg.Message, policy pkg.RetryPolicy) error {
	if len(msgs) > 1 {
		err := p.SendBatch(ctx, msgs)
		if err == nil || !pkg.IsRetryable(err) {
			return err
		}
		observability.WithField("messages", len(msgs)).WithError(err).Warn("Batch publish failed, sending one by one")
	}

	for _, msg := range msgs {
		if err := p.SendWithRetry(ctx, msg, policy); err != nil {
			return fmt.Errorf("failed to publish message %s: %w", msg.Key, err)
		}
	}
	return nil
}

func userCreatedMessage(username, email string, i, count int) pkg.Message {
	if username == "" {
		username = "user"
	}
	if count > 1 {
		username = fmt.Sprintf("%s-%d", username, i+1)
	}
	if email == "" || count > 1 {
		email = username + "@example.com"
	}

	userID := uuid.NewString()
	return pkg.Message{
		Key: userID,
		Value: models.UserCreatedEvent{
			UserID:    userID,
			Username:  username,
			Email:     email,
			FirstName: strings.ToUpper(username[:1]) + username[1:],
			LastName:  "Example",
			Timestamp: time.Now().UTC(),
		},
		Headers: map[string]string{
			models.HeaderMessageID: uuid.NewString(),
			models.HeaderEventType: models.EventTypeUserCreated,
		},
	}
}

func stdinMessage(r io.Reader) (pkg.Message, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return pkg.Message{}, err
	}
	data = []byte(strings.TrimSpace(string(data)))
	if !json.Valid(data) {
		return pkg.Message{}, errors.New("stdin is not a JSON document")
	}
	return pkg.Message{
		Key:      uuid.NewString(),
		RawValue: data,
		Headers:  map[string]string{models.HeaderMessageID: uuid.NewString()},
	}, nil
}
