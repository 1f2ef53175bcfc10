package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lambda-invoker/pkg/models"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

const saramaClientID = "lambda-invoker"

// SaramaReader adapts a sarama consumer group to the Reader interface.
// Each claimed partition feeds the same unbuffered channel, so messages of
// one partition reach Next in offset order.
type SaramaReader struct {
	group      sarama.ConsumerGroup
	topic      string
	logger     *zap.Logger
	deliveries chan *Delivery
	cancel     context.CancelFunc
	done       chan struct{}
	closeOnce  sync.Once
}

func NewSaramaReader(cfg ReaderConfig) (*SaramaReader, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	sarama.Logger = zap.NewStdLog(cfg.Logger.Named("sarama"))

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group %s: %w", cfg.GroupID, err)
	}

	return newSaramaReaderFromGroup(group, cfg), nil
}

func newSaramaReaderFromGroup(group sarama.ConsumerGroup, cfg ReaderConfig) *SaramaReader {
	ctx, cancel := context.WithCancel(context.Background())
	r := &SaramaReader{
		group:      group,
		topic:      cfg.Topic,
		logger:     cfg.Logger,
		deliveries: make(chan *Delivery),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	handler := &groupHandler{deliveries: r.deliveries, autoCommit: cfg.AutoCommit}
	go r.consume(ctx, handler)
	go func() {
		for err := range group.Errors() {
			r.logger.Error("consumer group error", zap.String("group", cfg.GroupID), zap.Error(err))
		}
	}()

	return r
}

func newSaramaConfig(cfg ReaderConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = saramaClientID
	sc.Consumer.Return.Errors = true
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}

	if cfg.StartFromEarliest {
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	sc.Consumer.Offsets.AutoCommit.Enable = cfg.AutoCommit
	if cfg.AutoCommit {
		sc.Consumer.Offsets.AutoCommit.Interval = cfg.CommitInterval
	}
	return sc
}

// consume re-joins the group after every rebalance until the reader closes.
func (r *SaramaReader) consume(ctx context.Context, handler sarama.ConsumerGroupHandler) {
	defer close(r.done)

	for {
		if err := r.group.Consume(ctx, []string{r.topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			r.logger.Error("consume session ended with error", zap.String("topic", r.topic), zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *SaramaReader) Next(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return nil, ErrClosed
	case d := <-r.deliveries:
		return d, nil
	}
}

func (r *SaramaReader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.cancel()
		if cerr := r.group.Close(); cerr != nil {
			err = fmt.Errorf("failed to close consumer group: %w", cerr)
		}
		<-r.done
	})
	return err
}

type groupHandler struct {
	deliveries chan<- *Delivery
	autoCommit bool
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case m, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if m == nil {
				continue
			}

			delivery := h.toDelivery(session, m)
			select {
			case h.deliveries <- delivery:
			case <-session.Context().Done():
				return nil
			}

			// Read means consumed: the auto-committer picks this mark up.
			if h.autoCommit {
				session.MarkMessage(m, "")
			}
		}
	}
}

func (h *groupHandler) toDelivery(session sarama.ConsumerGroupSession, m *sarama.ConsumerMessage) *Delivery {
	headers := make(map[string]string, len(m.Headers))
	for _, hdr := range m.Headers {
		if hdr == nil {
			continue
		}
		headers[string(hdr.Key)] = string(hdr.Value)
	}

	msg := &models.Message{
		Topic:     m.Topic,
		Partition: int(m.Partition),
		Offset:    m.Offset,
		Key:       string(m.Key),
		Value:     m.Value,
		Headers:   headers,
		Timestamp: m.Timestamp,
	}

	if h.autoCommit {
		return NewDelivery(msg, nil)
	}
	return NewDelivery(msg, func(context.Context) error {
		session.MarkMessage(m, "")
		session.Commit()
		return nil
	})
}
