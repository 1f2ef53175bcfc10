package invoker

import (
	"encoding/json"
	"fmt"
	"strings"

	"lambda-invoker/internal/config"
	"lambda-invoker/pkg/models"

	"github.com/aws/aws-lambda-go/events"
)

const (
	kafkaEventSource   = "SelfManagedKafka"
	kafkaTimestampType = "CREATE_TIME"
)

// Encoder produces the request body for a message.
type Encoder func(msg *models.Message) ([]byte, error)

// RawPayload sends the message value byte-for-byte.
func RawPayload(msg *models.Message) ([]byte, error) {
	return msg.Value, nil
}

// KafkaEventPayload wraps the message in the event shape Lambda's Kafka
// event source mapping delivers, one record under its topic-partition key.
// The record value is the raw message text.
func KafkaEventPayload(bootstrapServers []string) Encoder {
	servers := strings.Join(bootstrapServers, ",")

	return func(msg *models.Message) ([]byte, error) {
		record := events.KafkaRecord{
			Topic:         msg.Topic,
			Partition:     int64(msg.Partition),
			Offset:        msg.Offset,
			Timestamp:     events.MilliSecondsEpochTime{Time: msg.Timestamp},
			TimestampType: kafkaTimestampType,
			Key:           msg.Key,
			Value:         string(msg.Value),
		}

		event := events.KafkaEvent{
			EventSource:      kafkaEventSource,
			BootstrapServers: servers,
			Records: map[string][]events.KafkaRecord{
				msg.TopicPartition(): {record},
			},
		}

		body, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to encode kafka event: %w", err)
		}
		return body, nil
	}
}

// EncoderFor returns the encoder for a configured payload format.
func EncoderFor(format string, bootstrapServers []string) (Encoder, error) {
	switch format {
	case config.PayloadRaw, "":
		return RawPayload, nil
	case config.PayloadKafkaEvent:
		return KafkaEventPayload(bootstrapServers), nil
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}
