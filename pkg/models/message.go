package models

import (
	"fmt"
	"time"
)

// Message represents a record read from the queue. Value is forwarded as-is.
type Message struct {
	Topic     string            `json:"topic"`
	Partition int               `json:"partition"`
	Offset    int64             `json:"offset"`
	Key       string            `json:"key"`
	Value     []byte            `json:"value"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
}

// TopicPartition returns the "topic-partition" label used in logs and envelopes.
func (m *Message) TopicPartition() string {
	return fmt.Sprintf("%s-%d", m.Topic, m.Partition)
}

// MessageHeader constants
const (
	HeaderMessageID = "message-id"
	HeaderEventType = "event-type"
)
