package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	pkg "lambda-invoker/pkg/kafka"
	"lambda-invoker/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreatedMessage(t *testing.T) {
	msg := userCreatedMessage("alice", "", 0, 1)

	event, ok := msg.Value.(models.UserCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, msg.Key, event.UserID)
	assert.Equal(t, "alice", event.Username)
	assert.Equal(t, "alice@example.com", event.Email)
	assert.Equal(t, "Alice", event.FirstName)
	assert.Equal(t, models.EventTypeUserCreated, msg.Headers[models.HeaderEventType])
	assert.NotEmpty(t, msg.Headers[models.HeaderMessageID])

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"userId"`)
}

func TestUserCreatedMessage_Numbered(t *testing.T) {
	msg := userCreatedMessage("bob", "ignored@example.com", 2, 5)
	event := msg.Value.(models.UserCreatedEvent)
	assert.Equal(t, "bob-3", event.Username)
	assert.Equal(t, "bob-3@example.com", event.Email)
}

func TestStdinMessage(t *testing.T) {
	msg, err := stdinMessage(strings.NewReader("  {\"user\":\"alice\"}\n"))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"user":"alice"}`), msg.RawValue)
	assert.NotEmpty(t, msg.Key)

	_, err = stdinMessage(strings.NewReader("not json"))
	assert.Error(t, err)
}

type fakeProducer struct {
	BatchErr error
	RetryErr error
	batches  [][]pkg.Message
	retried  []string
}

func (p *fakeProducer) Send(context.Context, pkg.Message) error { return nil }

func (p *fakeProducer) SendWithRetry(_ context.Context, msg pkg.Message, _ pkg.RetryPolicy) error {
	p.retried = append(p.retried, msg.Key)
	return p.RetryErr
}

func (p *fakeProducer) SendBatch(_ context.Context, msgs []pkg.Message) error {
	p.batches = append(p.batches, msgs)
	return p.BatchErr
}

func (p *fakeProducer) Close() error { return nil }

func testPolicy() pkg.RetryPolicy {
	return pkg.RetryPolicy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffFactor: 1}
}

func keyed(keys ...string) []pkg.Message {
	msgs := make([]pkg.Message, len(keys))
	for i, k := range keys {
		msgs[i] = pkg.Message{Key: k, RawValue: []byte("{}")}
	}
	return msgs
}

func TestPublish_SingleMessageUsesRetry(t *testing.T) {
	p := &fakeProducer{}
	require.NoError(t, publish(context.Background(), p, keyed("a"), testPolicy()))

	assert.Empty(t, p.batches)
	assert.Equal(t, []string{"a"}, p.retried)
}

func TestPublish_ManyMessagesUseBatch(t *testing.T) {
	p := &fakeProducer{}
	require.NoError(t, publish(context.Background(), p, keyed("a", "b", "c"), testPolicy()))

	require.Len(t, p.batches, 1)
	assert.Len(t, p.batches[0], 3)
	assert.Empty(t, p.retried)
}

func TestPublish_RetryableBatchFailureFallsBack(t *testing.T) {
	p := &fakeProducer{BatchErr: &pkg.RetryableError{Err: errors.New("leader not available")}}
	require.NoError(t, publish(context.Background(), p, keyed("a", "b"), testPolicy()))

	assert.Len(t, p.batches, 1)
	assert.Equal(t, []string{"a", "b"}, p.retried)
}

func TestPublish_PermanentBatchFailureReturned(t *testing.T) {
	p := &fakeProducer{BatchErr: &pkg.PermanentError{Err: errors.New("bad value")}}
	err := publish(context.Background(), p, keyed("a", "b"), testPolicy())

	assert.True(t, pkg.IsPermanent(err))
	assert.Empty(t, p.retried)
}

func TestPublish_FailureIsReturned(t *testing.T) {
	p := &fakeProducer{RetryErr: &pkg.RetryableError{Err: errors.New("timeout")}}
	err := publish(context.Background(), p, keyed("a"), testPolicy())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "a")
	assert.True(t, pkg.IsRetryable(err))
}
