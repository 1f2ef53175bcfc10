package queue

import (
	"context"
	"sync"

	"lambda-invoker/pkg/models"
)

// MockReader is a mock implementation of Reader for testing. It replays
// Messages in order, then reports ErrClosed.
type MockReader struct {
	mu       sync.Mutex
	Messages []*models.Message
	NextFunc func(ctx context.Context) (*Delivery, error)
	AckFunc  func(ctx context.Context, msg *models.Message) error
	CloseErr error

	pos    int
	acked  []*models.Message
	closed bool
}

func NewMockReader(messages ...*models.Message) *MockReader {
	return &MockReader{Messages: messages}
}

func (m *MockReader) Next(ctx context.Context) (*Delivery, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.pos >= len(m.Messages) {
		return nil, ErrClosed
	}
	msg := m.Messages[m.pos]
	m.pos++

	return NewDelivery(msg, func(ctx context.Context) error {
		if m.AckFunc != nil {
			if err := m.AckFunc(ctx, msg); err != nil {
				return err
			}
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.acked = append(m.acked, msg)
		return nil
	}), nil
}

func (m *MockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.CloseErr
}

func (m *MockReader) GetAcked() []*models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	acked := make([]*models.Message, len(m.acked))
	copy(acked, m.acked)
	return acked
}

func (m *MockReader) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
