package bridge

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lambda-invoker/internal/invoker"
	"lambda-invoker/internal/observability"
	"lambda-invoker/internal/queue"
	"lambda-invoker/pkg/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockForwarder returns scripted outcomes keyed by message value.
type mockForwarder struct {
	mu       sync.Mutex
	outcomes map[string]invoker.Result
	calls    []string
}

func newMockForwarder() *mockForwarder {
	return &mockForwarder{outcomes: make(map[string]invoker.Result)}
}

func (f *mockForwarder) on(value string, res invoker.Result) *mockForwarder {
	f.outcomes[value] = res
	return f
}

func (f *mockForwarder) Forward(_ context.Context, msg *models.Message) invoker.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, string(msg.Value))
	if res, ok := f.outcomes[string(msg.Value)]; ok {
		return res
	}
	return invoker.Result{Outcome: invoker.Delivered, StatusCode: 200}
}

func (f *mockForwarder) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type sleepRecorder struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.calls = append(s.calls, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) getCalls() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

func messages(values ...string) []*models.Message {
	msgs := make([]*models.Message, len(values))
	for i, v := range values {
		msgs[i] = &models.Message{Topic: "user-created-topic", Offset: int64(i), Value: []byte(v)}
	}
	return msgs
}

func testLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	return logger, &buf
}

func newTestBridge(reader queue.Reader, fwd invoker.Forwarder) (*Bridge, *sleepRecorder, *observability.InMemoryMetrics, *bytes.Buffer) {
	logger, buf := testLogger()
	metrics := observability.NewInMemoryMetrics()
	b := New(Config{
		Reader:       reader,
		Forwarder:    fwd,
		Metrics:      metrics,
		Logger:       logger,
		FailurePause: DefaultFailurePause,
	})
	rec := &sleepRecorder{}
	b.sleep = rec.sleep
	return b, rec, metrics, buf
}

func TestBridge_DeliveredNoPause(t *testing.T) {
	reader := queue.NewMockReader(messages(`{"user":"alice"}`)...)
	fwd := newMockForwarder().on(`{"user":"alice"}`, invoker.Result{Outcome: invoker.Delivered, StatusCode: 200, Body: "ok"})
	b, sleeps, metrics, logs := newTestBridge(reader, fwd)

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, []string{`{"user":"alice"}`}, fwd.getCalls())
	assert.Empty(t, sleeps.getCalls())
	assert.Equal(t, int64(1), metrics.GetReceived())
	assert.Equal(t, int64(1), metrics.GetDelivered())
	assert.Contains(t, logs.String(), "Invocation delivered")
}

func TestBridge_RejectedNoPauseNoRetry(t *testing.T) {
	reader := queue.NewMockReader(messages(`{"user":"bob"}`, `{"user":"carol"}`)...)
	fwd := newMockForwarder().on(`{"user":"bob"}`, invoker.Result{
		Outcome:    invoker.Rejected,
		StatusCode: 500,
		Body:       "internal error",
	})
	b, sleeps, metrics, logs := newTestBridge(reader, fwd)

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, []string{`{"user":"bob"}`, `{"user":"carol"}`}, fwd.getCalls())
	assert.Empty(t, sleeps.getCalls())
	assert.Equal(t, int64(1), metrics.GetRejected())
	assert.Equal(t, int64(1), metrics.GetDelivered())
	assert.Contains(t, logs.String(), "internal error")
}

func TestBridge_TransportFailedPausesOnceAndDrops(t *testing.T) {
	reader := queue.NewMockReader(messages("first", "second", "third")...)
	fwd := newMockForwarder().on("second", invoker.Result{
		Outcome: invoker.TransportFailed,
		Err:     errors.New("connection refused"),
	})
	b, sleeps, metrics, _ := newTestBridge(reader, fwd)

	require.NoError(t, b.Run(context.Background()))

	// Never re-sent: each message is attempted exactly once, in order.
	assert.Equal(t, []string{"first", "second", "third"}, fwd.getCalls())
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeps.getCalls())
	assert.Equal(t, int64(3), metrics.GetReceived())
	assert.Equal(t, int64(2), metrics.GetDelivered())
	assert.Equal(t, int64(1), metrics.GetTransportFailed())
}

func TestBridge_EachFailurePausesIndependently(t *testing.T) {
	reader := queue.NewMockReader(messages("a", "b", "c")...)
	failed := invoker.Result{Outcome: invoker.TransportFailed, Err: errors.New("timeout")}
	fwd := newMockForwarder().on("a", failed).on("b", failed).on("c", failed)
	b, sleeps, _, _ := newTestBridge(reader, fwd)

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, []string{"a", "b", "c"}, fwd.getCalls())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second}, sleeps.getCalls())
}

func TestBridge_AcksEveryDeliveryOnce(t *testing.T) {
	msgs := messages("ok", "rejected", "failed")
	reader := queue.NewMockReader(msgs...)
	fwd := newMockForwarder().
		on("rejected", invoker.Result{Outcome: invoker.Rejected, StatusCode: 404}).
		on("failed", invoker.Result{Outcome: invoker.TransportFailed, Err: errors.New("dns")})
	b, _, _, _ := newTestBridge(reader, fwd)

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, msgs, reader.GetAcked())
}

func TestBridge_CommitFailureIsCounted(t *testing.T) {
	reader := queue.NewMockReader(messages("x")...)
	reader.AckFunc = func(context.Context, *models.Message) error {
		return errors.New("coordinator not available")
	}
	b, _, metrics, logs := newTestBridge(reader, newMockForwarder())

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, int64(1), metrics.GetCommitFailed())
	assert.Contains(t, logs.String(), "Failed to commit offset")
}

func TestBridge_ReadErrorPausesAndContinues(t *testing.T) {
	msgs := messages("after-error")
	calls := 0
	reader := &queue.MockReader{}
	reader.NextFunc = func(ctx context.Context) (*queue.Delivery, error) {
		calls++
		switch calls {
		case 1:
			return nil, errors.New("leader not available")
		case 2:
			return queue.NewDelivery(msgs[0], nil), nil
		default:
			return nil, queue.ErrClosed
		}
	}
	fwd := newMockForwarder()
	b, sleeps, _, logs := newTestBridge(reader, fwd)

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, []string{"after-error"}, fwd.getCalls())
	assert.Equal(t, []time.Duration{readErrorPause}, sleeps.getCalls())
	assert.Contains(t, logs.String(), "leader not available")
}

func TestBridge_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &queue.MockReader{}
	reader.NextFunc = func(ctx context.Context) (*queue.Delivery, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b, _, _, _ := newTestBridge(reader, newMockForwarder())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop after cancellation")
	}
}

func TestBridge_CancelDuringFailurePauseStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := queue.NewMockReader(messages("fails", "never")...)
	fwd := newMockForwarder().on("fails", invoker.Result{Outcome: invoker.TransportFailed, Err: errors.New("refused")})
	b, _, _, _ := newTestBridge(reader, fwd)
	b.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	require.NoError(t, b.Run(ctx))

	assert.Equal(t, []string{"fails"}, fwd.getCalls())
	assert.Len(t, reader.GetAcked(), 1)
}

func TestBridge_SummaryLogged(t *testing.T) {
	reader := queue.NewMockReader(messages("a")...)
	b, _, _, logs := newTestBridge(reader, newMockForwarder())

	require.NoError(t, b.Run(context.Background()))

	out := logs.String()
	assert.Contains(t, out, "Bridge stopped")
	assert.Contains(t, out, "received=1")
	assert.Contains(t, out, "delivered=1")
}

func TestSleepContext(t *testing.T) {
	start := time.Now()
	require.NoError(t, sleepContext(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestNew_FailurePause(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want time.Duration
	}{
		{name: "unset uses default", cfg: Config{}, want: DefaultFailurePause},
		{name: "negative uses default", cfg: Config{FailurePause: -1}, want: DefaultFailurePause},
		{name: "explicit value", cfg: Config{FailurePause: 500 * time.Millisecond}, want: 500 * time.Millisecond},
		{name: "disabled", cfg: Config{FailurePause: time.Second, DisableFailurePause: true}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Reader = queue.NewMockReader()
			tt.cfg.Forwarder = newMockForwarder()

			b := New(tt.cfg)
			assert.Equal(t, tt.want, b.failurePause)
			assert.NotNil(t, b.metrics)
			assert.NotNil(t, b.logger)
		})
	}
}

func TestBridge_ZeroValueConfigStillPauses(t *testing.T) {
	reader := queue.NewMockReader(messages("fails")...)
	fwd := newMockForwarder().on("fails", invoker.Result{Outcome: invoker.TransportFailed, Err: errors.New("refused")})
	logger, _ := testLogger()
	b := New(Config{Reader: reader, Forwarder: fwd, Logger: logger})
	rec := &sleepRecorder{}
	b.sleep = rec.sleep

	require.NoError(t, b.Run(context.Background()))

	assert.Equal(t, []time.Duration{DefaultFailurePause}, rec.getCalls())
}
