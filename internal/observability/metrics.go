package observability

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// MetricsCollector receives one call per forwarding milestone.
// Counters stay in-process; nothing is exported.
type MetricsCollector interface {
	IncReceived()
	IncDelivered()
	IncRejected()
	IncTransportFailed()
	IncCommitFailed()
}

// InMemoryMetrics is the default collector, summarized on shutdown.
type InMemoryMetrics struct {
	Received        atomic.Int64
	Delivered       atomic.Int64
	Rejected        atomic.Int64
	TransportFailed atomic.Int64
	CommitFailed    atomic.Int64
}

func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

func (m *InMemoryMetrics) IncReceived() {
	m.Received.Add(1)
}

func (m *InMemoryMetrics) IncDelivered() {
	m.Delivered.Add(1)
}

func (m *InMemoryMetrics) IncRejected() {
	m.Rejected.Add(1)
}

func (m *InMemoryMetrics) IncTransportFailed() {
	m.TransportFailed.Add(1)
}

func (m *InMemoryMetrics) IncCommitFailed() {
	m.CommitFailed.Add(1)
}

func (m *InMemoryMetrics) GetReceived() int64 {
	return m.Received.Load()
}

func (m *InMemoryMetrics) GetDelivered() int64 {
	return m.Delivered.Load()
}

func (m *InMemoryMetrics) GetRejected() int64 {
	return m.Rejected.Load()
}

func (m *InMemoryMetrics) GetTransportFailed() int64 {
	return m.TransportFailed.Load()
}

func (m *InMemoryMetrics) GetCommitFailed() int64 {
	return m.CommitFailed.Load()
}

// Fields returns the counters as log fields.
func (m *InMemoryMetrics) Fields() logrus.Fields {
	return logrus.Fields{
		"received":         m.GetReceived(),
		"delivered":        m.GetDelivered(),
		"rejected":         m.GetRejected(),
		"transport_failed": m.GetTransportFailed(),
		"commit_failed":    m.GetCommitFailed(),
	}
}
