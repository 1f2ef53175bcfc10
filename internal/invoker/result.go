// Package invoker turns one queue message into one function invocation.
package invoker

import (
	"context"
	"fmt"
	"time"

	"lambda-invoker/pkg/models"
)

// Outcome classifies a single invocation attempt.
type Outcome int

const (
	// Delivered: the endpoint answered with a 2xx status.
	Delivered Outcome = iota
	// Rejected: the endpoint answered with any other status. Not retried.
	Rejected
	// TransportFailed: no usable response (refused, timeout, DNS, TLS).
	TransportFailed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Rejected:
		return "rejected"
	case TransportFailed:
		return "transport_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the outcome of one Forward call.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       string
	Err        error
	Duration   time.Duration
}

// Forwarder issues exactly one invocation per call and never retries.
type Forwarder interface {
	Forward(ctx context.Context, msg *models.Message) Result
}

// resultFor maps a received status code to Delivered or Rejected.
func resultFor(status int, body string, started time.Time) Result {
	outcome := Rejected
	if status >= 200 && status < 300 {
		outcome = Delivered
	}
	return Result{
		Outcome:    outcome,
		StatusCode: status,
		Body:       body,
		Duration:   time.Since(started),
	}
}

func transportFailed(err error, started time.Time) Result {
	return Result{
		Outcome:  TransportFailed,
		Err:      err,
		Duration: time.Since(started),
	}
}
