package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"lambda-invoker/pkg/models"
)

const (
	contentTypeJSON = "application/json"

	// Lambda caps synchronous responses at 6 MB.
	maxResponseBody = 6 << 20
)

type HTTPConfig struct {
	URL     string
	Timeout time.Duration
	Encoder Encoder
	Client  *http.Client
}

func (c *HTTPConfig) Validate() error {
	if c.URL == "" {
		return errors.New("url cannot be empty")
	}
	if c.Timeout <= 0 && c.Client == nil {
		return errors.New("timeout must be greater than zero")
	}
	return nil
}

// HTTPForwarder POSTs each payload to the function's invocation URL.
type HTTPForwarder struct {
	client *http.Client
	url    string
	encode Encoder
}

func NewHTTPForwarder(cfg HTTPConfig) (*HTTPForwarder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid http forwarder config: %w", err)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{
			Timeout: cfg.Timeout,
			// A redirect would re-send the POST; the 3xx itself is the answer.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if cfg.Encoder == nil {
		cfg.Encoder = RawPayload
	}

	return &HTTPForwarder{
		client: cfg.Client,
		url:    cfg.URL,
		encode: cfg.Encoder,
	}, nil
}

// Forward issues one POST. Any response, whatever its status, completes the
// attempt; only a failure to obtain a response is a TransportFailed.
func (f *HTTPForwarder) Forward(ctx context.Context, msg *models.Message) Result {
	started := time.Now()

	body, err := f.encode(msg)
	if err != nil {
		return transportFailed(err, started)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return transportFailed(fmt.Errorf("failed to build request: %w", err), started)
	}
	req.Header.Set("Content-Type", contentTypeJSON)

	resp, err := f.client.Do(req)
	if err != nil {
		return transportFailed(err, started)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		res := transportFailed(fmt.Errorf("failed to read response body: %w", err), started)
		res.StatusCode = resp.StatusCode
		return res
	}

	return resultFor(resp.StatusCode, string(respBody), started)
}
