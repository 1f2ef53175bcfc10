package invoker

import (
	"context"
	"fmt"

	"lambda-invoker/internal/config"
)

// New builds the forwarder selected by cfg.Transport.
func New(ctx context.Context, cfg config.InvokerConfig, brokers []string) (Forwarder, error) {
	encoder, err := EncoderFor(cfg.PayloadFormat, brokers)
	if err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case config.TransportHTTP, "":
		f, err := NewHTTPForwarder(HTTPConfig{
			URL:     cfg.URL,
			Timeout: cfg.Timeout,
			Encoder: encoder,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	case config.TransportLambda:
		f, err := NewLambdaForwarder(ctx, LambdaConfig{
			FunctionName: cfg.FunctionName,
			Endpoint:     cfg.Endpoint,
			Region:       cfg.Region,
			Timeout:      cfg.Timeout,
			Encoder:      encoder,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unknown invoker transport %q", cfg.Transport)
	}
}
