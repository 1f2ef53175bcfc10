package kafka

import "errors"

func (c *ProducerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("brokers cannot be empty")
	}
	if c.Topic == "" {
		return errors.New("topic cannot be empty")
	}
	if c.WriteTimeout < 0 {
		return errors.New("writeTimeout cannot be negative")
	}
	if c.ReadTimeout < 0 {
		return errors.New("readTimeout cannot be negative")
	}
	return nil
}

func (p *RetryPolicy) Validate() error {
	if p.MaxRetries < 1 {
		return errors.New("maxRetries must be at least 1")
	}
	if p.InitialBackoff < 0 || p.MaxBackoff < 0 {
		return errors.New("backoff cannot be negative")
	}
	if p.BackoffFactor < 1 {
		return errors.New("backoffFactor must be at least 1")
	}
	return nil
}
