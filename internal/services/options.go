// internal/services/options.go
package services

import (
	"time"

	"github.com/ndstrzz/taedal-v7-sub000/internal/metrics"
)

const defaultMaxAttempts = 3

type serviceOptions struct {
	now         func() time.Time
	metrics     *metrics.Metrics
	maxAttempts int
}

type Option func(*serviceOptions)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithMaxAttempts bounds how often a stale-version write is retried.
func WithMaxAttempts(n int) Option {
	return func(o *serviceOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func buildOptions(opts []Option) serviceOptions {
	o := serviceOptions{
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
