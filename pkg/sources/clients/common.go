package clients

import (
	"context"
	"net/http"
	"time"

	"github.com/doxen-app/doxen/pkg/metrics"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultConcurrency = 8
)

// Options are shared by the provider API clients.
type Options struct {
	HTTPClient  *http.Client
	Limiter     *RateLimiter
	Metrics     metrics.Recorder
	Concurrency int // Max in-flight calls for one fan-out
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = defaultConcurrency
	}
	return o
}

// wait blocks until the provider's limiter admits one more request.
func (o Options) wait(ctx context.Context, provider string) error {
	if o.Limiter == nil {
		return nil
	}
	return o.Limiter.Wait(ctx, provider)
}
