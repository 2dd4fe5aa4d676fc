package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the token and import paths report to.
type Recorder interface {
	RecordTokenRefresh(provider, result string)
	RecordProviderRequest(provider, endpoint string, status int)
	RecordImport(provider, result string, duration time.Duration)
}

// Result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultReauth  = "reauth_required"
)

// Collector records Prometheus metrics.
type Collector struct {
	tokenRefresh     *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	imports          *prometheus.CounterVec
	importDuration   *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doxen_token_refresh_total",
			Help: "OAuth access token refresh attempts",
		}, []string{"provider", "result"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doxen_provider_requests_total",
			Help: "Outbound provider API requests by endpoint and HTTP status",
		}, []string{"provider", "endpoint", "status"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "doxen_imports_total",
			Help: "Conversation imports by result",
		}, []string{"provider", "result"}),
		importDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "doxen_import_duration_seconds",
			Help:    "End to end import latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	reg.MustRegister(c.tokenRefresh, c.providerRequests, c.imports, c.importDuration)
	return c
}

func (c *Collector) RecordTokenRefresh(provider, result string) {
	c.tokenRefresh.WithLabelValues(provider, result).Inc()
}

// RecordProviderRequest records one outbound call. Status 0 means the request
// never produced a response.
func (c *Collector) RecordProviderRequest(provider, endpoint string, status int) {
	c.providerRequests.WithLabelValues(provider, endpoint, strconv.Itoa(status)).Inc()
}

func (c *Collector) RecordImport(provider, result string, duration time.Duration) {
	c.imports.WithLabelValues(provider, result).Inc()
	c.importDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTokenRefresh(provider, result string)                   {}
func (Nop) RecordProviderRequest(provider, endpoint string, status int)  {}
func (Nop) RecordImport(provider, result string, duration time.Duration) {}
