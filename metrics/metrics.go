package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the marketplace counters. A nil *Metrics is a no-op so
// services can run without a registry in tests.
type Metrics struct {
	RoleChanges            *prometheus.CounterVec
	ProviderRequestReviews *prometheus.CounterVec
	Verifications          *prometheus.CounterVec
	ServiceStatusChanges   *prometheus.CounterVec
	ContractTransitions    *prometheus.CounterVec
	Uploads                *prometheus.CounterVec
	HTTPRequests           *prometheus.CounterVec
	HTTPDuration           *prometheus.HistogramVec
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RoleChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_role_changes_total",
			Help: "User role transitions by source and new role",
		}, []string{"source", "role"}),
		ProviderRequestReviews: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_provider_request_reviews_total",
			Help: "Provider requests reviewed by decision",
		}, []string{"decision"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_provider_verifications_total",
			Help: "Provider verification decisions",
		}, []string{"verified"}),
		ServiceStatusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_service_status_changes_total",
			Help: "Service listing status changes by new status",
		}, []string{"status"}),
		ContractTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_contract_transitions_total",
			Help: "Contract state transitions by target status",
		}, []string{"status"}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_uploads_total",
			Help: "Stored files by kind",
		}, []string{"kind"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) RoleChanged(source, role string) {
	if m == nil {
		return
	}
	m.RoleChanges.WithLabelValues(source, role).Inc()
}

func (m *Metrics) ProviderRequestReviewed(decision string) {
	if m == nil {
		return
	}
	m.ProviderRequestReviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) ProviderVerified(verified bool) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(strconv.FormatBool(verified)).Inc()
}

func (m *Metrics) ServiceStatusChanged(status string) {
	if m == nil {
		return
	}
	m.ServiceStatusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) ContractTransitioned(status string) {
	if m == nil {
		return
	}
	m.ContractTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) FileUploaded(kind string) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(kind).Inc()
}

// ObserveHTTP records one finished request. Call with time.Now() taken at the start.
func (m *Metrics) ObserveHTTP(method, route string, status int, start time.Time) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
}
