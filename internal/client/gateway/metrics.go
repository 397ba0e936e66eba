package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeMissing = "missing_token"
)

// Metrics counts gateway traffic. A nil registerer yields unregistered collectors.
type Metrics struct {
	requests  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
	replays   prometheus.Counter
	joined    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tim_gateway_requests_total",
			Help: "Requests sent by the gateway by response status.",
		}, []string{"code"}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tim_gateway_refresh_total",
			Help: "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		replays: f.NewCounter(prometheus.CounterOpts{
			Name: "tim_gateway_replays_total",
			Help: "Requests replayed after an authorization failure.",
		}),
		joined: f.NewCounter(prometheus.CounterOpts{
			Name: "tim_gateway_refresh_joined_total",
			Help: "Callers whose refresh outcome was shared with other callers.",
		}),
	}
}

func (m *Metrics) request(code int) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.requests.WithLabelValues(label).Inc()
}
