// Package metrics records owner API request outcomes in Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromObserver implements inet.Observer.
type PromObserver struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPromObserver registers request metrics on reg. If reg is nil, the default registerer is
// used. If the collectors are already registered, the existing ones are reused.
func NewPromObserver(reg prometheus.Registerer) (*PromObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teslajs",
		Name:      "requests_total",
		Help:      "Total number of owner API requests by command and outcome",
	}, []string{"method", "command", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "teslajs",
		Name:      "request_duration_seconds",
		Help:      "Time between sending a request and decoding its reply",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "command"})

	if err := reg.Register(requests); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			requests = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromObserver{requests: requests, latency: latency}, nil
}

func (o *PromObserver) ObserveRequest(method, command, outcome string, elapsed time.Duration) {
	o.requests.WithLabelValues(method, command, outcome).Inc()
	o.latency.WithLabelValues(method, command).Observe(elapsed.Seconds())
}
