// Package metrics exposes Prometheus counters for registrations and key issuance.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Failure reasons used as the "reason" label.
const (
	ReasonUserNotFound     = "user_not_found"
	ReasonNoApplicableKey  = "no_applicable_key"
	ReasonKeyNotConfigured = "key_not_configured"
	ReasonStore            = "store"
)

// Recorder owns a private registry so that several instances can coexist in tests.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry   *prometheus.Registry
	registered prometheus.Counter
	issued     *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		registered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "keyswitch",
			Name:      "users_registered_total",
			Help:      "Users successfully registered.",
		}),
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyswitch",
			Name:      "keys_issued_total",
			Help:      "Keys handed out, by schedule key identifier.",
		}, []string{"key_id"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyswitch",
			Name:      "key_failures_total",
			Help:      "Key requests that failed, by reason.",
		}, []string{"reason"}),
	}
	r.registry.MustRegister(
		r.registered,
		r.issued,
		r.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) UserRegistered() {
	if r == nil {
		return
	}
	r.registered.Inc()
}

func (r *Recorder) KeyIssued(keyID string) {
	if r == nil {
		return
	}
	r.issued.WithLabelValues(keyID).Inc()
}

func (r *Recorder) KeyFailed(reason string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(reason).Inc()
}

// Handler serves the exposition format for this Recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
