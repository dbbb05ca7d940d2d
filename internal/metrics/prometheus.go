package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// DefaultNamespace prefixes every metric name
const DefaultNamespace = "ilmarinen"

// Prometheus keeps reconciliation metrics in its own registry
type Prometheus struct {
	reconciliations *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	actions         *prometheus.CounterVec
	fetchRetries    *prometheus.CounterVec
	attempts        *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewPrometheus creates and registers the collectors
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()

	p := &Prometheus{
		registry: registry,

		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Total number of reconciliation runs by outcome",
			},
			[]string{"kind", "intent", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconciliation_duration_seconds",
				Help:      "Duration of reconciliation runs in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300, 900},
			},
			[]string{"kind", "status"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remediation_actions_total",
				Help:      "Total number of remediation steps attempted",
			},
			[]string{"kind", "action", "result", "fallback"},
		),
		fetchRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_retries_total",
				Help:      "Total number of retried resource reads",
			},
			[]string{"kind"},
		),
		attempts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "healing_attempts",
				Help:      "Healing attempts recorded for the resource as of the last run",
			},
			[]string{"kind", "resource_id"},
		),
	}

	registry.MustRegister(
		p.reconciliations,
		p.runDuration,
		p.actions,
		p.fetchRetries,
		p.attempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return p
}

func (p *Prometheus) ObserveOutcome(o types.ReconciliationOutcome) {
	kind := string(o.Kind)
	p.reconciliations.WithLabelValues(kind, string(o.Intent), o.Status.String()).Inc()
	p.runDuration.WithLabelValues(kind, o.Status.String()).Observe(o.Duration.Seconds())
	if o.ResourceID != "" {
		p.attempts.WithLabelValues(kind, o.ResourceID).Set(float64(o.Attempts))
	}
}

func (p *Prometheus) ObserveAction(kind types.Kind, rec types.ActionRecord) {
	fallback := "false"
	if rec.Fallback {
		fallback = "true"
	}
	p.actions.WithLabelValues(string(kind), string(rec.Action), result(rec.Success), fallback).Inc()
}

func (p *Prometheus) ObserveFetchRetry(kind types.Kind) {
	p.fetchRetries.WithLabelValues(string(kind)).Inc()
}

// Registry exposes the underlying registry
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an HTTP handler for the metrics endpoint
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
