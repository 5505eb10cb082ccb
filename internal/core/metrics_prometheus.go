package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports service metrics to a Prometheus registry.
type PrometheusRecorder struct {
	operations  *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	experiments *prometheus.CounterVec
	cost        prometheus.Counter
	consumed    *prometheus.CounterVec
}

// NewPrometheusRecorder registers the labcore collectors with reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labcore",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labcore",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		experiments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labcore",
			Name:      "experiments_total",
			Help:      "Executed experiments by recipe and outcome.",
		}, []string{"recipe", "outcome"}),
		cost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labcore",
			Name:      "experiment_cost_total",
			Help:      "Accumulated reagent cost of executed experiments.",
		}),
		consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labcore",
			Name:      "reagent_consumed_total",
			Help:      "Quantity consumed per reagent, in the reagent's unit.",
		}, []string{"reagent"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.durations, r.experiments, r.cost, r.consumed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	r.operations.WithLabelValues(operation, statusLabel(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveExperiment implements ExperimentMetrics.
func (r *PrometheusRecorder) ObserveExperiment(_ context.Context, recipe string, success bool, cost float64) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
	}
	r.experiments.WithLabelValues(recipe, outcome).Inc()
	if cost > 0 {
		r.cost.Add(cost)
	}
}

// ObserveConsumption implements ExperimentMetrics.
func (r *PrometheusRecorder) ObserveConsumption(_ context.Context, reagent string, quantity float64) {
	if quantity > 0 {
		r.consumed.WithLabelValues(reagent).Add(quantity)
	}
}
