// Package metrics records provider activity with Prometheus collectors.
// Secretspec is a short-lived CLI, so the collectors live in a private
// registry that can be written to a node_exporter textfile on exit.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/systmms/secretspec/pkg/provider"
)

// Outcome labels.
const (
	OutcomeFound       = "found"
	OutcomeAbsent      = "absent"
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

// Metrics provides methods to record provider metrics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	missingRequired   *prometheus.CounterVec
}

// New creates the collectors in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretspec_provider_operations_total",
				Help: "Total number of provider get/set operations",
			},
			[]string{"provider", "operation", "outcome"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secretspec_provider_operation_duration_seconds",
				Help:    "Duration of provider operations in seconds",
				Buckets: []float64{0.005, 0.05, 0.25, 1, 5, 30},
			},
			[]string{"provider", "operation"},
		),
		missingRequired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secretspec_missing_required_total",
				Help: "Total number of required secrets that failed to resolve",
			},
			[]string{"profile"},
		),
	}
}

// Registry returns the gatherer holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// MissingRequired exposes the missing-secrets counter.
func (m *Metrics) MissingRequired() *prometheus.CounterVec {
	return m.missingRequired
}

// RecordOperation records one provider call.
func (m *Metrics) RecordOperation(providerName, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(providerName, operation, outcome).Inc()
	m.operationDuration.WithLabelValues(providerName, operation).Observe(duration.Seconds())
}

// RecordMissingRequired adds n missing required secrets for a profile.
func (m *Metrics) RecordMissingRequired(profile string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.missingRequired.WithLabelValues(profile).Add(float64(n))
}

// WriteTextfile writes every collected metric in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Instrument wraps a provider so that each call is recorded. It returns p
// unchanged when m is nil.
func (m *Metrics) Instrument(p provider.Provider) provider.Provider {
	if m == nil || p == nil {
		return p
	}
	return &instrumented{Provider: p, metrics: m}
}

type instrumented struct {
	provider.Provider
	metrics *Metrics
}

func (i *instrumented) Get(ctx context.Context, addr provider.Address) (string, bool, error) {
	start := time.Now()
	value, found, err := i.Provider.Get(ctx, addr)

	outcome := OutcomeAbsent
	switch {
	case provider.IsUnavailable(err):
		outcome = OutcomeUnavailable
	case err != nil:
		outcome = OutcomeError
	case found:
		outcome = OutcomeFound
	}
	i.metrics.RecordOperation(i.Name(), "get", outcome, time.Since(start))
	return value, found, err
}

func (i *instrumented) Set(ctx context.Context, addr provider.Address, value string) error {
	start := time.Now()
	err := i.Provider.Set(ctx, addr, value)

	outcome := OutcomeOK
	switch {
	case provider.IsUnavailable(err):
		outcome = OutcomeUnavailable
	case err != nil:
		outcome = OutcomeError
	}
	i.metrics.RecordOperation(i.Name(), "set", outcome, time.Since(start))
	return err
}

// Unwrap returns the wrapped provider.
func (i *instrumented) Unwrap() provider.Provider {
	return i.Provider
}
