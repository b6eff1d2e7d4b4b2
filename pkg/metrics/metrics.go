// Package metrics provides Prometheus instrumentation for opsched components.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every opsched metric name.
const DefaultNamespace = "opsched"

// Registry holds all metric instances for opsched components.
type Registry struct {
	// Schedule Metrics
	QueueLength *prometheus.GaugeVec
	Admitted    *prometheus.CounterVec
	Selected    *prometheus.CounterVec
	Promoted    *prometheus.CounterVec
	Exited      *prometheus.CounterVec
	Terminated  *prometheus.CounterVec
	Reaped      *prometheus.CounterVec
	WaitTicks   *prometheus.HistogramVec

	// Driver Metrics
	DriverTicks      *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	DispatchFailures *prometheus.CounterVec

	// Reaper Metrics
	SinkRecords *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by opsched components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
// Collectors already registered under the same names are reused, so several
// schedules may share one registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return newRegistry(reg, DefaultNamespace, nil)
}

// FromConfig builds a Registry honoring the namespace and constant labels of cfg.
func FromConfig(cfg Config) *Registry {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return newRegistry(reg, ns, cfg.Labels)
}

func newRegistry(reg prometheus.Registerer, ns string, labels prometheus.Labels) *Registry {
	return &Registry{
		QueueLength: register(reg, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   ns,
				Subsystem:   "schedule",
				Name:        "queue_length",
				Help:        "Number of processes linked in each schedule queue",
				ConstLabels: labels,
			},
			[]string{"schedule", "queue"},
		)),

		Admitted: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "schedule",
				Name:        "admitted_total",
				Help:        "Total number of processes admitted, by priority class",
				ConstLabels: labels,
			},
			[]string{"schedule", "priority"},
		)),

		Selected: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "schedule",
				Name:        "selected_total",
				Help:        "Total number of processes selected to run, by ready queue",
				ConstLabels: labels,
			},
			[]string{"schedule", "queue"},
		)),

		Promoted: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "schedule",
				Name:        "promoted_total",
				Help:        "Total number of low priority processes promoted to high-ready",
				ConstLabels: labels,
			},
			[]string{"schedule"},
		)),

		Exited: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "schedule",
				Name:        "exited_total",
				Help:        "Total number of processes moved to the defunct queue",
				ConstLabels: labels,
			},
			[]string{"schedule"},
		)),

		Terminated: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "schedule",
				Name:        "terminated_total",
				Help:        "Total number of ready processes terminated early",
				ConstLabels: labels,
			},
			[]string{"schedule"},
		)),

		Reaped: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "schedule",
				Name:        "reaped_total",
				Help:        "Total number of defunct processes released",
				ConstLabels: labels,
			},
			[]string{"schedule"},
		)),

		WaitTicks: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "schedule",
				Name:        "low_wait_ticks",
				Help:        "Promotion ticks a process spent in low-ready before leaving it",
				Buckets:     prometheus.ExponentialBuckets(1, 2, 8),
				ConstLabels: labels,
			},
			[]string{"schedule"},
		)),

		DriverTicks: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "driver",
				Name:        "ticks_total",
				Help:        "Total number of scheduling ticks",
				ConstLabels: labels,
			},
			[]string{"driver"},
		)),

		DispatchDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   ns,
				Subsystem:   "driver",
				Name:        "dispatch_duration_seconds",
				Help:        "Time spent running a dispatched process",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"driver"},
		)),

		DispatchFailures: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "driver",
				Name:        "dispatch_failures_total",
				Help:        "Total number of dispatched processes whose runner returned an error",
				ConstLabels: labels,
			},
			[]string{"driver"},
		)),

		SinkRecords: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   "reaper",
				Name:        "sink_records_total",
				Help:        "Total number of reaped records handed to a sink, by result",
				ConstLabels: labels,
			},
			[]string{"sink", "result"},
		)),
	}
}

// register adds c to reg, returning the collector already registered under
// the same descriptor when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
