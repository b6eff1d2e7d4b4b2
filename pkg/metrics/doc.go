// Package metrics provides Prometheus instrumentation for opsched components.
//
// # Overview
//
// The metrics package instruments:
//   - Schedules (queue lengths, admissions, selections, promotions, exits, reaps)
//   - Drivers (ticks, dispatch durations, runner failures)
//   - Reap sinks (records delivered or rejected)
//
// # Quick Start
//
// Schedules implement Instrumentable:
//
//	sched, _ := opsched.New()
//	sched.EnableMetrics(metrics.DefaultConfig())
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	registry := prometheus.NewRegistry()
//	sched.EnableMetrics(metrics.Config{Enabled: true, Registry: registry})
//
// Registering the same collectors twice on one registerer reuses the existing
// collectors, so several schedules can report into a single registry under
// different "schedule" label values.
//
// # Available Metrics
//
//   - opsched_schedule_queue_length{schedule,queue}
//   - opsched_schedule_admitted_total{schedule,priority}
//   - opsched_schedule_selected_total{schedule,queue}
//   - opsched_schedule_promoted_total{schedule}
//   - opsched_schedule_exited_total{schedule}
//   - opsched_schedule_terminated_total{schedule}
//   - opsched_schedule_reaped_total{schedule}
//   - opsched_schedule_low_wait_ticks{schedule}
//   - opsched_driver_ticks_total{driver}
//   - opsched_driver_dispatch_duration_seconds{driver}
//   - opsched_driver_dispatch_failures_total{driver}
//   - opsched_reaper_sink_records_total{sink,result}
//
// Queue label values are "high", "low" and "defunct".
package metrics
