/*
Package opsched provides a non-preemptive priority scheduler core with an
optional driver for running real or simulated processes.

Scheduling (pkg/scheduling):
  - opsched: the schedule. High-ready, low-ready and defunct queues with
    critical-first selection and aging of low priority processes
  - dispatch: fixed worker pool that runs selected processes
  - driver: tick loop that ages, dispatches and reaps a schedule

Reaping (pkg/reaper):
  - log, Redis list or Redis stream sinks for the outcome of defunct processes

Observability (pkg/metrics):
  - Prometheus collectors for queue lengths, transitions and dispatch timings

Example usage:

	import "github.com/vnykmshr/opsched/pkg/scheduling/opsched"

	s, _ := opsched.NewWithConfig(opsched.Config{MaxAge: 3})
	defer s.Destroy()

	p, _ := opsched.NewProcess("make test", 1, false, true)
	_ = s.Admit(p)

	_ = s.Promote()
	next, err := s.SelectHigh()
	if err == nil {
		_ = s.Exited(next, 0)
	}

The opsched command (cmd/opsched) runs YAML workloads through a driver.
*/
package opsched
