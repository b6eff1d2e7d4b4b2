// Package dispatch runs processes selected from a schedule.
//
// A Pool owns a fixed set of workers, one by default, so a dispatched process
// runs to completion before the next one starts. Each Job carries the selected
// process and a context that cancels it; every run produces a Result with the
// exit code, which the owner typically reports back through
// Schedule.Exited:
//
//	pool, err := dispatch.NewWithConfig(dispatch.Config{
//		Runner: dispatch.ExecRunner{},
//		OnComplete: func(r dispatch.Result) {
//			mu.Lock()
//			defer mu.Unlock()
//			_ = sched.Exited(r.Job.Process, r.ExitCode)
//		},
//	})
//
// Runners decide what running a process means. ExecRunner passes the command
// to a shell and maps the exit status; Simulated finishes at once with a fixed
// code.
package dispatch
