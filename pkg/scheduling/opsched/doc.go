/*
Package opsched is a non-preemptive, software-simulated process scheduler core.

A Schedule tracks externally created processes through a ready, aging and
termination lifecycle across three priority classes and three queues:

  - high-ready: normal and critical processes awaiting selection
  - low-ready: low priority processes awaiting selection or promotion
  - defunct: processes that exited or were terminated, kept until reaped

The schedule is passive. An external driver creates processes, admits them,
calls the selectors and the promotion sweep on its own cadence, and reports
exits and terminations back.

Basic Usage:

	sched, err := opsched.NewWithConfig(opsched.Config{Name: "batch", MaxAge: 3})
	if err != nil {
		return err
	}
	defer sched.Destroy()

	p, err := opsched.NewProcess("make test", 1001, false, true) // critical
	if err != nil {
		return err
	}
	sched.Admit(p)

	for {
		sched.Promote()

		next, err := sched.SelectHigh()
		if errors.IsNoneReady(err) {
			next, err = sched.SelectLow()
		}
		if err != nil {
			break
		}
		code := run(next)
		sched.Exited(next, code)
	}

Selection:

SelectHigh serves the first critical process in arrival order, wherever it
sits in high-ready, and falls back to the head when no critical process is
queued. SelectLow always serves the head of low-ready.

Aging:

Each Promote call ages every low-ready process by one tick and moves those
that reached Config.MaxAge to the tail of high-ready, head to tail, so a
steady stream of normal and critical arrivals cannot starve low priority work.

Ownership:

All three queues link nodes of one arena by index. A process is linked in at
most one queue at a time; moving it is an unlink followed by a relink of the
same node. Selected processes are linked nowhere until they are admitted
again or reported through Exited.

Errors:

Failures are reported as *errors.OperationError values wrapping the sentinels
of pkg/common/errors (ErrInvalidArgument, ErrAllocationFailure,
ErrConflictingPriority, ErrNotFound, ErrNoneReady, ErrClosed). A failed
operation leaves the schedule unchanged and usable.

Thread Safety:

A Schedule performs no internal locking. Serialize all calls when sharing
one between goroutines; pkg/scheduling/driver does so with a single mutex.
*/
package opsched
