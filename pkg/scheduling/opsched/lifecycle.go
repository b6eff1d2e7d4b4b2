package opsched

import (
	"fmt"

	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
)

// Exited records the exit of a process that is no longer linked in a ready
// queue: it becomes defunct with the given exit code and is appended to the
// defunct queue. Exited does not search the ready queues; use Terminated for
// a process that is still queued. A process never admitted counts against
// MaxProcesses like one being admitted.
func (s *Schedule) Exited(p *Process, exitCode int) error {
	if err := s.check("Exited"); err != nil {
		return err
	}
	if p == nil {
		return s.opError("Exited", oserrors.ErrInvalidArgument).WithContext("nil process")
	}
	t, ok := s.live[p.pid]
	switch {
	case ok && (t.proc != p || t.loc != Dispatched):
		return s.opError("Exited", oserrors.ErrInvalidArgument).
			WithContext(fmt.Sprintf("pid %d is %s", p.pid, t.loc))
	case !ok && len(s.live) >= s.maxProcesses:
		return s.opError("Exited", oserrors.ErrAllocationFailure).
			WithContext(fmt.Sprintf("maximum number of processes (%d) reached", s.maxProcesses))
	}

	s.exit(p, exitCode)
	if s.metricsEnabled {
		s.observeLengths()
	}
	return nil
}

// exit moves an unlinked process into the defunct queue.
func (s *Schedule) exit(p *Process, exitCode int) {
	p.markDefunct(exitCode)
	h := s.arena.alloc(p)
	// the node is fresh, so append cannot fail
	_ = s.defunct.append(h)
	s.track(p, InDefunct)

	s.logger.Debug("process exited", "pid", p.pid, "exit_code", exitCode)
	if s.metricsEnabled {
		s.metrics.Exited.WithLabelValues(s.name).Inc()
	}
}

// Terminated ends a process that is still waiting in a ready queue,
// identified only by pid. Low-ready is searched first, then high-ready; the
// process found is unlinked and recorded as exited. ErrNotFound is returned,
// with every queue unchanged, when neither ready queue holds pid.
func (s *Schedule) Terminated(pid PID, exitCode int) error {
	if err := s.check("Terminated"); err != nil {
		return err
	}

	from := s.low
	h, err := s.low.removeByIdentity(pid)
	if err != nil {
		from = s.high
		h, err = s.high.removeByIdentity(pid)
	}
	if err != nil {
		return s.opError("Terminated", err).WithContext(fmt.Sprintf("pid %d in schedule %s", pid, s.name))
	}

	p := s.arena.release(h)
	waited := p.age
	p.age = 0
	s.logger.Debug("process terminated", "pid", pid, "queue", from.name, "waited", waited)
	s.exit(p, exitCode)

	if s.metricsEnabled {
		s.metrics.Terminated.WithLabelValues(s.name).Inc()
		s.observeLengths()
	}
	return nil
}

// Reap drains the defunct queue from the head, handing each process to fn
// before releasing it and forgetting its identity, after which the pid may be
// admitted again. When fn fails the process stays at the head of the defunct
// queue and Reap returns the number reaped so far with the error. A nil fn
// releases every defunct process.
func (s *Schedule) Reap(fn func(*Process) error) (int, error) {
	if err := s.check("Reap"); err != nil {
		return 0, err
	}

	reaped := 0
	defer func() {
		if s.metricsEnabled && reaped > 0 {
			s.metrics.Reaped.WithLabelValues(s.name).Add(float64(reaped))
			s.observeLengths()
		}
	}()

	for s.defunct.head != nilHandle {
		p := s.arena.node(s.defunct.head).proc
		if fn != nil {
			if err := fn(p); err != nil {
				return reaped, s.opError("Reap", err).WithContext(fmt.Sprintf("pid %d", p.pid))
			}
		}
		h, _ := s.defunct.popFront()
		s.arena.release(h)
		delete(s.live, p.pid)
		reaped++

		s.logger.Debug("process reaped", "pid", p.pid)
	}
	return reaped, nil
}
