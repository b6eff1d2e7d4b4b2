package opsched

import (
	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
)

// SelectHigh removes and returns the next process from high-ready: the first
// critical process in arrival order if any is queued, the head otherwise.
// The returned process is dispatched with age 0 and may later be admitted
// again or reported through Exited. ErrNoneReady is returned when high-ready
// is empty.
func (s *Schedule) SelectHigh() (*Process, error) {
	if err := s.check("SelectHigh"); err != nil {
		return nil, err
	}
	if s.high.length == 0 {
		return nil, s.opError("SelectHigh", oserrors.ErrNoneReady)
	}

	h, ok := s.high.removeFirst((*Process).IsCritical)
	if !ok {
		h, _ = s.high.popFront()
	}
	return s.dispatch(h, s.high), nil
}

// SelectLow removes and returns the head of low-ready with age reset to 0.
// ErrNoneReady is returned when low-ready is empty.
func (s *Schedule) SelectLow() (*Process, error) {
	if err := s.check("SelectLow"); err != nil {
		return nil, err
	}
	h, ok := s.low.popFront()
	if !ok {
		return nil, s.opError("SelectLow", oserrors.ErrNoneReady)
	}
	return s.dispatch(h, s.low), nil
}

// dispatch releases the node of a process just unlinked from q and hands the
// process to the caller.
func (s *Schedule) dispatch(h handle, q *Queue) *Process {
	p := s.arena.release(h)
	waited := p.age
	p.age = 0
	s.track(p, Dispatched)

	s.logger.Debug("process selected", "pid", p.pid, "priority", p.priority, "queue", q.name, "waited", waited)
	if s.metricsEnabled {
		s.metrics.Selected.WithLabelValues(s.name, q.name).Inc()
		if q == s.low {
			s.metrics.WaitTicks.WithLabelValues(s.name).Observe(float64(waited))
		}
		s.observeLengths()
	}
	return p
}
