package opsched

// Promote runs one aging sweep over low-ready. Every low priority process
// ages by one tick; then each process whose age reached MaxAge moves, head
// to tail, to the tail of high-ready with its age reset to 0. An empty
// low-ready is a successful no-op.
func (s *Schedule) Promote() error {
	if err := s.check("Promote"); err != nil {
		return err
	}
	if s.low.length == 0 {
		return nil
	}

	s.low.Each(func(p *Process) bool {
		p.age++
		return true
	})

	moved := s.low.moveMatching(s.high, func(p *Process) bool {
		return p.age >= s.maxAge
	})
	for _, p := range moved {
		waited := p.age
		p.age = 0
		s.track(p, InHighReady)

		s.logger.Debug("process promoted", "pid", p.pid, "waited", waited)
		if s.metricsEnabled {
			s.metrics.WaitTicks.WithLabelValues(s.name).Observe(float64(waited))
		}
	}

	if s.metricsEnabled && len(moved) > 0 {
		s.metrics.Promoted.WithLabelValues(s.name).Add(float64(len(moved)))
		s.observeLengths()
	}
	return nil
}
