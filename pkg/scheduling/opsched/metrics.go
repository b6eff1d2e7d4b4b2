package opsched

import (
	"github.com/vnykmshr/opsched/pkg/metrics"
)

var _ metrics.Instrumentable = (*Schedule)(nil)

// EnableMetrics enables metrics collection.
func (s *Schedule) EnableMetrics(config metrics.Config) error {
	if err := s.check("EnableMetrics"); err != nil {
		return err
	}
	if !config.Enabled {
		s.metricsEnabled = false
		return nil
	}

	s.metrics = metrics.ForConfig(config)
	s.metricsEnabled = true
	s.observeLengths()
	return nil
}

// DisableMetrics disables metrics collection.
func (s *Schedule) DisableMetrics() {
	s.metricsEnabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (s *Schedule) MetricsEnabled() bool {
	return s.metricsEnabled
}

func (s *Schedule) observeLengths() {
	s.metrics.QueueLength.WithLabelValues(s.name, s.high.name).Set(float64(s.high.length))
	s.metrics.QueueLength.WithLabelValues(s.name, s.low.name).Set(float64(s.low.length))
	s.metrics.QueueLength.WithLabelValues(s.name, s.defunct.name).Set(float64(s.defunct.length))
}
