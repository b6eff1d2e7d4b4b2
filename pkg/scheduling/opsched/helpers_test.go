package opsched

import (
	"io"
	"log/slog"
	"testing"

	"github.com/vnykmshr/opsched/internal/testutil"
)

// newTestSchedule builds a quiet schedule with the given promotion threshold.
func newTestSchedule(t *testing.T, maxAge int) *Schedule {
	t.Helper()
	s, err := NewWithConfig(Config{
		Name:   t.Name(),
		MaxAge: maxAge,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	testutil.AssertNoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

// admit creates and admits a process, failing the test on error.
func admit(t *testing.T, s *Schedule, pid PID, priority Priority) *Process {
	t.Helper()
	p, err := NewProcess("cmd", pid, priority == PriorityLow, priority == PriorityCritical)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, s.Admit(p))
	assertValid(t, s)
	return p
}

func assertValid(t *testing.T, s *Schedule) {
	t.Helper()
	if err := s.Validate(); err != nil {
		t.Fatalf("schedule invariants broken: %v", err)
	}
}

func pidsOf(infos []ProcessInfo) []PID {
	out := make([]PID, len(infos))
	for i, info := range infos {
		out[i] = info.PID
	}
	return out
}
