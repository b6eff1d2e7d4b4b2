package opsched

import (
	"testing"

	"github.com/vnykmshr/opsched/internal/testutil"
	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
)

func TestPromote_AfterMaxAgeTicks(t *testing.T) {
	s := newTestSchedule(t, 2)
	d := admit(t, s, 'D', PriorityLow)

	testutil.AssertNoError(t, s.Promote())
	_, loc, _ := s.Lookup('D')
	testutil.AssertEqual(t, loc, InLowReady)
	testutil.AssertEqual(t, d.Age(), 1)

	testutil.AssertNoError(t, s.Promote())
	_, loc, _ = s.Lookup('D')
	testutil.AssertEqual(t, loc, InHighReady)
	testutil.AssertEqual(t, d.Age(), 0)
	testutil.AssertEqual(t, d.Priority(), PriorityLow)
	assertValid(t, s)

	p, err := s.SelectHigh()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p, d)
}

func TestPromote_EmptyLowIsNoop(t *testing.T) {
	s := newTestSchedule(t, 1)
	admit(t, s, 1, PriorityNormal)

	testutil.AssertNoError(t, s.Promote())

	n, _ := s.Len(HighReady)
	testutil.AssertEqual(t, n, 1)
	assertValid(t, s)
}

func TestPromote_AgesAndMovesInOrder(t *testing.T) {
	s := newTestSchedule(t, 3)
	admit(t, s, 100, PriorityNormal)

	// 1 and 2 wait two ticks before 3 and 4 arrive
	admit(t, s, 1, PriorityLow)
	admit(t, s, 2, PriorityLow)
	testutil.AssertNoError(t, s.Promote())
	testutil.AssertNoError(t, s.Promote())
	admit(t, s, 3, PriorityLow)
	admit(t, s, 4, PriorityLow)

	before := s.Snapshot().Low
	testutil.AssertNoError(t, s.Promote())
	after := s.Snapshot()

	for _, info := range before {
		if info.Age+1 >= s.MaxAge() {
			continue
		}
		found := false
		for _, now := range after.Low {
			if now.PID == info.PID {
				found = true
				testutil.AssertEqual(t, now.Age, info.Age+1)
			}
		}
		if !found {
			t.Errorf("pid %d should have stayed in low-ready", info.PID)
		}
	}

	testutil.AssertSliceEqual(t, pidsOf(after.High), []PID{100, 1, 2})
	testutil.AssertSliceEqual(t, pidsOf(after.Low), []PID{3, 4})
	for _, info := range after.High {
		testutil.AssertEqual(t, info.Age, 0)
	}
	assertValid(t, s)
}

func TestPromote_MaxAgeOne(t *testing.T) {
	s := newTestSchedule(t, 1)
	for pid := PID(1); pid <= 3; pid++ {
		admit(t, s, pid, PriorityLow)
	}

	testutil.AssertNoError(t, s.Promote())

	n, _ := s.Len(LowReady)
	testutil.AssertEqual(t, n, 0)
	high, _ := s.Queue(HighReady)
	testutil.AssertSliceEqual(t, high.PIDs(), []PID{1, 2, 3})
}

func TestPromote_SelectLowResetsAge(t *testing.T) {
	s := newTestSchedule(t, 5)
	p := admit(t, s, 1, PriorityLow)
	testutil.AssertNoError(t, s.Promote())
	testutil.AssertNoError(t, s.Promote())
	testutil.AssertEqual(t, p.Age(), 2)

	got, err := s.SelectLow()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, got.Age(), 0)

	// re-admitted processes start aging from zero
	testutil.AssertNoError(t, s.Admit(got))
	testutil.AssertNoError(t, s.Promote())
	testutil.AssertEqual(t, got.Age(), 1)
}

func TestPromote_ClosedSchedule(t *testing.T) {
	s := newTestSchedule(t, 2)
	s.Destroy()
	testutil.AssertErrorIs(t, s.Promote(), oserrors.ErrClosed)

	var nilSchedule *Schedule
	testutil.AssertErrorIs(t, nilSchedule.Promote(), oserrors.ErrInvalidArgument)
}
