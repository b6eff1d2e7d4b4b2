package opsched

import (
	"testing"

	"github.com/vnykmshr/opsched/internal/testutil"
	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
)

func TestNewProcess(t *testing.T) {
	tests := []struct {
		name       string
		isLow      bool
		isCritical bool
		want       Priority
		wantErr    error
	}{
		{"normal", false, false, PriorityNormal, nil},
		{"low", true, false, PriorityLow, nil},
		{"critical", false, true, PriorityCritical, nil},
		{"low and critical", true, true, 0, oserrors.ErrConflictingPriority},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProcess("sleep 1", 42, tt.isLow, tt.isCritical)
			if tt.wantErr != nil {
				testutil.AssertErrorIs(t, err, tt.wantErr)
				if p != nil {
					t.Fatal("no process should be returned on error")
				}
				return
			}

			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, p.PID(), PID(42))
			testutil.AssertEqual(t, p.Command(), "sleep 1")
			testutil.AssertEqual(t, p.Priority(), tt.want)
			testutil.AssertEqual(t, p.State(), StateReady)
			testutil.AssertEqual(t, p.Age(), 0)
			testutil.AssertEqual(t, p.IsLow(), tt.isLow)
			testutil.AssertEqual(t, p.IsCritical(), tt.isCritical)

			if _, ok := p.ExitCode(); ok {
				t.Error("exit code should be unset while ready")
			}
		})
	}
}

func TestNewProcess_CommandIsCopied(t *testing.T) {
	buf := []byte("echo original")
	p, err := NewProcess(string(buf), 1, false, false)
	testutil.AssertNoError(t, err)

	copy(buf, "rm -rf /tmp/x")
	testutil.AssertEqual(t, p.Command(), "echo original")
}

func TestNewProcess_EmptyCommand(t *testing.T) {
	p, err := NewProcess("", 7, false, false)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, p.Command(), "")
}

func TestProcess_Strings(t *testing.T) {
	testutil.AssertEqual(t, PriorityNormal.String(), "normal")
	testutil.AssertEqual(t, PriorityLow.String(), "low")
	testutil.AssertEqual(t, PriorityCritical.String(), "critical")
	testutil.AssertEqual(t, Priority(9).String(), "priority(9)")
	testutil.AssertEqual(t, StateReady.String(), "ready")
	testutil.AssertEqual(t, StateDefunct.String(), "defunct")

	p, _ := NewProcess("ls", 3, true, false)
	testutil.AssertEqual(t, p.String(), `pid=3 priority=low state=ready age=0 cmd="ls"`)
}

func TestProcess_DefunctExitCode(t *testing.T) {
	p, _ := NewProcess("false", 9, false, false)
	p.age = 4
	p.markDefunct(1)

	code, ok := p.ExitCode()
	testutil.AssertEqual(t, ok, true)
	testutil.AssertEqual(t, code, 1)
	testutil.AssertEqual(t, p.Age(), 0)

	info := p.Info()
	testutil.AssertEqual(t, info.State, StateDefunct)
	testutil.AssertEqual(t, info.ExitCode, 1)

	p.markReady()
	if _, ok := p.ExitCode(); ok {
		t.Error("exit code should be cleared when the process is ready again")
	}
}
