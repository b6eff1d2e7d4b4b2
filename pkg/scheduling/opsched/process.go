package opsched

import (
	"fmt"
	"strings"

	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
)

// PID is the caller-assigned identity of a process. It is opaque to the
// schedule and unique among the live processes of one Schedule.
type PID int

// Priority is the scheduling class of a process.
type Priority uint8

const (
	// PriorityNormal processes wait in high-ready and are served FIFO.
	PriorityNormal Priority = iota
	// PriorityLow processes wait in low-ready and age until promoted.
	PriorityLow
	// PriorityCritical processes wait in high-ready and are served before
	// any normal process queued there.
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityCritical:
		return "critical"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// State is the lifecycle state of a process.
type State uint8

const (
	// StateReady marks a process that may be selected to run.
	StateReady State = iota
	// StateDefunct marks a process that exited or was terminated.
	StateDefunct
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDefunct:
		return "defunct"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Process is a single schedulable unit. Its fields change only through
// Schedule operations.
type Process struct {
	pid      PID
	command  string
	priority Priority
	state    State
	exitCode int
	age      int
}

// NewProcess creates a ready process with age 0. The command is copied, so
// the process never shares memory with the caller's string. Requesting both
// low and critical priority fails with ErrConflictingPriority.
func NewProcess(command string, pid PID, isLow, isCritical bool) (*Process, error) {
	if isLow && isCritical {
		return nil, oserrors.NewOperationError("opsched", "NewProcess", oserrors.ErrConflictingPriority).
			WithContext(fmt.Sprintf("pid %d", pid))
	}

	priority := PriorityNormal
	switch {
	case isLow:
		priority = PriorityLow
	case isCritical:
		priority = PriorityCritical
	}

	return &Process{
		pid:      pid,
		command:  strings.Clone(command),
		priority: priority,
		state:    StateReady,
	}, nil
}

// PID returns the process identity.
func (p *Process) PID() PID { return p.pid }

// Command returns the process's own copy of its command string.
func (p *Process) Command() string { return p.command }

// Priority returns the scheduling class.
func (p *Process) Priority() Priority { return p.priority }

// State returns the lifecycle state.
func (p *Process) State() State { return p.state }

// Age returns the number of promotion ticks the process has spent in
// low-ready since it last entered it.
func (p *Process) Age() int { return p.age }

// ExitCode returns the recorded exit code. ok is false until the process is
// defunct.
func (p *Process) ExitCode() (code int, ok bool) {
	if p.state != StateDefunct {
		return 0, false
	}
	return p.exitCode, true
}

// IsLow reports whether the process belongs to the low priority class.
func (p *Process) IsLow() bool { return p.priority == PriorityLow }

// IsCritical reports whether the process belongs to the critical priority class.
func (p *Process) IsCritical() bool { return p.priority == PriorityCritical }

// Info returns a copy of the process fields.
func (p *Process) Info() ProcessInfo {
	code, _ := p.ExitCode()
	return ProcessInfo{
		PID:      p.pid,
		Command:  p.command,
		Priority: p.priority,
		State:    p.state,
		Age:      p.age,
		ExitCode: code,
	}
}

func (p *Process) String() string {
	return fmt.Sprintf("pid=%d priority=%s state=%s age=%d cmd=%q", p.pid, p.priority, p.state, p.age, p.command)
}

func (p *Process) markReady() {
	p.state = StateReady
	p.exitCode = 0
}

func (p *Process) markDefunct(code int) {
	p.state = StateDefunct
	p.exitCode = code
	p.age = 0
}

// ProcessInfo is a point-in-time copy of a process.
type ProcessInfo struct {
	PID      PID
	Command  string
	Priority Priority
	State    State
	Age      int
	ExitCode int
}
