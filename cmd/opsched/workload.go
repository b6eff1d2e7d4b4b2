package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
	"github.com/vnykmshr/opsched/pkg/common/validation"
)

// Workload describes a batch of processes to run through one driver.
type Workload struct {
	Name        string        `yaml:"name"`
	MaxAge      int           `yaml:"max_age"`
	Tick        time.Duration `yaml:"tick"`
	Cron        string        `yaml:"cron"`
	ReapEvery   int           `yaml:"reap_every"`
	Workers     int           `yaml:"workers"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
	Processes   []ProcessSpec `yaml:"processes"`
}

// ProcessSpec is one process of a workload.
type ProcessSpec struct {
	Command  string `yaml:"command"`
	Low      bool   `yaml:"low"`
	Critical bool   `yaml:"critical"`

	// KillAfterTicks kills the process this many ticks after submission
	// unless it already finished. Zero never kills it.
	KillAfterTicks int `yaml:"kill_after_ticks"`

	// ExitCode is reported in dry runs instead of running the command.
	ExitCode int `yaml:"exit_code"`
}

// loadWorkload reads and validates a workload file.
func loadWorkload(path string) (*Workload, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	return parseWorkload(raw)
}

func parseWorkload(raw []byte) (*Workload, error) {
	var w Workload
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse workload: %w", err)
	}
	if w.Name == "" {
		w.Name = "workload"
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate reports every problem in the workload at once.
func (w *Workload) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(validation.ValidateNonNegative("workload", "max_age", w.MaxAge))
	add(validation.ValidateNonNegative("workload", "reap_every", w.ReapEvery))
	add(validation.ValidateNonNegative("workload", "workers", w.Workers))
	if w.Tick < 0 {
		add(validation.ValidatePositiveDuration("workload", "tick", w.Tick))
	}
	if w.TaskTimeout < 0 {
		add(validation.ValidatePositiveDuration("workload", "task_timeout", w.TaskTimeout))
	}
	if len(w.Processes) == 0 {
		add(oserrors.NewValidationError("workload", "processes", 0, "must not be empty").
			WithHint("list at least one process with a command"))
	}

	for i, p := range w.Processes {
		field := fmt.Sprintf("processes[%d]", i)
		add(validation.ValidateNotEmpty("workload", field+".command", p.Command))
		add(validation.ValidateNonNegative("workload", field+".kill_after_ticks", p.KillAfterTicks))
		if p.Low && p.Critical {
			add(oserrors.NewValidationError("workload", field, p.Command, oserrors.ErrConflictingPriority.Error()).
				WithHint("set at most one of low and critical"))
		}
	}
	return errors.Join(errs...)
}

// counts returns the number of low, normal and critical processes.
func (w *Workload) counts() (low, normal, critical int) {
	for _, p := range w.Processes {
		switch {
		case p.Low:
			low++
		case p.Critical:
			critical++
		default:
			normal++
		}
	}
	return low, normal, critical
}
