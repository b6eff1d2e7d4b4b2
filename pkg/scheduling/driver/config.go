package driver

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
	"github.com/vnykmshr/opsched/pkg/common/validation"
	"github.com/vnykmshr/opsched/pkg/metrics"
	"github.com/vnykmshr/opsched/pkg/reaper"
	"github.com/vnykmshr/opsched/pkg/scheduling/dispatch"
	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

const (
	// DefaultTick is the interval between ticks when neither Tick nor Cron is set.
	DefaultTick = 100 * time.Millisecond

	// DefaultReapEvery reaps the defunct queue on every tick.
	DefaultReapEvery = 1
)

// cronParser accepts an optional seconds field and descriptors such as @every.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config holds driver configuration.
type Config struct {
	// Name labels log records and metrics (default: "driver").
	Name string

	// Schedule configures the owned schedule. Its Logger defaults to Logger.
	Schedule opsched.Config

	// Tick is the interval between ticks (default: DefaultTick).
	Tick time.Duration

	// Cron, when set, drives ticks from a cron expression instead of Tick,
	// for example "*/2 * * * * *" or "@every 2s".
	Cron string

	// ReapEvery reaps the defunct queue every N ticks (default: DefaultReapEvery).
	ReapEvery int

	// Workers bounds the processes running at once (default: 1).
	Workers int

	// Runner executes dispatched processes (default: dispatch.ExecRunner{}).
	Runner dispatch.Runner

	// TaskTimeout bounds every run. Zero means no timeout.
	TaskTimeout time.Duration

	// Sink receives reaped entries (default: a LogSink on Logger).
	Sink reaper.Sink

	// Now stamps reaped entries (default: time.Now).
	Now func() time.Time

	// Logger receives driver records (default: slog.Default()).
	Logger *slog.Logger

	// Metrics enables Prometheus collection for the driver, its schedule and sink.
	Metrics metrics.Config
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{
		Name:      "driver",
		Schedule:  opsched.DefaultConfig(),
		Tick:      DefaultTick,
		ReapEvery: DefaultReapEvery,
		Workers:   1,
		Runner:    dispatch.ExecRunner{},
		Now:       time.Now,
		Logger:    slog.Default(),
	}
}

// withDefaults fills zero fields and validates the result.
func (c Config) withDefaults() (Config, cron.Schedule, error) {
	if c.Name == "" {
		c.Name = "driver"
	}
	if c.Tick == 0 {
		c.Tick = DefaultTick
	}
	if c.ReapEvery == 0 {
		c.ReapEvery = DefaultReapEvery
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Runner == nil {
		c.Runner = dispatch.ExecRunner{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Schedule.Logger == nil {
		c.Schedule.Logger = c.Logger
	}
	if c.Schedule.Name == "" {
		c.Schedule.Name = c.Name
	}
	if c.Sink == nil {
		c.Sink = reaper.NewLogSink(c.Logger)
	}

	if err := validation.ValidatePositiveDuration("driver", "tick", c.Tick); err != nil {
		return c, nil, err
	}
	if err := validation.ValidatePositive("driver", "reap_every", c.ReapEvery); err != nil {
		return c, nil, err
	}
	if err := validation.ValidatePositive("driver", "workers", c.Workers); err != nil {
		return c, nil, err
	}
	if err := validation.ValidateNonNegative("driver", "task_timeout", int(c.TaskTimeout)); err != nil {
		return c, nil, err
	}

	var sched cron.Schedule
	if c.Cron != "" {
		var err error
		sched, err = cronParser.Parse(c.Cron)
		if err != nil {
			return c, nil, oserrors.NewValidationError("driver", "cron", c.Cron, err.Error()).
				WithHint("use a cron expression like \"*/5 * * * * *\" or \"@every 1s\"")
		}
	}
	return c, sched, nil
}
