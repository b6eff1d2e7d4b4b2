package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
	"github.com/vnykmshr/opsched/pkg/metrics"
	"github.com/vnykmshr/opsched/pkg/reaper"
	"github.com/vnykmshr/opsched/pkg/scheduling/dispatch"
	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

// Stats is a point-in-time view of a driver.
type Stats struct {
	Instance   string
	Ticks      int64
	Submitted  int64
	Dispatched int64
	Completed  int64
	Failed     int64
	Killed     int64
	Reaped     int64
	High       int
	Low        int
	Defunct    int
	Running    int
}

// run tracks one dispatched process until its result arrives.
type run struct {
	cancel context.CancelFunc
	killed bool
	code   int
}

type pendingKill struct {
	pid  opsched.PID
	code int
}

// Driver owns a schedule and advances it on every tick: pending kills are
// applied, low-ready is aged, one process is dispatched when a worker is free
// and the defunct queue is reaped into the sink. All calls into the schedule
// happen under one mutex.
type Driver struct {
	cfg    Config
	cron   cron.Schedule
	id     string
	logger *slog.Logger

	mu       sync.Mutex
	sched    *opsched.Schedule
	pool     *dispatch.Pool
	sink     reaper.Sink
	metrics  *metrics.Registry
	nextPID  opsched.PID
	running  map[opsched.PID]*run
	kills    map[int64][]pendingKill
	stats    Stats
	started  bool
	stopping bool
	closed   bool

	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a driver with default configuration.
func New() (*Driver, error) {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a driver, its schedule and its dispatch pool. The
// driver does not tick until Start is called; Tick advances it by hand.
func NewWithConfig(cfg Config) (*Driver, error) {
	cfg, cronSched, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := cfg.Logger.With("driver", cfg.Name, "instance", id)
	cfg.Schedule.Logger = cfg.Schedule.Logger.With("instance", id)

	sched, err := opsched.NewWithConfig(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		cfg:      cfg,
		cron:     cronSched,
		id:       id,
		logger:   logger,
		sched:    sched,
		sink:     cfg.Sink,
		running:  make(map[opsched.PID]*run),
		kills:    make(map[int64][]pendingKill),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	if cfg.Metrics.Enabled {
		if err := sched.EnableMetrics(cfg.Metrics); err != nil {
			cancel()
			sched.Destroy()
			return nil, err
		}
		d.metrics = metrics.ForConfig(cfg.Metrics)
		d.sink = reaper.WithMetrics(cfg.Name, cfg.Sink, d.metrics)
	}

	d.pool, err = dispatch.NewWithConfig(dispatch.Config{
		Workers:     cfg.Workers,
		QueueSize:   cfg.Workers,
		Runner:      cfg.Runner,
		TaskTimeout: cfg.TaskTimeout,
		OnComplete:  d.complete,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		sched.Destroy()
		return nil, err
	}
	return d, nil
}

// Instance returns the unique id of this driver.
func (d *Driver) Instance() string { return d.id }

func (d *Driver) opError(op string, cause error) *oserrors.OperationError {
	return oserrors.NewOperationError("driver", op, cause).WithContext("driver " + d.cfg.Name)
}

// Submit creates a process for command with the next pid and admits it.
func (d *Driver) Submit(command string, low, critical bool) (opsched.PID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping {
		return 0, d.opError("Submit", oserrors.ErrClosed)
	}

	d.nextPID++
	pid := d.nextPID
	p, err := opsched.NewProcess(command, pid, low, critical)
	if err != nil {
		return 0, err
	}
	if err := d.sched.Admit(p); err != nil {
		return 0, err
	}
	d.stats.Submitted++
	return pid, nil
}

// Kill ends pid with code. A queued process is terminated at once; a running
// one is cancelled and recorded with code when its runner returns.
func (d *Driver) Kill(pid opsched.PID, code int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping {
		return d.opError("Kill", oserrors.ErrClosed)
	}
	return d.kill(pid, code)
}

func (d *Driver) kill(pid opsched.PID, code int) error {
	err := d.sched.Terminated(pid, code)
	if err == nil {
		d.stats.Killed++
		d.logger.Info("process killed", "pid", pid, "exit_code", code)
		return nil
	}
	if !oserrors.IsNotFound(err) {
		return err
	}

	r, ok := d.running[pid]
	if !ok {
		return err
	}
	if !r.killed {
		r.killed = true
		r.code = code
		r.cancel()
		d.stats.Killed++
		d.logger.Info("running process cancelled", "pid", pid, "exit_code", code)
	}
	return nil
}

// KillAfter arranges for pid to be killed with code once the driver has
// ticked afterTicks more times.
func (d *Driver) KillAfter(pid opsched.PID, afterTicks int, code int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping {
		return d.opError("KillAfter", oserrors.ErrClosed)
	}
	if afterTicks <= 0 {
		return d.kill(pid, code)
	}
	due := d.stats.Ticks + int64(afterTicks)
	d.kills[due] = append(d.kills[due], pendingKill{pid: pid, code: code})
	return nil
}

// Tick advances the driver once. ctx bounds dispatch and sink writes.
func (d *Driver) Tick(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping {
		return d.opError("Tick", oserrors.ErrClosed)
	}

	d.stats.Ticks++
	if d.metrics != nil {
		d.metrics.DriverTicks.WithLabelValues(d.cfg.Name).Inc()
	}

	for _, k := range d.kills[d.stats.Ticks] {
		if err := d.kill(k.pid, k.code); err != nil {
			d.logger.Debug("scheduled kill skipped", "pid", k.pid, "error", err)
		}
	}
	delete(d.kills, d.stats.Ticks)

	if err := d.sched.Promote(); err != nil {
		return err
	}
	var dispatchErr, reapErr error
	if len(d.running) < d.cfg.Workers {
		dispatchErr = d.dispatchNext(ctx)
	}
	if d.stats.Ticks%int64(d.cfg.ReapEvery) == 0 {
		reapErr = d.reap(ctx)
	}
	return errors.Join(dispatchErr, reapErr)
}

// dispatchNext hands the next selected process to the pool: high-ready
// first, low-ready when high-ready is empty.
func (d *Driver) dispatchNext(ctx context.Context) error {
	p, err := d.sched.SelectHigh()
	if oserrors.IsNoneReady(err) {
		p, err = d.sched.SelectLow()
	}
	if oserrors.IsNoneReady(err) {
		return nil
	}
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(d.ctx)
	d.running[p.PID()] = &run{cancel: cancel}

	// the queue holds Workers jobs, so this never blocks while running < Workers
	if err := d.pool.Submit(ctx, dispatch.Job{Process: p, Context: runCtx}); err != nil {
		delete(d.running, p.PID())
		cancel()
		if aerr := d.sched.Admit(p); aerr != nil {
			d.logger.Error("process lost after failed dispatch", "pid", p.PID(), "error", aerr)
		}
		return d.opError("Tick", err)
	}

	d.stats.Dispatched++
	d.logger.Debug("process dispatched", "pid", p.PID(), "priority", p.Priority())
	return nil
}

// complete records the result of a run. It is called on a pool worker.
func (d *Driver) complete(res dispatch.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := res.Job.Process
	r, ok := d.running[p.PID()]
	delete(d.running, p.PID())
	if ok {
		r.cancel()
	}

	code := res.ExitCode
	switch {
	case ok && r.killed:
		code = r.code
	case res.Error != nil:
		d.stats.Failed++
		if d.metrics != nil {
			d.metrics.DispatchFailures.WithLabelValues(d.cfg.Name).Inc()
		}
		d.logger.Warn("process failed", "pid", p.PID(), "exit_code", code, "error", res.Error)
	}
	if d.metrics != nil {
		d.metrics.DispatchDuration.WithLabelValues(d.cfg.Name).Observe(res.Duration.Seconds())
	}
	d.stats.Completed++

	if d.closed {
		return
	}
	if err := d.sched.Exited(p, code); err != nil {
		d.logger.Error("could not record exit", "pid", p.PID(), "error", err)
		return
	}
	d.logger.Debug("process finished", "pid", p.PID(), "exit_code", code, "duration", res.Duration)
}

// reap drains the defunct queue into the sink. A sink failure stops the
// drain; the rest is retried on a later tick.
func (d *Driver) reap(ctx context.Context) error {
	n, err := d.sched.Reap(func(p *opsched.Process) error {
		return d.sink.Record(ctx, reaper.NewEntry(p, d.id, d.cfg.Now()))
	})
	d.stats.Reaped += int64(n)
	if err != nil {
		d.logger.Warn("reap incomplete", "reaped", n, "error", err)
		return err
	}
	return nil
}

// Start begins ticking in the background, on the Tick interval or on the
// Cron schedule.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping {
		return d.opError("Start", oserrors.ErrClosed)
	}
	if d.started {
		return fmt.Errorf("driver %s already running, call Stop() first", d.cfg.Name)
	}
	d.started = true

	if d.cron != nil {
		d.logger.Info("driver started", "cron", d.cfg.Cron)
		go d.loopCron()
	} else {
		d.logger.Info("driver started", "tick", d.cfg.Tick)
		go d.loopTicker()
	}
	return nil
}

func (d *Driver) loopTicker() {
	defer close(d.loopDone)

	ticker := time.NewTicker(d.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.safeTick()
		}
	}
}

func (d *Driver) loopCron() {
	defer close(d.loopDone)

	for {
		timer := time.NewTimer(time.Until(d.cron.Next(time.Now())))
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			d.safeTick()
		}
	}
}

// safeTick runs one background tick, keeping the loop alive across errors
// and panics.
func (d *Driver) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tick panicked", "panic", r)
		}
	}()

	if err := d.Tick(d.ctx); err != nil && !errors.Is(err, oserrors.ErrClosed) {
		d.logger.Warn("tick failed", "error", err)
	}
}

// Stop cancels the tick loop and every running process, waits for the pool
// to drain, reaps what is defunct and destroys the schedule. The returned
// channel closes when all of that is done. Stop may be called more than once.
func (d *Driver) Stop() <-chan struct{} {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopping = true
		started := d.started
		d.mu.Unlock()

		d.cancel()

		go func() {
			if started {
				<-d.loopDone
			}
			<-d.pool.Shutdown()

			d.mu.Lock()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := d.reap(ctx); err != nil {
				d.logger.Error("final reap failed", "error", err)
			}
			cancel()
			stats := d.stats
			d.sched.Destroy()
			d.closed = true
			d.mu.Unlock()

			d.logger.Info("driver stopped", "ticks", stats.Ticks, "completed", stats.Completed, "reaped", stats.Reaped)
			close(d.stopped)
		}()
	})
	return d.stopped
}

// Idle reports whether nothing is queued or running.
func (d *Driver) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return true
	}
	high, _ := d.sched.Len(opsched.HighReady)
	low, _ := d.sched.Len(opsched.LowReady)
	return high == 0 && low == 0 && len(d.running) == 0
}

// Wait blocks until the driver is idle or ctx is done.
func (d *Driver) Wait(ctx context.Context) error {
	interval := d.cfg.Tick / 2
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if d.Idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns current counters and queue lengths.
func (d *Driver) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.stats
	s.Instance = d.id
	s.Running = len(d.running)
	if !d.closed {
		s.High, _ = d.sched.Len(opsched.HighReady)
		s.Low, _ = d.sched.Len(opsched.LowReady)
		s.Defunct, _ = d.sched.Len(opsched.Defunct)
	}
	return s
}

// Snapshot copies the schedule's queues.
func (d *Driver) Snapshot() opsched.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sched.Snapshot()
}

// Lookup reports the state of pid and where it is.
func (d *Driver) Lookup(pid opsched.PID) (opsched.ProcessInfo, opsched.Location, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, loc, ok := d.sched.Lookup(pid)
	if !ok {
		return opsched.ProcessInfo{}, loc, false
	}
	return p.Info(), loc, true
}
