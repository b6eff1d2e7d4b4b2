package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
	"github.com/vnykmshr/opsched/pkg/common/validation"
	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

// Job is one selected process handed to the pool.
type Job struct {
	// Process is the dispatched process. It stays owned by the caller.
	Process *opsched.Process

	// Context bounds the run. Cancelling it stops the runner.
	Context context.Context
}

// Result reports how a job ended.
type Result struct {
	// Job is the job that was executed
	Job Job

	// ExitCode is the code reported by the runner, -1 when it did not run to completion
	ExitCode int

	// Error is set when the runner failed, panicked or was cancelled
	Error error

	// Duration is how long the runner took
	Duration time.Duration

	// WorkerID identifies which worker executed the job
	WorkerID int
}

// Config holds configuration options for a dispatch pool.
type Config struct {
	// Workers is the number of processes that may run at once (default: 1).
	Workers int

	// QueueSize is the number of jobs that may wait for a worker (default: Workers).
	QueueSize int

	// Runner executes each job. Required.
	Runner Runner

	// TaskTimeout bounds every run. Zero means no timeout.
	TaskTimeout time.Duration

	// OnComplete receives every result, on the worker goroutine.
	OnComplete func(Result)

	// Logger receives worker lifecycle records (default: slog.Default()).
	Logger *slog.Logger
}

// Pool runs dispatched processes on a fixed set of workers.
type Pool struct {
	config Config
	logger *slog.Logger

	jobs         chan Job
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	mu         sync.RWMutex
	isShutdown bool

	workerWg  sync.WaitGroup
	active    atomic.Int32
	submitted atomic.Int64
	completed atomic.Int64
}

// New creates a pool with one worker running jobs through runner.
func New(runner Runner) (*Pool, error) {
	return NewWithConfig(Config{Runner: runner})
}

// NewWithConfig creates a pool and starts its workers.
func NewWithConfig(config Config) (*Pool, error) {
	if config.Workers == 0 {
		config.Workers = 1
	}
	if config.QueueSize == 0 {
		config.QueueSize = config.Workers
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	if err := validation.ValidatePositive("dispatch", "workers", config.Workers); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegative("dispatch", "queue_size", config.QueueSize); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotNil("dispatch", "runner", config.Runner); err != nil {
		return nil, err
	}

	p := &Pool{
		config:     config,
		logger:     config.Logger.With("component", "dispatch"),
		jobs:       make(chan Job, config.QueueSize),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		p.workerWg.Add(1)
		go p.work(i)
	}
	return p, nil
}

// Submit queues a job. It blocks while the queue is full, until ctx is done
// or the pool shuts down.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job.Process == nil {
		return oserrors.NewOperationError("dispatch", "Submit", oserrors.ErrInvalidArgument).WithContext("nil process")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if job.Context == nil {
		job.Context = ctx
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.isShutdown {
		return oserrors.NewOperationError("dispatch", "Submit", oserrors.ErrClosed)
	}

	// pre-cancelled contexts never queue
	select {
	case <-ctx.Done():
		return oserrors.NewOperationError("dispatch", "Submit", ctx.Err())
	default:
	}

	select {
	case p.jobs <- job:
		p.submitted.Add(1)
		return nil
	case <-p.shutdownCh:
		return oserrors.NewOperationError("dispatch", "Submit", oserrors.ErrClosed)
	case <-ctx.Done():
		return oserrors.NewOperationError("dispatch", "Submit", ctx.Err())
	}
}

// Shutdown stops accepting jobs, lets queued jobs finish and returns a
// channel closed once every worker has exited.
func (p *Pool) Shutdown() <-chan struct{} {
	p.shutdownOnce.Do(func() {
		close(p.shutdownCh)

		// wait for in-flight Submit calls before closing the queue
		p.mu.Lock()
		p.isShutdown = true
		close(p.jobs)
		p.mu.Unlock()

		go func() {
			p.workerWg.Wait()
			p.logger.Debug("dispatch pool stopped", "completed", p.completed.Load())
			close(p.done)
		}()
	})
	return p.done
}

// Size returns the number of workers.
func (p *Pool) Size() int { return p.config.Workers }

// QueueSize returns the number of jobs waiting for a worker.
func (p *Pool) QueueSize() int { return len(p.jobs) }

// ActiveWorkers returns the number of workers currently running a job.
func (p *Pool) ActiveWorkers() int { return int(p.active.Load()) }

// TotalSubmitted returns the number of jobs accepted.
func (p *Pool) TotalSubmitted() int64 { return p.submitted.Load() }

// TotalCompleted returns the number of jobs that produced a result.
func (p *Pool) TotalCompleted() int64 { return p.completed.Load() }
