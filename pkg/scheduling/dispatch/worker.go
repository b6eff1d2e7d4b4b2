package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// work drains the job queue until it is closed.
func (p *Pool) work(id int) {
	defer p.workerWg.Done()

	for job := range p.jobs {
		p.active.Add(1)
		result := p.execute(id, job)
		p.active.Add(-1)
		p.completed.Add(1)

		if p.config.OnComplete != nil {
			p.config.OnComplete(result)
		}
	}
}

// execute runs a single job, turning a panic into a failed result.
func (p *Pool) execute(id int, job Job) (result Result) {
	start := time.Now()
	result = Result{Job: job, ExitCode: -1, WorkerID: id}

	defer func() {
		if r := recover(); r != nil {
			result.ExitCode = -1
			result.Error = fmt.Errorf("runner panicked: %v\nStack trace:\n%s", r, debug.Stack())
			p.logger.Error("runner panicked", "pid", job.Process.PID(), "worker", id, "panic", r)
		}
		result.Duration = time.Since(start)
	}()

	ctx := job.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if p.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.TaskTimeout)
		defer cancel()
	}

	p.logger.Debug("running process", "pid", job.Process.PID(), "worker", id)
	result.ExitCode, result.Error = p.config.Runner.Run(ctx, job.Process)
	return result
}
