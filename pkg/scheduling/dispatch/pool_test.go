package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vnykmshr/opsched/internal/testutil"
	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newProcess(t *testing.T, pid opsched.PID) *opsched.Process {
	t.Helper()
	p, err := opsched.NewProcess("true", pid, false, false)
	testutil.AssertNoError(t, err)
	return p
}

// collector gathers results delivered through OnComplete.
type collector struct {
	mu      sync.Mutex
	results []Result
	count   atomic.Int32
}

func (c *collector) add(r Result) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
	c.count.Add(1)
}

func (c *collector) snapshot() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Result(nil), c.results...)
}

func TestNewWithConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "missing runner", config: Config{}},
		{name: "negative workers", config: Config{Workers: -1, Runner: Simulated(0)}},
		{name: "negative queue", config: Config{QueueSize: -2, Runner: Simulated(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithConfig(tt.config)
			testutil.AssertErrorIs(t, err, oserrors.ErrInvalidConfiguration)
		})
	}
}

func TestPool_Defaults(t *testing.T) {
	p, err := New(Simulated(0))
	testutil.AssertNoError(t, err)
	defer func() { <-p.Shutdown() }()

	testutil.AssertEqual(t, p.Size(), 1)
	testutil.AssertEqual(t, p.QueueSize(), 0)
	testutil.AssertEqual(t, p.ActiveWorkers(), 0)
}

func TestPool_RunsJobsInOrder(t *testing.T) {
	var c collector
	p, err := NewWithConfig(Config{
		Runner:     Simulated(3),
		QueueSize:  8,
		OnComplete: c.add,
		Logger:     quietLogger(),
	})
	testutil.AssertNoError(t, err)

	for pid := opsched.PID(1); pid <= 5; pid++ {
		testutil.AssertNoError(t, p.Submit(context.Background(), Job{Process: newProcess(t, pid)}))
	}
	<-p.Shutdown()

	results := c.snapshot()
	testutil.AssertEqual(t, len(results), 5)
	for i, r := range results {
		testutil.AssertEqual(t, r.Job.Process.PID(), opsched.PID(i+1))
		testutil.AssertEqual(t, r.ExitCode, 3)
		testutil.AssertNoError(t, r.Error)
		testutil.AssertEqual(t, r.WorkerID, 0)
	}
	testutil.AssertEqual(t, p.TotalSubmitted(), int64(5))
	testutil.AssertEqual(t, p.TotalCompleted(), int64(5))
}

func TestPool_OneProcessAtATime(t *testing.T) {
	var running, peak atomic.Int32
	runner := RunnerFunc(func(ctx context.Context, _ *opsched.Process) (int, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return 0, nil
	})

	var c collector
	p, err := NewWithConfig(Config{Runner: runner, QueueSize: 4, OnComplete: c.add, Logger: quietLogger()})
	testutil.AssertNoError(t, err)

	for pid := opsched.PID(1); pid <= 4; pid++ {
		testutil.AssertNoError(t, p.Submit(context.Background(), Job{Process: newProcess(t, pid)}))
	}
	<-p.Shutdown()

	testutil.AssertEqual(t, peak.Load(), int32(1))
	testutil.AssertEqual(t, c.count.Load(), int32(4))
}

func TestPool_PanicBecomesFailure(t *testing.T) {
	var c collector
	p, err := NewWithConfig(Config{
		Runner: RunnerFunc(func(context.Context, *opsched.Process) (int, error) {
			panic("boom")
		}),
		OnComplete: c.add,
		Logger:     quietLogger(),
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, p.Submit(context.Background(), Job{Process: newProcess(t, 1)}))
	<-p.Shutdown()

	results := c.snapshot()
	testutil.AssertEqual(t, len(results), 1)
	testutil.AssertError(t, results[0].Error)
	testutil.AssertEqual(t, results[0].ExitCode, -1)
}

func TestPool_TaskTimeout(t *testing.T) {
	var c collector
	p, err := NewWithConfig(Config{
		Runner: RunnerFunc(func(ctx context.Context, _ *opsched.Process) (int, error) {
			<-ctx.Done()
			return -1, ctx.Err()
		}),
		TaskTimeout: 20 * time.Millisecond,
		OnComplete:  c.add,
		Logger:      quietLogger(),
	})
	testutil.AssertNoError(t, err)

	testutil.AssertNoError(t, p.Submit(context.Background(), Job{Process: newProcess(t, 1)}))
	<-p.Shutdown()

	results := c.snapshot()
	testutil.AssertEqual(t, len(results), 1)
	testutil.AssertErrorIs(t, results[0].Error, context.DeadlineExceeded)
}

func TestPool_JobContextCancel(t *testing.T) {
	var c collector
	started := make(chan struct{})
	p, err := NewWithConfig(Config{
		Runner: RunnerFunc(func(ctx context.Context, _ *opsched.Process) (int, error) {
			close(started)
			<-ctx.Done()
			return -1, ctx.Err()
		}),
		OnComplete: c.add,
		Logger:     quietLogger(),
	})
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	testutil.AssertNoError(t, p.Submit(context.Background(), Job{Process: newProcess(t, 1), Context: ctx}))
	<-started
	testutil.AssertEqual(t, p.ActiveWorkers(), 1)
	cancel()
	<-p.Shutdown()

	testutil.AssertErrorIs(t, c.snapshot()[0].Error, context.Canceled)
}

func TestPool_SubmitRejections(t *testing.T) {
	p, err := NewWithConfig(Config{Runner: Simulated(0), Logger: quietLogger()})
	testutil.AssertNoError(t, err)

	err = p.Submit(context.Background(), Job{})
	testutil.AssertErrorIs(t, err, oserrors.ErrInvalidArgument)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Submit(ctx, Job{Process: newProcess(t, 1)})
	testutil.AssertErrorIs(t, err, context.Canceled)

	<-p.Shutdown()
	<-p.Shutdown()

	err = p.Submit(context.Background(), Job{Process: newProcess(t, 2)})
	testutil.AssertErrorIs(t, err, oserrors.ErrClosed)
	testutil.AssertEqual(t, p.TotalSubmitted(), int64(0))
}

func TestPool_SubmitBlocksUntilContextDone(t *testing.T) {
	release := make(chan struct{})
	p, err := NewWithConfig(Config{
		Runner: RunnerFunc(func(context.Context, *opsched.Process) (int, error) {
			<-release
			return 0, nil
		}),
		QueueSize: 1,
		Logger:    quietLogger(),
	})
	testutil.AssertNoError(t, err)
	defer func() {
		close(release)
		<-p.Shutdown()
	}()

	// one running, one queued, the third waits for space
	testutil.AssertNoError(t, p.Submit(context.Background(), Job{Process: newProcess(t, 1)}))
	testutil.Eventually(t, func() bool { return p.ActiveWorkers() == 1 }, time.Second, time.Millisecond)
	testutil.AssertNoError(t, p.Submit(context.Background(), Job{Process: newProcess(t, 2)}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = p.Submit(ctx, Job{Process: newProcess(t, 3)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
