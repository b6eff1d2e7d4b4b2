package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/opsched/pkg/metrics"
	"github.com/vnykmshr/opsched/pkg/reaper"
	"github.com/vnykmshr/opsched/pkg/scheduling/dispatch"
	"github.com/vnykmshr/opsched/pkg/scheduling/driver"
	"github.com/vnykmshr/opsched/pkg/scheduling/opsched"
)

type runOptions struct {
	workload    string
	maxAge      int
	tick        time.Duration
	cron        string
	timeout     time.Duration
	dryRun      bool
	redisAddr   string
	redisKey    string
	redisStream bool
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a workload until every process has finished",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.workload, "workload", "w", "", "workload YAML file")
	f.IntVar(&opts.maxAge, "max-age", 0, "promotion threshold in ticks, overrides the workload")
	f.DurationVar(&opts.tick, "tick", 0, "tick interval, overrides the workload")
	f.StringVar(&opts.cron, "cron", "", "cron expression driving ticks, overrides the workload")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "give up after this long")
	f.BoolVar(&opts.dryRun, "dry-run", false, "report each process's exit_code instead of running it")
	f.StringVar(&opts.redisAddr, "redis", "", "also export reaped processes to this Redis address")
	f.StringVar(&opts.redisKey, "redis-key", reaper.DefaultKey, "Redis key for reaped processes")
	f.BoolVar(&opts.redisStream, "redis-stream", false, "write a Redis stream instead of a list")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	_ = cmd.MarkFlagRequired("workload")

	return cmd
}

func runWorkload(cmd *cobra.Command, opts runOptions) error {
	w, err := loadWorkload(opts.workload)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("max-age") {
		w.MaxAge = opts.maxAge
	}
	if cmd.Flags().Changed("tick") {
		w.Tick = opts.tick
	}
	if cmd.Flags().Changed("cron") {
		w.Cron = opts.cron
	}

	logger, err := newLogger(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	summary := &summarySink{}
	sinks := []reaper.Sink{reaper.NewLogSink(logger).WithLevel(slog.LevelDebug), summary}
	if opts.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis %s: %w", opts.redisAddr, err)
		}

		mode := reaper.ModeList
		if opts.redisStream {
			mode = reaper.ModeStream
		}
		rs, err := reaper.NewRedisSink(reaper.RedisConfig{Redis: rdb, Key: opts.redisKey, Mode: mode})
		if err != nil {
			return err
		}
		sinks = append(sinks, rs)
	}

	metricsCfg := metrics.Config{}
	if opts.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		metricsCfg = metrics.Config{Enabled: true, Registry: reg}
		srv := &http.Server{Addr: opts.metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	var runner dispatch.Runner = dispatch.ExecRunner{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
	dryCodes := make(map[opsched.PID]int, len(w.Processes))
	if opts.dryRun {
		runner = dispatch.RunnerFunc(func(ctx context.Context, p *opsched.Process) (int, error) {
			if err := ctx.Err(); err != nil {
				return -1, err
			}
			return dryCodes[p.PID()], nil
		})
	}

	d, err := driver.NewWithConfig(driver.Config{
		Name:        w.Name,
		Schedule:    opsched.Config{MaxAge: w.MaxAge},
		Tick:        w.Tick,
		Cron:        w.Cron,
		ReapEvery:   w.ReapEvery,
		Workers:     w.Workers,
		Runner:      runner,
		TaskTimeout: w.TaskTimeout,
		Sink:        reaper.NewMultiSink(sinks...),
		Logger:      logger,
		Metrics:     metricsCfg,
	})
	if err != nil {
		return err
	}

	// every process is submitted before the first tick, so dryCodes is not
	// written while runners read it
	for _, ps := range w.Processes {
		pid, err := d.Submit(ps.Command, ps.Low, ps.Critical)
		if err != nil {
			<-d.Stop()
			return err
		}
		dryCodes[pid] = ps.ExitCode
		if ps.KillAfterTicks > 0 {
			if err := d.KillAfter(pid, ps.KillAfterTicks, 137); err != nil {
				<-d.Stop()
				return err
			}
		}
	}

	if err := d.Start(); err != nil {
		<-d.Stop()
		return err
	}
	waitErr := d.Wait(ctx)
	<-d.Stop()

	printSummary(cmd.OutOrStdout(), d.Stats(), summary.sorted())
	if waitErr != nil {
		return fmt.Errorf("workload %s did not finish: %w", w.Name, waitErr)
	}
	return nil
}

// summarySink keeps reaped entries for the final report.
type summarySink struct {
	mu      sync.Mutex
	entries []reaper.Entry
}

func (s *summarySink) Record(_ context.Context, e reaper.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *summarySink) sorted() []reaper.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]reaper.Entry(nil), s.entries...)
	sortEntries(out)
	return out
}
