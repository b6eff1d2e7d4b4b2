package opsched

import (
	"fmt"
	"log/slog"
	"sort"

	oserrors "github.com/vnykmshr/opsched/pkg/common/errors"
	"github.com/vnykmshr/opsched/pkg/common/validation"
	"github.com/vnykmshr/opsched/pkg/metrics"
)

const (
	// DefaultMaxAge is the promotion threshold used when Config.MaxAge is zero.
	DefaultMaxAge = 5

	// DefaultMaxProcesses bounds the live identities of a schedule when
	// Config.MaxProcesses is zero.
	DefaultMaxProcesses = 10000
)

// QueueKind names one of the three queues of a schedule.
type QueueKind uint8

const (
	// HighReady holds normal and critical processes awaiting selection.
	HighReady QueueKind = iota + 1
	// LowReady holds low priority processes awaiting selection or promotion.
	LowReady
	// Defunct holds processes that exited or were terminated.
	Defunct
)

func (k QueueKind) String() string {
	switch k {
	case HighReady:
		return "high"
	case LowReady:
		return "low"
	case Defunct:
		return "defunct"
	default:
		return fmt.Sprintf("queue(%d)", uint8(k))
	}
}

// Location reports where a tracked identity currently is.
type Location uint8

const (
	// Untracked identities are unknown to the schedule.
	Untracked Location = iota
	// InHighReady processes are linked in high-ready.
	InHighReady
	// InLowReady processes are linked in low-ready.
	InLowReady
	// Dispatched processes were selected and are held by the caller.
	Dispatched
	// InDefunct processes are linked in the defunct queue.
	InDefunct
)

func (l Location) String() string {
	switch l {
	case Untracked:
		return "untracked"
	case InHighReady:
		return "high"
	case InLowReady:
		return "low"
	case Dispatched:
		return "dispatched"
	case InDefunct:
		return "defunct"
	default:
		return fmt.Sprintf("location(%d)", uint8(l))
	}
}

// Config holds schedule configuration.
type Config struct {
	// Name labels log records and metrics (default: "default").
	Name string

	// MaxAge is the promotion threshold: a low priority process whose age
	// reaches MaxAge moves to high-ready (default: DefaultMaxAge).
	MaxAge int

	// MaxProcesses bounds the identities tracked at once, from admission until
	// reaping (default: DefaultMaxProcesses).
	MaxProcesses int

	// Logger receives debug records for every transition (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultConfig returns the default schedule configuration.
func DefaultConfig() Config {
	return Config{
		Name:         "default",
		MaxAge:       DefaultMaxAge,
		MaxProcesses: DefaultMaxProcesses,
		Logger:       slog.Default(),
	}
}

type tracked struct {
	proc *Process
	loc  Location
}

// Schedule aggregates the high-ready, low-ready and defunct queues and is the
// entry point for every operation. It never initiates work; an external
// driver calls into it.
//
// A Schedule is not safe for concurrent use. Callers that share one across
// goroutines must serialize every call, for example with a single mutex.
type Schedule struct {
	name         string
	maxAge       int
	maxProcesses int
	logger       *slog.Logger

	arena   *arena
	high    *Queue
	low     *Queue
	defunct *Queue
	live    map[PID]*tracked
	closed  bool

	metrics        *metrics.Registry
	metricsEnabled bool
}

// New creates a schedule with default configuration.
func New() (*Schedule, error) {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a schedule with custom configuration. Zero fields
// take their defaults.
func NewWithConfig(cfg Config) (*Schedule, error) {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxProcesses == 0 {
		cfg.MaxProcesses = DefaultMaxProcesses
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := validation.ValidatePositive("opsched", "max_age", cfg.MaxAge); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("opsched", "max_processes", cfg.MaxProcesses); err != nil {
		return nil, err
	}

	a := newArena()
	return &Schedule{
		name:         cfg.Name,
		maxAge:       cfg.MaxAge,
		maxProcesses: cfg.MaxProcesses,
		logger:       cfg.Logger.With("schedule", cfg.Name),
		arena:        a,
		high:         newQueue(HighReady.String(), a),
		low:          newQueue(LowReady.String(), a),
		defunct:      newQueue(Defunct.String(), a),
		live:         make(map[PID]*tracked),
	}, nil
}

// NewWithMetrics creates a schedule with metrics collection enabled.
func NewWithMetrics(cfg Config, metricsCfg metrics.Config) (*Schedule, error) {
	s, err := NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.EnableMetrics(metricsCfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the schedule name.
func (s *Schedule) Name() string { return s.name }

// MaxAge returns the promotion threshold.
func (s *Schedule) MaxAge() int { return s.maxAge }

// check reports the error for an absent or destroyed schedule.
func (s *Schedule) check(op string) error {
	if s == nil {
		return oserrors.NewOperationError("opsched", op, oserrors.ErrInvalidArgument).WithContext("nil schedule")
	}
	if s.closed {
		return s.opError(op, oserrors.ErrClosed)
	}
	return nil
}

func (s *Schedule) opError(op string, cause error) *oserrors.OperationError {
	return oserrors.NewOperationError("opsched", op, cause).WithContext("schedule " + s.name)
}

// Admit marks p ready and links it at the tail of low-ready when its priority
// is low, high-ready otherwise. A process that was selected earlier may be
// admitted again; any other identity already tracked by the schedule is
// rejected.
func (s *Schedule) Admit(p *Process) error {
	if err := s.check("Admit"); err != nil {
		return err
	}
	if p == nil {
		return s.opError("Admit", oserrors.ErrInvalidArgument).WithContext("nil process")
	}

	if t, ok := s.live[p.pid]; ok {
		if t.proc != p || t.loc != Dispatched {
			return s.opError("Admit", oserrors.ErrInvalidArgument).
				WithContext(fmt.Sprintf("pid %d already %s", p.pid, t.loc))
		}
	} else if len(s.live) >= s.maxProcesses {
		return s.opError("Admit", oserrors.ErrAllocationFailure).
			WithContext(fmt.Sprintf("maximum number of processes (%d) reached", s.maxProcesses))
	}

	q, loc := s.high, InHighReady
	if p.priority == PriorityLow {
		q, loc = s.low, InLowReady
	}

	p.markReady()
	h := s.arena.alloc(p)
	if err := q.append(h); err != nil {
		s.arena.release(h)
		return s.opError("Admit", err)
	}
	s.track(p, loc)

	s.logger.Debug("process admitted", "pid", p.pid, "priority", p.priority, "queue", q.name)
	if s.metricsEnabled {
		s.metrics.Admitted.WithLabelValues(s.name, p.priority.String()).Inc()
		s.observeLengths()
	}
	return nil
}

func (s *Schedule) track(p *Process, loc Location) {
	if t, ok := s.live[p.pid]; ok {
		t.loc = loc
		return
	}
	s.live[p.pid] = &tracked{proc: p, loc: loc}
}

// Queue returns the queue of the given kind.
func (s *Schedule) Queue(kind QueueKind) (*Queue, error) {
	if err := s.check("Queue"); err != nil {
		return nil, err
	}
	switch kind {
	case HighReady:
		return s.high, nil
	case LowReady:
		return s.low, nil
	case Defunct:
		return s.defunct, nil
	default:
		return nil, s.opError("Queue", oserrors.ErrInvalidArgument).WithContext("unknown " + kind.String())
	}
}

// Len returns the cached length of the queue of the given kind.
func (s *Schedule) Len(kind QueueKind) (int, error) {
	q, err := s.Queue(kind)
	if err != nil {
		return -1, err
	}
	return q.Len(), nil
}

// Lookup returns the tracked process with the given identity and where it is.
func (s *Schedule) Lookup(pid PID) (*Process, Location, bool) {
	if s == nil || s.closed {
		return nil, Untracked, false
	}
	t, ok := s.live[pid]
	if !ok {
		return nil, Untracked, false
	}
	return t.proc, t.loc, true
}

// Defunct returns the defunct processes in queue order without removing them.
func (s *Schedule) Defunct() []*Process {
	if s == nil || s.closed {
		return nil
	}
	procs := make([]*Process, 0, s.defunct.length)
	s.defunct.Each(func(p *Process) bool {
		procs = append(procs, p)
		return true
	})
	return procs
}

// Snapshot is a point-in-time copy of a schedule's queues.
type Snapshot struct {
	Name       string
	High       []ProcessInfo
	Low        []ProcessInfo
	Defunct    []ProcessInfo
	Dispatched []PID
}

// Snapshot copies every queue in order, plus the identities currently
// dispatched, sorted.
func (s *Schedule) Snapshot() Snapshot {
	if s == nil || s.closed {
		return Snapshot{}
	}
	snap := Snapshot{
		Name:    s.name,
		High:    infos(s.high),
		Low:     infos(s.low),
		Defunct: infos(s.defunct),
	}
	for pid, t := range s.live {
		if t.loc == Dispatched {
			snap.Dispatched = append(snap.Dispatched, pid)
		}
	}
	sort.Slice(snap.Dispatched, func(i, j int) bool { return snap.Dispatched[i] < snap.Dispatched[j] })
	return snap
}

func infos(q *Queue) []ProcessInfo {
	out := make([]ProcessInfo, 0, q.length)
	q.Each(func(p *Process) bool {
		out = append(out, p.Info())
		return true
	})
	return out
}

// Validate checks the linkage invariants of all three queues and that every
// tracked identity is where the schedule believes it is.
func (s *Schedule) Validate() error {
	if err := s.check("Validate"); err != nil {
		return err
	}
	for _, q := range []*Queue{s.high, s.low, s.defunct} {
		if err := q.Validate(); err != nil {
			return err
		}
	}

	linked := s.high.length + s.low.length + s.defunct.length
	if s.arena.live != linked {
		return fmt.Errorf("arena holds %d nodes, queues link %d", s.arena.live, linked)
	}

	seen := make(map[PID]Location, linked)
	for loc, q := range map[Location]*Queue{InHighReady: s.high, InLowReady: s.low, InDefunct: s.defunct} {
		var err error
		q.Each(func(p *Process) bool {
			if prev, dup := seen[p.pid]; dup {
				err = fmt.Errorf("pid %d linked in both %s and %s", p.pid, prev, loc)
				return false
			}
			seen[p.pid] = loc
			if t, ok := s.live[p.pid]; !ok || t.loc != loc || t.proc != p {
				err = fmt.Errorf("pid %d linked in %s but tracked elsewhere", p.pid, loc)
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Destroy releases every process and queue owned by the schedule. Later calls
// are no-ops; every other operation on a destroyed schedule fails with
// ErrClosed.
func (s *Schedule) Destroy() {
	if s == nil || s.closed {
		return
	}
	for _, q := range []*Queue{s.low, s.high, s.defunct} {
		q.drain()
	}
	s.arena.reset()
	s.live = nil
	s.closed = true

	s.logger.Debug("schedule destroyed")
	if s.metricsEnabled {
		for _, kind := range []QueueKind{HighReady, LowReady, Defunct} {
			s.metrics.QueueLength.DeleteLabelValues(s.name, kind.String())
		}
	}
}
