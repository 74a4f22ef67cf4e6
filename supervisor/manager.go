// Package supervisor coordinates multiple procexec-launched child
// processes under a concurrency limit, collecting their output into
// per-unit log rings — the domain layer built on top of the core
// procexec API (spec.md's DOMAIN STACK expansion).
//
// Manager is safe for concurrent use. Starting a unit spawns a goroutine
// that drains its stdio and waits for exit; Stop tears a unit down with
// the platform's graceful-then-forceful sequence. A unit started with a
// RestartPolicy is relaunched on an unexpected exit via a min-heap restart
// scheduler (supervisor/scheduler.go), ported from the teacher's
// processmgr/scheduler.go.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edirooss/procexec"
)

// Recorder persists a unit's completed run for later inspection. The
// history package's RunRepository implements this.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
	GenerateID(ctx context.Context) (int64, error)
}

// RunRecord is the information about a finished unit a Recorder needs;
// it mirrors history.Record without Manager importing that package.
type RunRecord struct {
	RunID     int64
	UnitID    UnitID
	Path      string
	Argv      []string
	StartedAt time.Time
	ExitedAt  time.Time
	ExitCode  int
	Signaled  bool
	Signal    int
}

// unitSpec is what's needed to relaunch a unit: its options, its restart
// policy, and the backoff accrued by consecutive restarts. It outlives the
// Unit it describes across restarts, unlike the Unit struct itself which is
// rebuilt on every launch.
type unitSpec struct {
	opts    procexec.StartOptions
	restart RestartPolicy
	backoff time.Duration
}

// Manager coordinates a bounded number of concurrently running units.
type Manager struct {
	log     *zap.Logger
	limiter *concurrencyLimiter
	alloc   *unitIDAllocator
	logs    *logRegistry
	rec     Recorder

	mu    sync.RWMutex
	units map[UnitID]*Unit
	specs map[UnitID]*unitSpec

	sched *scheduler
	wake  chan struct{}
}

// NewManager returns a Manager allowing at most maxConcurrent units to run
// at once. rec may be nil, in which case finished runs are not persisted
// beyond their in-memory log ring.
func NewManager(log *zap.Logger, maxConcurrent int64, rec Recorder) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		log:     log.Named("supervisor"),
		limiter: newConcurrencyLimiter(maxConcurrent),
		alloc:   newUnitIDAllocator(),
		logs:    newLogRegistry(),
		rec:     rec,
		units:   make(map[UnitID]*Unit),
		specs:   make(map[UnitID]*unitSpec),
		sched:   newScheduler(),
		wake:    make(chan struct{}, 1),
	}
	go m.runScheduler()
	return m
}

// StartUnit launches opts as a new supervised unit, blocking until a
// concurrency slot is available or ctx is canceled. restart controls
// whether the unit is automatically relaunched after an unexpected exit;
// the zero RestartPolicy disables it.
func (m *Manager) StartUnit(ctx context.Context, opts procexec.StartOptions, restart RestartPolicy) (UnitID, error) {
	id := m.alloc.alloc()

	if err := m.limiter.Acquire(ctx, id); err != nil {
		m.alloc.release(id)
		return 0, fmt.Errorf("supervisor: acquire slot: %w", err)
	}

	opts = withDefaultLogPipes(opts)

	child, err := procexec.Start(opts)
	if err != nil {
		m.limiter.Release(id)
		m.alloc.release(id)
		return 0, err
	}

	m.mu.Lock()
	m.specs[id] = &unitSpec{opts: opts, restart: restart}
	m.mu.Unlock()

	m.launch(id, child, opts, restart)
	return id, nil
}

// withDefaultLogPipes wires owned pipes for stdout/stderr when the caller
// left them at the zero value, so a unit is drainable by default instead
// of silently producing no logs.
func withDefaultLogPipes(opts procexec.StartOptions) procexec.StartOptions {
	if opts.Stdout.Kind == procexec.StdioInherit && opts.Stdout.Pipe == nil {
		if p, err := procexec.MakePipe(procexec.ChildWrites); err == nil {
			opts.Stdout = procexec.Stdio{Kind: procexec.StdioOwnedPipe, Pipe: p}
		}
	}
	if opts.Stderr.Kind == procexec.StdioInherit && opts.Stderr.Pipe == nil {
		if p, err := procexec.MakePipe(procexec.ChildWrites); err == nil {
			opts.Stderr = procexec.Stdio{Kind: procexec.StdioOwnedPipe, Pipe: p}
		}
	}
	return opts
}

// launch records a freshly started child as the active Unit for id and
// starts its supervising goroutines. Called both from StartUnit and from a
// restart firing.
func (m *Manager) launch(id UnitID, child *procexec.ChildProcess, opts procexec.StartOptions, restart RestartPolicy) {
	u := &Unit{
		ID:        id,
		Opts:      opts,
		StartedAt: time.Now(),
		log:       m.log.With(zap.Int64("unit_id", int64(id))),
		ring:      m.logs.get(id),
		child:     child,
		exited:    make(chan struct{}),
		restart:   restart,
	}

	m.mu.Lock()
	m.units[id] = u
	m.mu.Unlock()

	go u.supervise()
	go m.reapOnExit(u)
}

// reapOnExit releases the unit's concurrency slot, records its run, and
// either schedules a restart or frees its id entirely.
func (m *Manager) reapOnExit(u *Unit) {
	<-u.exited
	m.limiter.Release(u.ID)
	m.mu.Lock()
	delete(m.units, u.ID)
	m.mu.Unlock()

	m.recordRun(u)

	m.mu.Lock()
	spec, hasSpec := m.specs[u.ID]
	m.mu.Unlock()

	if hasSpec && spec.restart.Enabled && !u.stopRequested.Load() {
		// A run that outlived MinBackoff ends the streak of consecutive
		// restarts, so the next delay starts again from MinBackoff.
		if time.Since(u.StartedAt) > spec.restart.minBackoff() {
			m.mu.Lock()
			spec.backoff = 0
			m.mu.Unlock()
		}
		m.scheduleRestart(u.ID, spec)
		return
	}

	m.mu.Lock()
	delete(m.specs, u.ID)
	m.sched.remove(u.ID)
	m.mu.Unlock()
	m.alloc.release(u.ID)
}

func (m *Manager) recordRun(u *Unit) {
	if m.rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	runID, err := m.rec.GenerateID(ctx)
	if err != nil {
		m.log.Warn("history: allocate run id failed", zap.Error(err))
		return
	}
	signaled, signal := u.ExitStatus()
	rec := RunRecord{
		RunID:     runID,
		UnitID:    u.ID,
		Path:      u.Opts.Path,
		Argv:      u.Opts.Argv,
		StartedAt: u.StartedAt,
		ExitedAt:  time.Now(),
		ExitCode:  u.ExitCode(),
		Signaled:  signaled,
		Signal:    signal,
	}
	if err := m.rec.Record(ctx, rec); err != nil {
		m.log.Warn("history: record run failed", zap.Error(err), zap.Int64("unit_id", int64(u.ID)))
	}
}

// scheduleRestart pushes id onto the restart heap after spec's backoff and
// wakes runScheduler so it can recompute its sleep.
func (m *Manager) scheduleRestart(id UnitID, spec *unitSpec) {
	m.mu.Lock()
	spec.backoff = spec.restart.nextBackoff(spec.backoff)
	when := time.Now().Add(spec.backoff)
	m.sched.push(id, when)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// runScheduler sleeps until the next pending restart is due, then relaunches
// it; relaunch itself runs in its own goroutine so a slow concurrency-slot
// acquisition never stalls the dispatch of other due restarts.
func (m *Manager) runScheduler() {
	for {
		m.mu.Lock()
		_, when, ok := m.sched.next()
		m.mu.Unlock()

		var wait <-chan time.Time
		if ok {
			d := time.Until(when)
			if d < 0 {
				d = 0
			}
			timer := time.NewTimer(d)
			wait = timer.C
			select {
			case <-wait:
			case <-m.wake:
				timer.Stop()
				continue
			}
		} else {
			<-m.wake
			continue
		}

		m.mu.Lock()
		dueID, dueWhen, stillOk := m.sched.next()
		if !stillOk || dueWhen.After(time.Now()) {
			m.mu.Unlock()
			continue
		}
		m.sched.pop()
		spec := m.specs[dueID]
		m.mu.Unlock()

		if spec == nil {
			continue
		}
		go m.restartDue(dueID, spec)
	}
}

// restartDue relaunches the unit described by spec under the same id.
func (m *Manager) restartDue(id UnitID, spec *unitSpec) {
	if err := m.limiter.Acquire(context.Background(), id); err != nil {
		m.log.Warn("restart: acquire slot failed", zap.Int64("unit_id", int64(id)), zap.Error(err))
		return
	}

	child, err := procexec.Start(spec.opts)
	if err != nil {
		m.limiter.Release(id)
		m.log.Warn("restart: relaunch failed", zap.Int64("unit_id", int64(id)), zap.Error(err))
		// try again later rather than abandoning the unit permanently
		m.scheduleRestart(id, spec)
		return
	}

	m.log.Info("unit restarted", zap.Int64("unit_id", int64(id)))
	m.launch(id, child, spec.opts, spec.restart)
}

// StopUnit requests graceful termination of a running unit and cancels any
// pending restart for it. It is a no-op if the id is unknown (already
// exited, not restarting, and reaped).
func (m *Manager) StopUnit(id UnitID) error {
	m.mu.Lock()
	u, running := m.units[id]
	delete(m.specs, id)
	m.sched.remove(id)
	m.mu.Unlock()

	if !running {
		return nil
	}
	u.Stop()
	return nil
}

// KillUnit forcefully terminates a running unit (spec.md §4.5
// Kill(graceful=false)), bypassing Stop's SIGTERM-then-grace-period
// sequence. A unit started with a RestartPolicy is descheduled first, same
// as StopUnit, so the forceful exit is not mistaken for a crash to recover
// from.
func (m *Manager) KillUnit(id UnitID) error {
	m.mu.Lock()
	u, running := m.units[id]
	delete(m.specs, id)
	m.sched.remove(id)
	m.mu.Unlock()

	if !running {
		return nil
	}
	u.Kill()
	return nil
}

// StopAll requests graceful termination of every currently running unit and
// waits for them all to exit or for ctx to be canceled. Unlike a shared
// errgroup across a unit's own goroutines — which would let one unit's
// failure cancel another's — this is the one place independent unit
// teardowns genuinely need to be waited on together, so each unit's Stop
// runs as its own errgroup task.
func (m *Manager) StopAll(ctx context.Context) error {
	ids := m.List()
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		u := m.Unit(id)
		if u == nil {
			continue
		}
		g.Go(func() error {
			done := make(chan struct{})
			go func() {
				u.Stop()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}

// Unit returns the unit for id, or nil if unknown.
func (m *Manager) Unit(id UnitID) *Unit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.units[id]
}

// List returns the ids of all currently running units.
func (m *Manager) List() []UnitID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UnitID, 0, len(m.units))
	for id := range m.units {
		out = append(out, id)
	}
	return out
}

// Logs returns up to n of a unit's most recent log lines, newest first.
// Unlike the running-unit registry, log rings survive after a unit exits
// (the teacher's log buffers likewise outlive process restarts), so this
// works for ids no longer in List.
func (m *Manager) Logs(id UnitID, n int) []string {
	return m.logs.get(id).Read(n)
}

// Capacity and Current report the concurrency limiter's configured limit
// and current usage.
func (m *Manager) Capacity() int64 { return m.limiter.Capacity() }
func (m *Manager) Current() int64  { return m.limiter.Current() }
