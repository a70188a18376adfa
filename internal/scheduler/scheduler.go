package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/tapflow-core/internal/executor"
	"github.com/nerrad567/tapflow-core/internal/flow"
)

// Runner executes one flow against its device. Satisfied by
// executor.Executor.
type Runner interface {
	Execute(ctx context.Context, deviceID, flowID string, opts executor.Options) (*executor.Result, error)
}

// Logger is the subset of the logging package the scheduler needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config tunes the scheduler loop.
type Config struct {
	// TickInterval is how often the queue is checked for due work.
	TickInterval time.Duration

	// BusyRetryDelay is how long a flow is pushed back when its device
	// is busy with another execution.
	BusyRetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.BusyRetryDelay <= 0 {
		c.BusyRetryDelay = 30 * time.Second
	}
	return c
}

// Scheduler runs periodic flows from an explicit work queue keyed by
// (device, flow, next due time). There is no per-flow goroutine and no
// global "active flows" map: due entries are popped from a min-heap and
// dispatched, then rescheduled from their completion time.
type Scheduler struct {
	cfg    Config
	flows  flow.Repository
	runner Runner
	logger Logger

	mu        sync.Mutex
	queue     workQueue
	entries   map[string]*entry
	suspended map[string]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. Call Start to begin dispatching.
func New(cfg Config, flows flow.Repository, runner Runner, logger Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg.withDefaults(),
		flows:     flows,
		runner:    runner,
		logger:    logger,
		entries:   make(map[string]*entry),
		suspended: make(map[string]bool),
	}
}

// Start loads every enabled periodic flow into the queue and begins the
// dispatch loop. Flows with a zero update interval are on-demand only
// and are not scheduled.
//
// Returns:
//   - error: Repository errors while loading flows
func (s *Scheduler) Start(ctx context.Context) error {
	defs, err := s.flows.List(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	s.mu.Lock()
	for _, def := range defs {
		if !def.Enabled || def.UpdateInterval <= 0 {
			continue
		}
		s.upsertLocked(&def, now)
	}
	s.mu.Unlock()

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(loopCtx)

	s.logger.Info("scheduler started",
		"queued_flows", len(s.entries),
		"tick_interval", s.cfg.TickInterval.String(),
	)
	return nil
}

// Stop cancels the dispatch loop and any in-flight executions, then
// waits for their goroutines to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// UpsertFlow adds or reschedules a flow. Called after flow definitions
// change so the queue tracks the repository.
func (s *Scheduler) UpsertFlow(def *flow.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !def.Enabled || def.UpdateInterval <= 0 {
		s.removeLocked(def.DeviceID, def.ID)
		return
	}
	s.upsertLocked(def, time.Now())
}

// RemoveFlow drops a flow from the queue.
func (s *Scheduler) RemoveFlow(deviceID, flowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(deviceID, flowID)
}

// Suspend pauses scheduled execution for a device, for example while a
// user is interactively editing its flows. Due entries stay queued and
// run once the device is resumed.
func (s *Scheduler) Suspend(deviceID string) {
	s.mu.Lock()
	s.suspended[deviceID] = true
	s.mu.Unlock()
	s.logger.Info("device scheduling suspended", "device_id", deviceID)
}

// Resume lifts a suspension. Safe to call for a device that was never
// suspended.
func (s *Scheduler) Resume(deviceID string) {
	s.mu.Lock()
	delete(s.suspended, deviceID)
	s.mu.Unlock()
	s.logger.Info("device scheduling resumed", "device_id", deviceID)
}

// Suspended reports whether a device's scheduling is paused.
func (s *Scheduler) Suspended(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspended[deviceID]
}

func (s *Scheduler) upsertLocked(def *flow.Definition, now time.Time) {
	interval := time.Duration(def.UpdateInterval) * time.Second
	key := def.DeviceID + "/" + def.ID

	if e, ok := s.entries[key]; ok {
		e.interval = interval
		// A shortened interval takes effect now rather than after the
		// previously scheduled wait expires.
		if next := now.Add(interval); next.Before(e.nextDue) {
			e.nextDue = next
			if e.index >= 0 {
				s.queue.fix(e)
			}
		}
		return
	}

	e := &entry{
		deviceID: def.DeviceID,
		flowID:   def.ID,
		nextDue:  now,
		interval: interval,
	}
	s.entries[key] = e
	heap.Push(&s.queue, e)
}

func (s *Scheduler) removeLocked(deviceID, flowID string) {
	key := deviceID + "/" + flowID
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	if e.index >= 0 {
		heap.Remove(&s.queue, e.index)
	}
}

// loop pops due entries every tick and dispatches them. Each dispatch
// runs in its own goroutine: one slow device never delays the others.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue pops every entry whose time has come. Suspended devices'
// entries are pushed back by one busy-retry delay.
func (s *Scheduler) dispatchDue(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*entry
	for {
		e := s.queue.peek()
		if e == nil || e.nextDue.After(now) {
			break
		}
		heap.Pop(&s.queue)

		if s.suspended[e.deviceID] {
			e.nextDue = now.Add(s.cfg.BusyRetryDelay)
			heap.Push(&s.queue, e)
			continue
		}
		due = append(due, e)
	}
	s.mu.Unlock()

	for _, e := range due {
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.run(ctx, e)
		}(e)
	}
}

// run executes one due flow and reschedules it based on the outcome.
func (s *Scheduler) run(ctx context.Context, e *entry) {
	def, err := s.flows.GetByID(ctx, e.flowID)
	if err != nil {
		if errors.Is(err, flow.ErrNotFound) {
			s.logger.Warn("scheduled flow vanished, dropping", "flow_id", e.flowID)
			s.RemoveFlow(e.deviceID, e.flowID)
			return
		}
		s.logger.Error("loading scheduled flow", "flow_id", e.flowID, "error", err)
		s.reschedule(e, time.Now().Add(s.cfg.BusyRetryDelay))
		return
	}

	result, err := s.runner.Execute(ctx, e.deviceID, e.flowID, executor.Options{
		Modes:       def.DefaultModes,
		TriggeredBy: "scheduler",
	})

	switch {
	case errors.Is(err, executor.ErrDeviceBusy):
		// Never queue behind the running execution; just try later.
		s.logger.Debug("device busy, deferring flow",
			"device_id", e.deviceID,
			"flow_id", e.flowID,
			"retry_in", s.cfg.BusyRetryDelay.String(),
		)
		s.reschedule(e, time.Now().Add(s.cfg.BusyRetryDelay))
	case err != nil:
		s.logger.Error("scheduled execution failed",
			"device_id", e.deviceID,
			"flow_id", e.flowID,
			"error", err,
		)
		s.reschedule(e, time.Now().Add(e.interval))
	default:
		s.logger.Debug("scheduled execution finished",
			"device_id", e.deviceID,
			"flow_id", e.flowID,
			"success", result.Success,
			"executed_steps", result.ExecutedSteps,
		)
		s.reschedule(e, time.Now().Add(e.interval))
	}
}

// reschedule puts an entry back on the queue, unless it was removed
// while running.
func (s *Scheduler) reschedule(e *entry, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.key()]; !ok {
		return
	}
	e.nextDue = at
	heap.Push(&s.queue, e)
}
