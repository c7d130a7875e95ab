// Package jobs runs recurring background tasks on cron schedules.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/metrics"
)

var (
	// ErrTaskNotFound is returned for an unknown task ID.
	ErrTaskNotFound = errors.New("jobs: task not found")
	// ErrTaskBusy is returned when a task is invoked while its previous run is still in progress.
	ErrTaskBusy = errors.New("jobs: task already running")
)

var specParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Task is a schedule descriptor: a cron expression bound to a handler.
type Task struct {
	ID   string
	Spec string
	Run  func(ctx context.Context) error
}

// TaskStats reports the state of a registered task.
type TaskStats struct {
	ID           string     `json:"id"`
	Spec         string     `json:"spec"`
	Running      bool       `json:"running"`
	Runs         int64      `json:"runs"`
	Failures     int64      `json:"failures"`
	Skipped      int64      `json:"skipped"`
	LastStart    *time.Time `json:"last_start,omitempty"`
	LastDuration string     `json:"last_duration,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

type taskState struct {
	task     Task
	schedule cron.Schedule
	entryID  cron.EntryID
	busy     atomic.Bool

	mu           sync.Mutex
	runs         int64
	failures     int64
	skipped      int64
	lastStart    time.Time
	lastDuration time.Duration
	lastErr      string
}

// Runner owns the cron scheduler and the registered tasks.
type Runner struct {
	location *time.Location
	metrics  *metrics.Metrics

	mu      sync.Mutex
	tasks   map[string]*taskState
	order   []string
	cron    *cron.Cron
	running bool
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewRunner constructs a Runner evaluating schedules in loc (UTC when nil).
func NewRunner(loc *time.Location, m *metrics.Metrics) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		location: loc,
		metrics:  m,
		tasks:    make(map[string]*taskState),
	}
}

// NormalizeSpec converts a five-field cron expression into the six-field form with a seconds column.
func NormalizeSpec(spec string) string {
	spec = strings.TrimSpace(spec)
	if len(strings.Fields(spec)) == 5 {
		return "0 " + spec
	}
	return spec
}

// Register adds a task. Tasks registered after Start are scheduled immediately.
func (r *Runner) Register(task Task) error {
	if r == nil {
		return fmt.Errorf("jobs: nil runner")
	}
	task.ID = strings.TrimSpace(task.ID)
	if task.ID == "" {
		return fmt.Errorf("jobs: empty task id")
	}
	if task.Run == nil {
		return fmt.Errorf("jobs: task %s has no handler", task.ID)
	}
	task.Spec = NormalizeSpec(task.Spec)
	schedule, errParse := specParser.Parse(task.Spec)
	if errParse != nil {
		return fmt.Errorf("jobs: task %s: invalid schedule %q: %w", task.ID, task.Spec, errParse)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[task.ID]; exists {
		return fmt.Errorf("jobs: task %s already registered", task.ID)
	}
	state := &taskState{task: task, schedule: schedule}
	if r.running {
		if errAdd := r.schedule(state); errAdd != nil {
			return errAdd
		}
	}
	r.tasks[task.ID] = state
	r.order = append(r.order, task.ID)
	return nil
}

func (r *Runner) schedule(state *taskState) error {
	entryID, errAdd := r.cron.AddFunc(state.task.Spec, func() {
		_ = r.execute(r.baseCtx, state, "schedule")
	})
	if errAdd != nil {
		return fmt.Errorf("jobs: schedule %s: %w", state.task.ID, errAdd)
	}
	state.entryID = entryID
	return nil
}

// Start schedules all registered tasks. Runs receive a context derived from ctx that is
// cancelled by Stop.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("jobs: nil runner")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}

	r.cron = cron.New(cron.WithSeconds(), cron.WithLocation(r.location))
	r.baseCtx, r.cancel = context.WithCancel(ctx)
	for _, id := range r.order {
		if errAdd := r.schedule(r.tasks[id]); errAdd != nil {
			r.cancel()
			return errAdd
		}
	}
	r.cron.Start()
	r.running = true

	log.WithFields(log.Fields{
		"tasks":    len(r.order),
		"timezone": r.location.String(),
	}).Info("jobs: scheduler started")
	return nil
}

// Stop cancels in-flight scheduled runs and waits for them to return.
func (r *Runner) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if !r.running || r.cron == nil {
		r.mu.Unlock()
		return
	}
	r.cancel()
	stopCtx := r.cron.Stop()
	r.running = false
	r.mu.Unlock()

	<-stopCtx.Done()
	log.Info("jobs: scheduler stopped")
}

// RunNow invokes a task synchronously, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, id string) error {
	if r == nil {
		return fmt.Errorf("jobs: nil runner")
	}
	r.mu.Lock()
	state, ok := r.tasks[id]
	r.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return r.execute(ctx, state, "manual")
}

// execute runs one invocation. Overlapping invocations of the same task are skipped and
// panics are converted to errors.
func (r *Runner) execute(ctx context.Context, state *taskState, trigger string) (err error) {
	if !state.busy.CompareAndSwap(false, true) {
		state.mu.Lock()
		state.skipped++
		state.mu.Unlock()
		r.metrics.ObserveJob(state.task.ID, "skipped", 0)
		log.WithFields(log.Fields{
			"task":    state.task.ID,
			"trigger": trigger,
		}).Warn("jobs: previous run still in progress, skipping")
		return ErrTaskBusy
	}
	defer state.busy.Store(false)

	if ctx == nil {
		ctx = context.Background()
	}
	runID := uuid.NewString()
	logger := log.WithFields(log.Fields{
		"task":    state.task.ID,
		"run_id":  runID,
		"trigger": trigger,
	})
	start := time.Now()
	logger.Info("jobs: run started")

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("jobs: task %s panicked: %v", state.task.ID, rec)
			logger.WithField("stack", string(debug.Stack())).Error("jobs: run panicked")
		}
		elapsed := time.Since(start)
		outcome := "success"
		if err != nil {
			outcome = "error"
			logger.WithError(err).WithField("duration", elapsed.String()).Error("jobs: run failed")
		} else {
			logger.WithField("duration", elapsed.String()).Info("jobs: run finished")
		}
		r.metrics.ObserveJob(state.task.ID, outcome, elapsed)

		state.mu.Lock()
		state.runs++
		if err != nil {
			state.failures++
			state.lastErr = err.Error()
		} else {
			state.lastErr = ""
		}
		state.lastStart = start
		state.lastDuration = elapsed
		state.mu.Unlock()
	}()

	return state.task.Run(ctx)
}

// Stats reports every registered task, ordered by ID.
func (r *Runner) Stats() []TaskStats {
	if r == nil {
		return nil
	}
	type entry struct {
		state   *taskState
		entryID cron.EntryID
	}
	r.mu.Lock()
	entries := make([]entry, 0, len(r.tasks))
	for _, state := range r.tasks {
		entries = append(entries, entry{state: state, entryID: state.entryID})
	}
	running := r.running
	c := r.cron
	loc := r.location
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].state.task.ID < entries[j].state.task.ID })
	now := time.Now().In(loc)
	out := make([]TaskStats, 0, len(entries))
	for _, e := range entries {
		state := e.state
		var next time.Time
		if running && c != nil && e.entryID != 0 {
			next = c.Entry(e.entryID).Next
		}
		if next.IsZero() {
			next = state.schedule.Next(now)
		}

		state.mu.Lock()
		stats := TaskStats{
			ID:       state.task.ID,
			Spec:     state.task.Spec,
			Running:  state.busy.Load(),
			Runs:     state.runs,
			Failures: state.failures,
			Skipped:  state.skipped,
		}
		if !state.lastStart.IsZero() {
			lastStart := state.lastStart
			stats.LastStart = &lastStart
			stats.LastDuration = state.lastDuration.String()
			stats.LastError = state.lastErr
		}
		state.mu.Unlock()
		if !next.IsZero() {
			stats.NextRun = &next
		}
		out = append(out, stats)
	}
	return out
}
