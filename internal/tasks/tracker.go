// Package tasks implements the Task Tracker and Single-Instance Guard (C9).
//
// The tracker formalizes the teacher's ad hoc `go ag.Run(ctx)` /
// `go scheduler.Start(...)` / `heartbeat.StartHeartbeat(...)` startup shape
// (cmd/picobot/main.go's gateway command) into one `Tracker.Track(name, fn)`
// call per background task, with lifecycle logging and a bounded grace
// period on shutdown (spec §4.9, §5: "the tracker issues cancel to all
// tasks, waits up to 10s, then forces exit").
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is a task's lifecycle state.
type State int

const (
	Running State = iota
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Record is a tracked task's observable state (spec §3: "Task record").
type Record struct {
	Name      string
	StartedAt time.Time
	State     State
}

// Tracker owns every background task's lifecycle for the process.
type Tracker struct {
	logger zerolog.Logger

	mu      sync.Mutex
	records map[string]*Record

	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context
}

// New builds a Tracker whose tasks are all children of a single cancellable
// context, derived from parent.
func New(parent context.Context, logger zerolog.Logger) *Tracker {
	ctx, cancel := context.WithCancel(parent)
	return &Tracker{
		logger:  logger.With().Str("component", "c9.tasks").Logger(),
		records: make(map[string]*Record),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Track starts fn on its own goroutine, passing it the tracker's shared
// cancellable context, and records its lifecycle. name must be unique
// across the process's lifetime (reusing a name overwrites the prior
// record, which is only ever a concern for tests).
func (t *Tracker) Track(name string, fn func(ctx context.Context)) {
	rec := &Record{Name: name, StartedAt: time.Now(), State: Running}
	t.mu.Lock()
	t.records[name] = rec
	t.mu.Unlock()

	t.logger.Info().Str("task", name).Msg("task starting")
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.finish(name, rec)
		fn(t.ctx)
	}()
}

func (t *Tracker) finish(name string, rec *Record) {
	t.mu.Lock()
	if t.ctx.Err() != nil {
		rec.State = Done
	} else {
		// A task returning on its own, with the process not shutting down,
		// is treated as a failure: every C2-C8 periodic loop is supposed to
		// run until ctx is cancelled, not return early.
		rec.State = Failed
	}
	t.mu.Unlock()

	ev := t.logger.Info()
	if rec.State == Failed {
		ev = t.logger.Error()
	}
	ev.Str("task", name).Str("state", rec.State.String()).Msg("task stopped")
}

// Records returns a snapshot of every tracked task.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	return out
}

// Shutdown cancels every tracked task and waits up to grace for them to
// return, per spec §5's 10s grace window.
func (t *Tracker) Shutdown(grace time.Duration) {
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		t.logger.Warn().Dur("grace", grace).Msg("shutdown grace period elapsed, some tasks still running")
	}
}
