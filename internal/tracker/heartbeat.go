// Guildwatch - Game World Tracking and Notification Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/guildwatch

package tracker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/guildwatch/internal/logging"
	"github.com/tomtom215/guildwatch/internal/metrics"
)

// Task is one unit of periodic work driven by the Heartbeat.
type Task struct {
	// Name identifies the task in logs and metrics labels.
	Name string

	// FirstDelay is how long after the heartbeat starts the task first
	// runs. Staggering first delays keeps the startup burst against the
	// upstream API small.
	FirstDelay time.Duration

	// Interval is measured from the completion of one run to the start of
	// the next, not between start times.
	Interval time.Duration

	// Run performs one cycle. A returned error is logged and counted; the
	// task is rescheduled regardless.
	Run func(ctx context.Context) error
}

// TaskStatus is a point-in-time view of a task's last completed run,
// served by the status endpoint.
type TaskStatus struct {
	Name           string    `json:"name"`
	Runs           uint64    `json:"runs"`
	LastRun        time.Time `json:"last_run"`
	LastDurationMS int64     `json:"last_duration_ms"`
	LastError      string    `json:"last_error,omitempty"`
}

// Heartbeat drives a fixed set of tasks, each on its own goroutine with its
// own schedule. It implements suture.Service so the supervision tree owns
// its lifecycle.
//
// Failure isolation: a task that returns an error or panics is logged,
// counted, and rescheduled; it never terminates the heartbeat or delays the
// other tasks.
type Heartbeat struct {
	tasks []Task

	mu       sync.Mutex
	statuses map[string]*TaskStatus
}

// NewHeartbeat validates and registers the task set.
func NewHeartbeat(tasks []Task) (*Heartbeat, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("heartbeat requires at least one task")
	}
	seen := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		if task.Name == "" {
			return nil, fmt.Errorf("heartbeat task with empty name")
		}
		if task.Run == nil {
			return nil, fmt.Errorf("heartbeat task %q has no run function", task.Name)
		}
		if task.Interval <= 0 {
			return nil, fmt.Errorf("heartbeat task %q has non-positive interval", task.Name)
		}
		if _, dup := seen[task.Name]; dup {
			return nil, fmt.Errorf("duplicate heartbeat task name %q", task.Name)
		}
		seen[task.Name] = struct{}{}
	}
	statuses := make(map[string]*TaskStatus, len(tasks))
	for _, task := range tasks {
		statuses[task.Name] = &TaskStatus{Name: task.Name}
	}
	return &Heartbeat{tasks: tasks, statuses: statuses}, nil
}

// TaskReport returns the tasks' last-run records sorted by name.
func (h *Heartbeat) TaskReport() []TaskStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	report := make([]TaskStatus, 0, len(h.statuses))
	for _, s := range h.statuses {
		report = append(report, *s)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].Name < report[j].Name })
	return report
}

// Serve runs all tasks until ctx is cancelled, then waits for in-flight
// runs to finish.
func (h *Heartbeat) Serve(ctx context.Context) error {
	logging.Info().
		Int("tasks", len(h.tasks)).
		Msg("Heartbeat starting")

	var wg sync.WaitGroup
	for _, task := range h.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			h.runTaskLoop(ctx, task)
		}(task)
	}

	<-ctx.Done()
	wg.Wait()

	logging.Info().Msg("Heartbeat stopped")
	return nil
}

// String names the service in supervisor logs.
func (h *Heartbeat) String() string { return "tracker-heartbeat" }

func (h *Heartbeat) runTaskLoop(ctx context.Context, task Task) {
	logging.Debug().
		Str("task", task.Name).
		Dur("first_delay", task.FirstDelay).
		Dur("interval", task.Interval).
		Msg("Heartbeat task scheduled")

	timer := time.NewTimer(task.FirstDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		h.runOnce(ctx, task)

		// Reschedule only after the run completes so a slow run never
		// overlaps the next one.
		timer.Reset(task.Interval)
	}
}

func (h *Heartbeat) runOnce(ctx context.Context, task Task) {
	start := time.Now()
	err := h.invoke(ctx, task)
	duration := time.Since(start)
	metrics.RecordTaskRun(task.Name, duration, err)
	h.recordStatus(task.Name, start, duration, err)

	switch {
	case err == nil:
		logging.Debug().
			Str("task", task.Name).
			Dur("duration", duration).
			Msg("Task run completed")
	case ctx.Err() != nil:
		// Shutdown races look like errors; don't count them as failures
		// in the log noise.
		logging.Debug().
			Str("task", task.Name).
			Msg("Task run interrupted by shutdown")
	default:
		logging.Error().
			Err(err).
			Str("task", task.Name).
			Dur("duration", duration).
			Msg("Task run failed")
	}
}

func (h *Heartbeat) recordStatus(name string, start time.Time, duration time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.statuses[name]
	s.Runs++
	s.LastRun = start
	s.LastDurationMS = duration.Milliseconds()
	s.LastError = ""
	if err != nil {
		s.LastError = err.Error()
	}
}

// invoke converts a panic inside a task into an error so one misbehaving
// task cannot take down the scheduler.
func (h *Heartbeat) invoke(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordTaskPanic(task.Name)
			logging.Error().
				Str("task", task.Name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Task panicked")
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}
