// Package scheduler runs tasks on a fixed set of worker goroutines. A single
// dispatcher goroutine owns all worker and queue state: it hands the oldest
// queued task to the lowest-numbered idle worker, resolves each task's Future
// exactly once, restarts workers that fail critically and tears down busy
// workers when outstanding work is cancelled.
package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

const maxDefaultWorkers = 16

// DefaultSize is min(2*NumCPU, 16).
func DefaultSize() int {
	return min(2*runtime.NumCPU(), maxDefaultWorkers)
}

// Task is a unit of work. ID must be unique among the tasks a pool holds.
type Task[P any] struct {
	ID      string
	Payload P
}

// Reporter lets a running task emit progress and log records. Records are
// delivered through the pool's message protocol and dropped once the task
// is no longer current on its worker.
type Reporter interface {
	Progress(fraction float64, note string)
	Log(level slog.Level, msg string, args ...any)
}

// TaskFunc executes one task. The context is cancelled when the worker is torn
// down. Returning an error wrapping errors.ErrWorkerCritical, or panicking,
// fails the task and restarts the worker.
type TaskFunc[P, R any] func(ctx context.Context, task Task[P], report Reporter) (R, error)

type WorkerOptions struct {
	// RestartDelay is how long a critically failed worker stays out of the
	// idle pool before it is recreated.
	RestartDelay time.Duration
}

// WorkerSpec is everything needed to (re)create a worker.
type WorkerSpec[P, R any] struct {
	Name    string
	Entry   TaskFunc[P, R]
	Options WorkerOptions
}

// Progress is delivered to Options.OnProgress.
type Progress struct {
	TaskID   string
	WorkerID int
	Fraction float64
	Note     string
}
