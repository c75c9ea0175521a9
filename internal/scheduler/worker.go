package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
)

type workerState uint8

const (
	stateIdle workerState = iota
	stateBusy
	stateRestarting
	stateStopped
)

func (s workerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateBusy:
		return "busy"
	case stateRestarting:
		return "restarting"
	default:
		return "stopped"
	}
}

// worker is the dispatcher's record of one slot. Only the dispatcher
// goroutine reads or writes it; the execution goroutine sees just its
// inbox, context and identity.
type worker[P, R any] struct {
	id         int
	generation uint64
	state      workerState
	inbox      chan *job[P, R]
	ctx        context.Context
	cancel     context.CancelFunc
	current    *job[P, R]
}

// execution is the goroutine side of a worker incarnation.
type execution[P, R any] struct {
	id         int
	generation uint64
	spec       WorkerSpec[P, R]
	inbox      <-chan *job[P, R]
	out        chan<- Message[R]
}

func (e *execution[P, R]) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.inbox:
			if crashed := e.run(ctx, j); crashed {
				return
			}
		}
	}
}

// run executes one task and reports its terminal message. It returns true
// when the failure was critical and this incarnation must stop.
func (e *execution[P, R]) run(ctx context.Context, j *job[P, R]) (crashed bool) {
	rep := &reporter[P, R]{exec: e, ctx: ctx, taskID: j.task.ID}
	result, err := e.invoke(ctx, j, rep)

	msg := Message[R]{
		TaskID:     j.task.ID,
		WorkerID:   e.id,
		Generation: e.generation,
	}
	if err != nil {
		msg.Kind = KindError
		msg.Err = err
		msg.Critical = apperrors.IsCritical(err)
	} else {
		msg.Kind = KindResult
		msg.Result = result
	}
	e.send(ctx, msg)
	return msg.Critical
}

func (e *execution[P, R]) invoke(ctx context.Context, j *job[P, R], rep Reporter) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Criticalf("worker %s-%d panicked on task %s: %v", e.spec.Name, e.id, j.task.ID, r)
		}
	}()
	return e.spec.Entry(ctx, j.task, rep)
}

// send delivers msg unless this incarnation has been torn down, in which
// case the dispatcher no longer wants it.
func (e *execution[P, R]) send(ctx context.Context, msg Message[R]) {
	select {
	case e.out <- msg:
	case <-ctx.Done():
	}
}

type reporter[P, R any] struct {
	exec   *execution[P, R]
	ctx    context.Context
	taskID string
}

func (r *reporter[P, R]) Progress(fraction float64, note string) {
	r.exec.send(r.ctx, Message[R]{
		Kind:       KindProgress,
		TaskID:     r.taskID,
		WorkerID:   r.exec.id,
		Generation: r.exec.generation,
		Fraction:   fraction,
		Note:       note,
	})
}

func (r *reporter[P, R]) Log(level slog.Level, msg string, args ...any) {
	r.exec.send(r.ctx, Message[R]{
		Kind:       KindLog,
		TaskID:     r.taskID,
		WorkerID:   r.exec.id,
		Generation: r.exec.generation,
		Note:       msg,
		Level:      level,
		Attrs:      args,
	})
}

func (w *worker[P, R]) String() string {
	return fmt.Sprintf("worker %d (gen %d, %s)", w.id, w.generation, w.state)
}
