package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/linksuggest/pkg/metrics"
)

type Options struct {
	// Size is the number of workers. Zero selects DefaultSize.
	Size    int
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// OnProgress runs on the dispatcher goroutine and must not block.
	OnProgress func(Progress)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers         int    `json:"workers"`
	Idle            int    `json:"idle"`
	Busy            int    `json:"busy"`
	Restarting      int    `json:"restarting"`
	Queued          int    `json:"queued"`
	Completed       uint64 `json:"completed"`
	Failed          uint64 `json:"failed"`
	Cancelled       uint64 `json:"cancelled"`
	Restarts        uint64 `json:"restarts"`
	InvalidMessages uint64 `json:"invalid_messages"`
}

type job[P, R any] struct {
	task       Task[P]
	future     *Future[R]
	enqueued   time.Time
	dispatched time.Time
}

type submitRequest[P, R any] struct {
	job   *job[P, R]
	reply chan error
}

// cancelRequest selects the tasks to cancel. A nil ids set selects all.
type cancelRequest struct {
	ids   map[string]struct{}
	reply chan int
}

func (r cancelRequest) matches(id string) bool {
	if r.ids == nil {
		return true
	}
	_, ok := r.ids[id]
	return ok
}

type restartEvent struct {
	workerID   int
	generation uint64
}

// Pool is a fixed-size worker pool. All methods are safe for concurrent use.
type Pool[P, R any] struct {
	spec    WorkerSpec[P, R]
	size    int
	log     *slog.Logger
	metrics *metrics.Metrics
	onProg  func(Progress)

	// Dispatcher-owned state.
	workers []*worker[P, R]
	queue   []*job[P, R]
	pending map[string]*job[P, R]
	nextGen uint64
	waiters []chan struct{}
	stats   Stats

	submits   chan submitRequest[P, R]
	messages  chan Message[R]
	restarts  chan restartEvent
	cancels   chan cancelRequest
	idleWaits chan chan struct{}
	shutdowns chan struct{}
	stopped   chan struct{}

	submitMu     sync.RWMutex
	closing      atomic.Bool
	shutdownOnce sync.Once
	execs        sync.WaitGroup

	statsMu  sync.Mutex
	snapshot Stats
}

// New starts a pool of opts.Size workers created from spec.
func New[P, R any](spec WorkerSpec[P, R], opts Options) (*Pool[P, R], error) {
	if spec.Entry == nil {
		return nil, fmt.Errorf("%w: worker spec %q has no entry point", apperrors.ErrInvalidInput, spec.Name)
	}
	if spec.Name == "" {
		spec.Name = "worker"
	}
	size := opts.Size
	if size <= 0 {
		size = DefaultSize()
	}
	log := opts.Logger
	if log == nil {
		log = logger.WithComponent("scheduler")
	}

	p := &Pool[P, R]{
		spec:      spec,
		size:      size,
		log:       log.With("pool", spec.Name),
		metrics:   opts.Metrics,
		onProg:    opts.OnProgress,
		workers:   make([]*worker[P, R], size),
		pending:   make(map[string]*job[P, R]),
		submits:   make(chan submitRequest[P, R]),
		messages:  make(chan Message[R], size),
		restarts:  make(chan restartEvent),
		cancels:   make(chan cancelRequest),
		idleWaits: make(chan chan struct{}),
		shutdowns: make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for i := range p.workers {
		p.spawn(i)
	}
	p.publish()
	if p.metrics != nil {
		p.metrics.PoolWorkers.Set(float64(size))
	}
	go p.run()
	p.log.Info("worker pool started", "workers", size)
	return p, nil
}

// Size is the number of worker slots.
func (p *Pool[P, R]) Size() int { return p.size }

// Submit enqueues task. It fails with ErrShuttingDown once the pool is
// draining or shut down, and with a data error if a task with the same id is
// still queued or running.
func (p *Pool[P, R]) Submit(task Task[P]) (*Future[R], error) {
	if task.ID == "" {
		return nil, apperrors.Dataf("task without id")
	}
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()
	if p.closing.Load() {
		if p.metrics != nil {
			p.metrics.TasksTotal.WithLabelValues("rejected").Inc()
		}
		return nil, fmt.Errorf("submit %s: %w", task.ID, apperrors.ErrShuttingDown)
	}

	j := &job[P, R]{task: task, future: newFuture[R](task.ID), enqueued: time.Now()}
	req := submitRequest[P, R]{job: j, reply: make(chan error, 1)}
	select {
	case p.submits <- req:
	case <-p.stopped:
		return nil, fmt.Errorf("submit %s: %w", task.ID, apperrors.ErrShuttingDown)
	}
	if err := <-req.reply; err != nil {
		return nil, err
	}
	return j.future, nil
}

// CancelAll rejects every queued and running task with ErrCancelled and
// replaces each busy worker with a fresh one. It returns how many tasks
// were cancelled. Cancelled tasks are not retried.
func (p *Pool[P, R]) CancelAll() int {
	return p.cancel(cancelRequest{reply: make(chan int, 1)})
}

// Cancel rejects the listed tasks with ErrCancelled if they are still queued
// or running; a busy worker running one of them is replaced like in
// CancelAll. Unknown or finished ids are ignored. It returns how many tasks
// were cancelled.
func (p *Pool[P, R]) Cancel(ids ...string) int {
	if len(ids) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return p.cancel(cancelRequest{ids: set, reply: make(chan int, 1)})
}

func (p *Pool[P, R]) cancel(req cancelRequest) int {
	select {
	case p.cancels <- req:
		return <-req.reply
	case <-p.stopped:
		return 0
	}
}

// Shutdown cancels all outstanding work, stops every worker and waits for
// the worker goroutines to return or ctx to end. Submissions fail fast from
// the moment Shutdown is called.
func (p *Pool[P, R]) Shutdown(ctx context.Context) error {
	p.beginClosing()
	p.shutdownOnce.Do(func() {
		p.shutdowns <- struct{}{}
	})
	<-p.stopped

	done := make(chan struct{})
	go func() {
		p.execs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers to exit: %w", ctx.Err())
	}
}

// Drain stops accepting tasks, waits for queued and running tasks to finish
// and then shuts down. If ctx ends first the remaining work is cancelled.
func (p *Pool[P, R]) Drain(ctx context.Context) error {
	p.beginClosing()
	idle := make(chan struct{})
	select {
	case p.idleWaits <- idle:
	case <-p.stopped:
		return nil
	}
	select {
	case <-idle:
		return p.Shutdown(ctx)
	case <-ctx.Done():
		_ = p.Shutdown(context.Background())
		return fmt.Errorf("draining pool: %w", ctx.Err())
	}
}

// Stats returns the state published after the last dispatcher event.
func (p *Pool[P, R]) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.snapshot
}

func (p *Pool[P, R]) beginClosing() {
	p.submitMu.Lock()
	p.closing.Store(true)
	p.submitMu.Unlock()
}

func (p *Pool[P, R]) run() {
	defer close(p.stopped)
	for {
		select {
		case req := <-p.submits:
			req.reply <- p.enqueue(req.job)
		case msg := <-p.messages:
			p.handleMessage(msg)
		case ev := <-p.restarts:
			p.handleRestart(ev)
		case req := <-p.cancels:
			n := p.cancelMatching(req)
			p.settle()
			req.reply <- n
			continue
		case w := <-p.idleWaits:
			p.waiters = append(p.waiters, w)
		case <-p.shutdowns:
			p.terminate()
			p.publish()
			return
		}
		p.settle()
	}
}

// settle dispatches queued work to free workers, refreshes the published
// stats and releases drain waiters once nothing is outstanding.
func (p *Pool[P, R]) settle() {
	p.dispatch()
	p.publish()
	p.notifyIdle()
}

func (p *Pool[P, R]) enqueue(j *job[P, R]) error {
	if _, dup := p.pending[j.task.ID]; dup {
		return apperrors.Dataf("task %s is already queued or running", j.task.ID)
	}
	p.pending[j.task.ID] = j
	p.queue = append(p.queue, j)
	return nil
}

// dispatch hands queued tasks, oldest first, to idle workers in slot order.
func (p *Pool[P, R]) dispatch() {
	for _, w := range p.workers {
		if len(p.queue) == 0 {
			return
		}
		if w == nil || w.state != stateIdle {
			continue
		}
		j := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]

		j.dispatched = time.Now()
		w.state = stateBusy
		w.current = j
		w.inbox <- j
	}
}

func (p *Pool[P, R]) handleMessage(msg Message[R]) {
	if err := msg.Validate(); err != nil {
		p.stats.InvalidMessages++
		p.log.Error("invalid worker message", "worker_id", msg.WorkerID, "error", err)
		return
	}
	if msg.WorkerID < 0 || msg.WorkerID >= len(p.workers) {
		p.stats.InvalidMessages++
		p.log.Error("message from unknown worker", "worker_id", msg.WorkerID, "task_id", msg.TaskID)
		return
	}
	w := p.workers[msg.WorkerID]
	if w == nil || w.generation != msg.Generation || w.current == nil || w.current.task.ID != msg.TaskID {
		p.log.Debug("dropping stale worker message",
			"worker_id", msg.WorkerID, "task_id", msg.TaskID, "kind", msg.Kind.String())
		return
	}

	switch msg.Kind {
	case KindProgress:
		if p.onProg != nil {
			p.onProg(Progress{TaskID: msg.TaskID, WorkerID: msg.WorkerID, Fraction: msg.Fraction, Note: msg.Note})
		}
	case KindLog:
		args := append([]any{"task_id", msg.TaskID, "worker_id", msg.WorkerID}, msg.Attrs...)
		p.log.Log(context.Background(), msg.Level, msg.Note, args...)
	case KindResult:
		j := p.release(w)
		j.future.resolve(msg.Result, nil)
		p.stats.Completed++
		p.observe(j, "completed")
	case KindError:
		j := p.release(w)
		var zero R
		j.future.resolve(zero, fmt.Errorf("task %s: %w", msg.TaskID, msg.Err))
		p.stats.Failed++
		p.observe(j, "failed")
		if msg.Critical {
			p.log.Warn("worker failed critically, restarting",
				"worker_id", w.id, "task_id", msg.TaskID, "error", msg.Err, "delay", p.spec.Options.RestartDelay)
			p.scheduleRestart(w)
		} else {
			p.log.Debug("task failed", "worker_id", w.id, "task_id", msg.TaskID, "error", msg.Err)
		}
	}
}

// release frees w before anything else is dispatched and returns the job it
// was running.
func (p *Pool[P, R]) release(w *worker[P, R]) *job[P, R] {
	j := w.current
	w.current = nil
	w.state = stateIdle
	delete(p.pending, j.task.ID)
	return j
}

func (p *Pool[P, R]) scheduleRestart(w *worker[P, R]) {
	w.state = stateRestarting
	w.cancel()
	ev := restartEvent{workerID: w.id, generation: w.generation}
	delay := p.spec.Options.RestartDelay
	go func() {
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-t.C:
			case <-p.stopped:
				return
			}
		}
		select {
		case p.restarts <- ev:
		case <-p.stopped:
		}
	}()
}

func (p *Pool[P, R]) handleRestart(ev restartEvent) {
	w := p.workers[ev.workerID]
	if w == nil || w.state != stateRestarting || w.generation != ev.generation {
		return
	}
	p.spawn(ev.workerID)
	p.stats.Restarts++
	if p.metrics != nil {
		p.metrics.WorkerRestartsTotal.WithLabelValues("critical").Inc()
	}
	p.log.Info("worker restarted", "worker_id", ev.workerID, "generation", p.workers[ev.workerID].generation)
}

func (p *Pool[P, R]) cancelAll() int {
	return p.cancelMatching(cancelRequest{})
}

func (p *Pool[P, R]) cancelMatching(req cancelRequest) int {
	n := 0
	kept := p.queue[:0]
	for _, j := range p.queue {
		if !req.matches(j.task.ID) {
			kept = append(kept, j)
			continue
		}
		p.reject(j, "cancelled")
		n++
	}
	for i := len(kept); i < len(p.queue); i++ {
		p.queue[i] = nil
	}
	p.queue = kept

	for _, w := range p.workers {
		if w == nil || w.state != stateBusy || !req.matches(w.current.task.ID) {
			continue
		}
		j := w.current
		w.current = nil
		p.reject(j, "in flight")
		n++
		w.cancel()
		p.spawn(w.id)
		p.stats.Restarts++
		if p.metrics != nil {
			p.metrics.WorkerRestartsTotal.WithLabelValues("cancelled").Inc()
		}
	}
	if n > 0 {
		p.log.Info("cancelled outstanding tasks", "count", n)
	}
	return n
}

func (p *Pool[P, R]) reject(j *job[P, R], where string) {
	delete(p.pending, j.task.ID)
	var zero R
	j.future.resolve(zero, fmt.Errorf("task %s (%s): %w", j.task.ID, where, apperrors.ErrCancelled))
	p.stats.Cancelled++
	p.observe(j, "cancelled")
}

func (p *Pool[P, R]) terminate() {
	p.cancelAll()
	for i, w := range p.workers {
		if w == nil {
			continue
		}
		w.cancel()
		w.state = stateStopped
		p.workers[i] = nil
	}
	p.workers = p.workers[:0]
	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil
	p.log.Info("worker pool stopped",
		"completed", p.stats.Completed, "failed", p.stats.Failed, "cancelled", p.stats.Cancelled)
}

// spawn creates a new incarnation in slot id, replacing whatever was there.
func (p *Pool[P, R]) spawn(id int) {
	p.nextGen++
	ctx, cancel := context.WithCancel(context.Background())
	inbox := make(chan *job[P, R], 1)
	w := &worker[P, R]{
		id:         id,
		generation: p.nextGen,
		state:      stateIdle,
		inbox:      inbox,
		ctx:        ctx,
		cancel:     cancel,
	}
	p.workers[id] = w

	exec := &execution[P, R]{
		id:         id,
		generation: w.generation,
		spec:       p.spec,
		inbox:      inbox,
		out:        p.messages,
	}
	p.execs.Add(1)
	go func() {
		defer p.execs.Done()
		exec.loop(ctx)
	}()
}

func (p *Pool[P, R]) notifyIdle() {
	if len(p.waiters) == 0 || len(p.queue) > 0 {
		return
	}
	for _, w := range p.workers {
		if w != nil && w.state == stateBusy {
			return
		}
	}
	for _, ch := range p.waiters {
		close(ch)
	}
	p.waiters = nil
}

func (p *Pool[P, R]) observe(j *job[P, R], outcome string) {
	if p.metrics == nil {
		return
	}
	p.metrics.TasksTotal.WithLabelValues(outcome).Inc()
	if !j.dispatched.IsZero() {
		p.metrics.TaskDuration.Observe(time.Since(j.dispatched).Seconds())
	}
}

func (p *Pool[P, R]) publish() {
	s := p.stats
	s.Workers = len(p.workers)
	s.Idle, s.Busy, s.Restarting = 0, 0, 0
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		switch w.state {
		case stateIdle:
			s.Idle++
		case stateBusy:
			s.Busy++
		case stateRestarting:
			s.Restarting++
		}
	}
	s.Queued = len(p.queue)

	p.statsMu.Lock()
	p.snapshot = s
	p.statsMu.Unlock()

	if p.metrics != nil {
		p.metrics.PoolBusyWorkers.Set(float64(s.Busy))
		p.metrics.PoolQueueDepth.Set(float64(s.Queued))
	}
}
