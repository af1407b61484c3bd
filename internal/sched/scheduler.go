package sched

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/AgenticGames/miningspice/internal/locking"
	"github.com/AgenticGames/miningspice/pkg/domain"
)

// Config sizes and wires a Scheduler.
type Config struct {
	// Workers is the pool size; non-positive uses runtime.NumCPU.
	Workers int
	// Topology places workers on memory domains. Nil detects at start.
	Topology *locking.Topology
	// TerminalRetention bounds how many finished tasks stay queryable
	// through GetTaskStatus, oldest dropped first. Non-positive uses a
	// default.
	TerminalRetention int
	Logger            *slog.Logger
	Metrics           MetricsRecorder
}

// defaultTerminalRetention keeps recent outcomes queryable without
// letting the task map grow with every submission ever made.
const defaultTerminalRetention = 1024

// Scheduler owns a fixed pool of worker goroutines pulling from priority
// queues. Tasks carrying a NUMA hint queue on their preferred domain;
// workers prefer their own domain's queue, then the global queue, then
// steal, so hints never strand work.
type Scheduler struct {
	logger  *slog.Logger
	metrics MetricsRecorder
	topo    *locking.Topology

	ids  locking.Counter64
	seqs locking.Counter64

	retention int

	mu           sync.Mutex
	cond         *sync.Cond
	global       taskHeap
	domainQueues map[int]*taskHeap
	tasks        map[domain.TaskID]*task
	dependents   map[domain.TaskID][]*task
	// terminal orders finished task IDs for retention pruning.
	terminal     []domain.TaskID
	workerDomain []int
	shutdown     bool

	wg sync.WaitGroup
}

// notification carries a terminal outcome out of the scheduler lock so
// callbacks and metrics never run under it.
type notification struct {
	cb     Callback
	id     domain.TaskID
	status domain.TaskStatus
	err    error
	kind   string
	dur    time.Duration
}

// New builds a scheduler and starts its workers.
func New(cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Topology == nil {
		cfg.Topology = locking.DetectTopology()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetrics{}
	}
	if cfg.TerminalRetention <= 0 {
		cfg.TerminalRetention = defaultTerminalRetention
	}
	s := &Scheduler{
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		topo:         cfg.Topology,
		retention:    cfg.TerminalRetention,
		domainQueues: make(map[int]*taskHeap),
		tasks:        make(map[domain.TaskID]*task),
		dependents:   make(map[domain.TaskID][]*task),
		workerDomain: make([]int, cfg.Workers),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := 0; i < cfg.Workers; i++ {
		s.workerDomain[i] = cfg.Topology.DomainForWorker(i)
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return s
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int { return len(s.workerDomain) }

// SetThreadAffinity re-pins a worker to a memory domain. The change takes
// effect on the worker's next dequeue.
func (s *Scheduler) SetThreadAffinity(worker, domainID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if worker < 0 || worker >= len(s.workerDomain) {
		return fmt.Errorf("worker %d out of range [0,%d)", worker, len(s.workerDomain))
	}
	s.workerDomain[worker] = domainID
	s.cond.Broadcast()
	return nil
}

// Schedule submits work and returns its task ID. The zero ID is returned
// only when scheduling fails (nil work or shutdown in progress).
func (s *Scheduler) Schedule(work Work, cfg domain.TaskConfig, desc string) (domain.TaskID, error) {
	return s.ScheduleWithCallback(work, cfg, desc, nil)
}

// ScheduleWithCallback is Schedule plus a terminal-outcome callback. The
// callback runs outside scheduler locks, once, after the task reaches a
// terminal state.
func (s *Scheduler) ScheduleWithCallback(work Work, cfg domain.TaskConfig, desc string, cb Callback) (domain.TaskID, error) {
	if work == nil {
		return domain.InvalidTaskID, fmt.Errorf("schedule %q: work must not be nil", desc)
	}

	var notes []notification
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return domain.InvalidTaskID, domain.ErrShuttingDown
	}
	// A required dependency must name a task that was actually issued;
	// silently treating a typo'd ID as satisfied hides wiring bugs.
	for _, dep := range cfg.Dependencies {
		if dep.Optional {
			continue
		}
		if _, ok := s.tasks[dep.TaskID]; !ok && !s.issuedLocked(dep.TaskID) {
			s.mu.Unlock()
			return domain.InvalidTaskID, fmt.Errorf("schedule %q: unknown dependency task %d", desc, dep.TaskID)
		}
	}
	t := &task{
		id:         domain.TaskID(s.ids.Increment()),
		work:       work,
		cfg:        cfg,
		desc:       desc,
		cb:         cb,
		seq:        uint64(s.seqs.Increment()),
		priority:   cfg.Priority,
		done:       make(chan struct{}),
		enqueuedAt: time.Now(),
	}
	s.tasks[t.id] = t

	failedDep := domain.InvalidTaskID
	for _, dep := range cfg.Dependencies {
		if dep.Optional {
			continue
		}
		d, ok := s.tasks[dep.TaskID]
		if !ok || d.status == domain.TaskCompleted {
			// Absent but issued means the dependency finished and was
			// pruned by retention; it cannot still be pending.
			continue
		}
		if d.status.Terminal() {
			failedDep = dep.TaskID
			break
		}
		if t.pendingDeps == nil {
			t.pendingDeps = make(map[domain.TaskID]struct{})
		}
		t.pendingDeps[dep.TaskID] = struct{}{}
		s.dependents[dep.TaskID] = append(s.dependents[dep.TaskID], t)
	}

	switch {
	case failedDep != domain.InvalidTaskID:
		s.finishLocked(t, domain.TaskFailed,
			fmt.Errorf("dependency %d did not complete", failedDep), &notes)
	case len(t.pendingDeps) > 0:
		t.status = domain.TaskWaiting
	default:
		t.status = domain.TaskQueued
		s.enqueueLocked(t)
	}
	id := t.id
	s.mu.Unlock()
	s.deliver(notes)
	return id, nil
}

// issuedLocked reports whether an ID has ever been handed out. IDs are
// assigned from a monotonic counter, so anything at or below its
// current value existed at some point.
func (s *Scheduler) issuedLocked(id domain.TaskID) bool {
	return id != domain.InvalidTaskID && int64(id) <= s.ids.Load()
}

// enqueueLocked places a queued task on its preferred queue.
func (s *Scheduler) enqueueLocked(t *task) {
	if t.cfg.Hints&domain.HintNUMAAware != 0 && t.cfg.NUMADomain >= 0 {
		q, ok := s.domainQueues[t.cfg.NUMADomain]
		if !ok {
			q = &taskHeap{}
			s.domainQueues[t.cfg.NUMADomain] = q
		}
		q.push(t)
	} else {
		s.global.push(t)
	}
	s.cond.Broadcast()
}

// dequeueLocked picks the next task for a worker: own domain first, the
// global queue second, then stealing from any backed-up domain.
func (s *Scheduler) dequeueLocked(worker int) *task {
	dom := s.workerDomain[worker]
	if q, ok := s.domainQueues[dom]; ok {
		if t := q.pop(); t != nil {
			return t
		}
	}
	if t := s.global.pop(); t != nil {
		return t
	}
	for _, q := range s.domainQueues {
		if t := q.pop(); t != nil {
			return t
		}
	}
	return nil
}

func (s *Scheduler) worker(index int) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		var t *task
		for {
			t = s.dequeueLocked(index)
			if t != nil || s.shutdown {
				break
			}
			s.cond.Wait()
		}
		if t == nil {
			s.mu.Unlock()
			return
		}
		t.status = domain.TaskExecuting
		ctx, cancel := context.WithCancel(context.Background())
		t.cancelExec = cancel
		s.mu.Unlock()

		err := runWork(ctx, t.work)
		cancel()

		var notes []notification
		s.mu.Lock()
		s.settleLocked(t, err, &notes)
		s.mu.Unlock()
		s.deliver(notes)
	}
}

// runWork shields the pool from panicking work functions.
func runWork(ctx context.Context, w Work) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return w(ctx)
}

// settleLocked resolves an executed task: cancellation wins, then retry
// policy, then the terminal outcome.
func (s *Scheduler) settleLocked(t *task, err error, notes *[]notification) {
	t.cancelExec = nil
	if t.cancelled {
		s.finishLocked(t, domain.TaskCancelled, context.Canceled, notes)
		return
	}
	if err == nil {
		s.finishLocked(t, domain.TaskCompleted, nil, notes)
		return
	}
	if t.attempts < t.cfg.MaxRetries {
		t.attempts++
		t.priority += t.cfg.RetryPriorityBoost
		t.seq = uint64(s.seqs.Increment())
		t.status = domain.TaskQueued
		s.logger.Warn("retrying task",
			"task", t.id, "kind", t.cfg.Kind, "attempt", t.attempts, "error", err)
		if delay := t.cfg.RetryDelay; delay > 0 {
			time.AfterFunc(delay, func() { s.requeue(t) })
		} else {
			s.enqueueLocked(t)
		}
		return
	}
	s.finishLocked(t, domain.TaskFailed, err, notes)
}

func (s *Scheduler) requeue(t *task) {
	var notes []notification
	s.mu.Lock()
	switch {
	case s.shutdown:
		s.finishLocked(t, domain.TaskCancelled, context.Canceled, &notes)
	case t.status == domain.TaskQueued:
		s.enqueueLocked(t)
	}
	s.mu.Unlock()
	s.deliver(notes)
}

// finishLocked records a terminal state and releases dependents. Failed and
// cancelled dependencies fail their required dependents rather than leaving
// them waiting forever.
func (s *Scheduler) finishLocked(t *task, status domain.TaskStatus, err error, notes *[]notification) {
	if t.status.Terminal() {
		return
	}
	t.finish(status, err)
	s.terminal = append(s.terminal, t.id)
	for len(s.terminal) > s.retention {
		delete(s.tasks, s.terminal[0])
		s.terminal = s.terminal[1:]
	}
	*notes = append(*notes, notification{
		cb:     t.cb,
		id:     t.id,
		status: status,
		err:    err,
		kind:   t.cfg.Kind,
		dur:    time.Since(t.enqueuedAt),
	})

	waiting := s.dependents[t.id]
	delete(s.dependents, t.id)
	for _, w := range waiting {
		if w.status.Terminal() {
			continue
		}
		delete(w.pendingDeps, t.id)
		if status != domain.TaskCompleted {
			s.finishLocked(w, domain.TaskFailed,
				fmt.Errorf("dependency %d %s", t.id, status), notes)
			continue
		}
		if len(w.pendingDeps) == 0 && w.status == domain.TaskWaiting {
			w.status = domain.TaskQueued
			s.enqueueLocked(w)
		}
	}
}

func (s *Scheduler) deliver(notes []notification) {
	for _, n := range notes {
		s.metrics.ObserveTask(n.kind, n.status, n.dur)
		if n.cb != nil {
			n.cb(n.id, n.status, n.err)
		}
	}
}

// CancelTask cancels a task. Tasks still queued or waiting are removed
// without running; an executing task keeps running but its context is
// cancelled and its terminal state becomes Cancelled. Returns false for
// unknown or already-terminal tasks.
func (s *Scheduler) CancelTask(id domain.TaskID) bool {
	var notes []notification
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	switch t.status {
	case domain.TaskExecuting:
		t.cancelled = true
		if t.cancelExec != nil {
			t.cancelExec()
		}
	case domain.TaskQueued:
		s.removeFromQueuesLocked(t)
		s.finishLocked(t, domain.TaskCancelled, context.Canceled, &notes)
	default: // Waiting, Suspended
		s.finishLocked(t, domain.TaskCancelled, context.Canceled, &notes)
	}
	s.mu.Unlock()
	s.deliver(notes)
	return true
}

func (s *Scheduler) removeFromQueuesLocked(t *task) {
	if s.global.remove(t) {
		return
	}
	for _, q := range s.domainQueues {
		if q.remove(t) {
			return
		}
	}
}

// SuspendTask parks a queued task so workers skip it until ResumeTask.
func (s *Scheduler) SuspendTask(id domain.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.status != domain.TaskQueued {
		return false
	}
	s.removeFromQueuesLocked(t)
	t.status = domain.TaskSuspended
	return true
}

// ResumeTask returns a suspended task to its queue.
func (s *Scheduler) ResumeTask(id domain.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.status != domain.TaskSuspended {
		return false
	}
	t.status = domain.TaskQueued
	s.enqueueLocked(t)
	return true
}

// GetTaskStatus reports a task's current state. Finished tasks stay
// queryable until retention prunes them.
func (s *Scheduler) GetTaskStatus(id domain.TaskID) (domain.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return 0, false
	}
	return t.status, true
}

// WaitForTask blocks until the task reaches a terminal state or the
// timeout elapses. A non-positive timeout waits indefinitely.
func (s *Scheduler) WaitForTask(id domain.TaskID, timeout time.Duration) (domain.TaskStatus, error) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown task %d", id)
	}
	if timeout <= 0 {
		<-t.done
		return t.outcome()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return t.outcome()
	case <-timer.C:
		s.mu.Lock()
		status := t.status
		s.mu.Unlock()
		return status, domain.ErrTimeout
	}
}

// WaitForTasks waits for every listed task under one shared deadline.
func (s *Scheduler) WaitForTasks(ids []domain.TaskID, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for _, id := range ids {
		remaining := time.Duration(0)
		if timeout > 0 {
			if remaining = time.Until(deadline); remaining <= 0 {
				return domain.ErrTimeout
			}
		}
		if _, err := s.WaitForTask(id, remaining); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops accepting work, cancels everything not yet executing, and
// waits for in-flight tasks until ctx expires.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	var notes []notification
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	for t := s.global.pop(); t != nil; t = s.global.pop() {
		s.finishLocked(t, domain.TaskCancelled, context.Canceled, &notes)
	}
	for _, q := range s.domainQueues {
		for t := q.pop(); t != nil; t = q.pop() {
			s.finishLocked(t, domain.TaskCancelled, context.Canceled, &notes)
		}
	}
	for _, t := range s.tasks {
		if t.status == domain.TaskWaiting || t.status == domain.TaskSuspended {
			s.finishLocked(t, domain.TaskCancelled, context.Canceled, &notes)
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()
	s.deliver(notes)

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
