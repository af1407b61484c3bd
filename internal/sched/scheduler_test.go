package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AgenticGames/miningspice/pkg/domain"
)

func newTestScheduler(t *testing.T, workers int) *Scheduler {
	t.Helper()
	s := New(Config{Workers: workers})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestScheduleAndWait(t *testing.T) {
	s := newTestScheduler(t, 2)

	var ran atomic.Bool
	id, err := s.Schedule(func(context.Context) error {
		ran.Store(true)
		return nil
	}, domain.TaskConfig{}, "unit")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if id == domain.InvalidTaskID {
		t.Fatal("got invalid task id")
	}
	status, err := s.WaitForTask(id, time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status != domain.TaskCompleted || !ran.Load() {
		t.Fatalf("status = %v, ran = %v", status, ran.Load())
	}
}

func TestPriorityOrdering(t *testing.T) {
	s := newTestScheduler(t, 1)

	gate := make(chan struct{})
	blocker, _ := s.Schedule(func(context.Context) error {
		<-gate
		return nil
	}, domain.TaskConfig{Priority: domain.PriorityCritical}, "blocker")

	var mu sync.Mutex
	var order []string
	record := func(name string) Work {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	low, _ := s.Schedule(record("low"), domain.TaskConfig{Priority: domain.PriorityLow, NUMADomain: -1}, "low")
	high, _ := s.Schedule(record("high"), domain.TaskConfig{Priority: domain.PriorityHigh, NUMADomain: -1}, "high")
	close(gate)

	if err := s.WaitForTasks([]domain.TaskID{blocker, low, high}, 2*time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if len(order) != 2 || order[0] != "high" || order[1] != "low" {
		t.Fatalf("execution order = %v, want [high low]", order)
	}
}

func TestDependencyOrdering(t *testing.T) {
	s := newTestScheduler(t, 4)

	var aDone atomic.Bool
	release := make(chan struct{})
	a, _ := s.Schedule(func(context.Context) error {
		<-release
		aDone.Store(true)
		return nil
	}, domain.TaskConfig{}, "a")

	b, _ := s.Schedule(func(context.Context) error {
		if !aDone.Load() {
			return errors.New("dependency ran out of order")
		}
		return nil
	}, domain.TaskConfig{Dependencies: []domain.TaskDependency{{TaskID: a}}, NUMADomain: -1}, "b")

	if status, _ := s.GetTaskStatus(b); status != domain.TaskWaiting {
		t.Fatalf("dependent status = %v, want waiting", status)
	}
	close(release)
	status, err := s.WaitForTask(b, 2*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status != domain.TaskCompleted {
		t.Fatalf("status = %v, want completed", status)
	}
}

func TestOptionalDependencyDoesNotBlock(t *testing.T) {
	s := newTestScheduler(t, 2)

	hang := make(chan struct{})
	defer close(hang)
	slow, _ := s.Schedule(func(context.Context) error {
		<-hang
		return nil
	}, domain.TaskConfig{}, "slow")

	dependent, _ := s.Schedule(func(context.Context) error { return nil },
		domain.TaskConfig{Dependencies: []domain.TaskDependency{{TaskID: slow, Optional: true}}, NUMADomain: -1}, "dependent")

	status, err := s.WaitForTask(dependent, time.Second)
	if err != nil {
		t.Fatalf("optional dependency blocked: %v", err)
	}
	if status != domain.TaskCompleted {
		t.Fatalf("status = %v", status)
	}
}

func TestFailedDependencyFailsDependent(t *testing.T) {
	s := newTestScheduler(t, 2)

	failing, _ := s.Schedule(func(context.Context) error {
		return errors.New("boom")
	}, domain.TaskConfig{}, "failing")

	dependent, _ := s.Schedule(func(context.Context) error { return nil },
		domain.TaskConfig{Dependencies: []domain.TaskDependency{{TaskID: failing}}, NUMADomain: -1}, "dependent")

	status, err := s.WaitForTask(dependent, 2*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status != domain.TaskFailed {
		t.Fatalf("status = %v, want failed", status)
	}
}

func TestRetryUntilSuccess(t *testing.T) {
	s := newTestScheduler(t, 1)

	var calls atomic.Int32
	id, _ := s.Schedule(func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, domain.TaskConfig{Priority: domain.PriorityNormal, MaxRetries: 3, NUMADomain: -1}, "flaky")

	status, err := s.WaitForTask(id, 2*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status != domain.TaskCompleted {
		t.Fatalf("status = %v, want completed", status)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	s := newTestScheduler(t, 1)

	var calls atomic.Int32
	id, _ := s.Schedule(func(context.Context) error {
		calls.Add(1)
		return errors.New("permanent")
	}, domain.TaskConfig{Priority: domain.PriorityNormal, MaxRetries: 2, NUMADomain: -1}, "doomed")

	status, err := s.WaitForTask(id, 2*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status != domain.TaskFailed {
		t.Fatalf("status = %v, want failed", status)
	}
	if got := calls.Load(); got != 3 { // initial attempt + 2 retries
		t.Fatalf("calls = %d, want 3", got)
	}
}

func TestCancelQueuedTaskNeverRuns(t *testing.T) {
	s := newTestScheduler(t, 1)

	gate := make(chan struct{})
	blocker, _ := s.Schedule(func(context.Context) error {
		<-gate
		return nil
	}, domain.TaskConfig{}, "blocker")

	var ran atomic.Bool
	victim, _ := s.Schedule(func(context.Context) error {
		ran.Store(true)
		return nil
	}, domain.TaskConfig{}, "victim")

	if !s.CancelTask(victim) {
		t.Fatal("cancel returned false for queued task")
	}
	close(gate)
	if _, err := s.WaitForTask(blocker, time.Second); err != nil {
		t.Fatalf("wait blocker: %v", err)
	}
	status, err := s.WaitForTask(victim, time.Second)
	if err != nil {
		t.Fatalf("wait victim: %v", err)
	}
	if status != domain.TaskCancelled || ran.Load() {
		t.Fatalf("status = %v, ran = %v", status, ran.Load())
	}
}

func TestCancelExecutingTaskIsCooperative(t *testing.T) {
	s := newTestScheduler(t, 1)

	started := make(chan struct{})
	var sawCancel atomic.Bool
	id, _ := s.Schedule(func(ctx context.Context) error {
		close(started)
		select {
		case <-ctx.Done():
			sawCancel.Store(true)
		case <-time.After(2 * time.Second):
		}
		return nil
	}, domain.TaskConfig{}, "long")

	<-started
	if !s.CancelTask(id) {
		t.Fatal("cancel returned false for executing task")
	}
	status, err := s.WaitForTask(id, 3*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if status != domain.TaskCancelled {
		t.Fatalf("status = %v, want cancelled", status)
	}
	if !sawCancel.Load() {
		t.Fatal("work never observed the cancellation signal")
	}
}

func TestSuspendResume(t *testing.T) {
	s := newTestScheduler(t, 1)

	gate := make(chan struct{})
	blocker, _ := s.Schedule(func(context.Context) error {
		<-gate
		return nil
	}, domain.TaskConfig{}, "blocker")

	id, _ := s.Schedule(func(context.Context) error { return nil }, domain.TaskConfig{}, "parked")
	if !s.SuspendTask(id) {
		t.Fatal("suspend failed for queued task")
	}
	if status, _ := s.GetTaskStatus(id); status != domain.TaskSuspended {
		t.Fatalf("status = %v, want suspended", status)
	}
	if !s.ResumeTask(id) {
		t.Fatal("resume failed")
	}
	close(gate)
	if err := s.WaitForTasks([]domain.TaskID{blocker, id}, 2*time.Second); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestScheduleAfterShutdownFails(t *testing.T) {
	s := New(Config{Workers: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	id, err := s.Schedule(func(context.Context) error { return nil }, domain.TaskConfig{}, "late")
	if !errors.Is(err, domain.ErrShuttingDown) {
		t.Fatalf("err = %v, want ErrShuttingDown", err)
	}
	if id != domain.InvalidTaskID {
		t.Fatalf("id = %d, want 0", id)
	}
}

func TestCallbackReceivesOutcome(t *testing.T) {
	s := newTestScheduler(t, 2)

	outcome := make(chan domain.TaskStatus, 1)
	_, err := s.ScheduleWithCallback(func(context.Context) error { return nil },
		domain.TaskConfig{}, "cb", func(_ domain.TaskID, status domain.TaskStatus, _ error) {
			outcome <- status
		})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	select {
	case status := <-outcome:
		if status != domain.TaskCompleted {
			t.Fatalf("callback status = %v", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestNUMAHintedTaskRuns(t *testing.T) {
	s := newTestScheduler(t, 2)

	id, err := s.Schedule(func(context.Context) error { return nil }, domain.TaskConfig{
		Priority:   domain.PriorityNormal,
		Hints:      domain.HintNUMAAware,
		NUMADomain: 0,
	}, "pinned")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	status, err := s.WaitForTask(id, 2*time.Second)
	if err != nil || status != domain.TaskCompleted {
		t.Fatalf("status = %v, err = %v", status, err)
	}
}

func TestUnknownRequiredDependencyRejected(t *testing.T) {
	s := newTestScheduler(t, 1)

	id, err := s.Schedule(func(context.Context) error { return nil },
		domain.TaskConfig{Dependencies: []domain.TaskDependency{{TaskID: 9999}}, NUMADomain: -1}, "orphan")
	if err == nil {
		t.Fatal("dependency on a never-issued task accepted")
	}
	if id != domain.InvalidTaskID {
		t.Fatalf("id = %d, want 0", id)
	}

	// An optional reference to a never-issued task is still skipped.
	id, err = s.Schedule(func(context.Context) error { return nil },
		domain.TaskConfig{Dependencies: []domain.TaskDependency{{TaskID: 9999, Optional: true}}, NUMADomain: -1}, "tolerant")
	if err != nil {
		t.Fatalf("optional unknown dependency rejected: %v", err)
	}
	if status, err := s.WaitForTask(id, time.Second); err != nil || status != domain.TaskCompleted {
		t.Fatalf("status = %v, err = %v", status, err)
	}
}

func TestCompletedDependencyStillSatisfies(t *testing.T) {
	s := newTestScheduler(t, 1)

	dep, _ := s.Schedule(func(context.Context) error { return nil }, domain.TaskConfig{}, "dep")
	if _, err := s.WaitForTask(dep, time.Second); err != nil {
		t.Fatalf("wait dep: %v", err)
	}
	id, err := s.Schedule(func(context.Context) error { return nil },
		domain.TaskConfig{Dependencies: []domain.TaskDependency{{TaskID: dep}}, NUMADomain: -1}, "after")
	if err != nil {
		t.Fatalf("schedule after completed dependency: %v", err)
	}
	if status, err := s.WaitForTask(id, time.Second); err != nil || status != domain.TaskCompleted {
		t.Fatalf("status = %v, err = %v", status, err)
	}
}

func TestTerminalTaskRetentionPrunesOldest(t *testing.T) {
	s := New(Config{Workers: 1, TerminalRetention: 2})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})

	var ids []domain.TaskID
	for i := 0; i < 4; i++ {
		id, err := s.Schedule(func(context.Context) error { return nil }, domain.TaskConfig{}, "burst")
		if err != nil {
			t.Fatalf("schedule: %v", err)
		}
		if _, err := s.WaitForTask(id, time.Second); err != nil {
			t.Fatalf("wait: %v", err)
		}
		ids = append(ids, id)
	}

	for _, id := range ids[:2] {
		if _, ok := s.GetTaskStatus(id); ok {
			t.Fatalf("task %d survived past retention", id)
		}
	}
	for _, id := range ids[2:] {
		status, ok := s.GetTaskStatus(id)
		if !ok || status != domain.TaskCompleted {
			t.Fatalf("task %d: status = %v ok = %v", id, status, ok)
		}
	}
}

func TestWaitForTaskTimeoutReportsLiveStatus(t *testing.T) {
	s := newTestScheduler(t, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	id, _ := s.Schedule(func(context.Context) error {
		close(started)
		<-release
		return nil
	}, domain.TaskConfig{}, "slow")

	<-started
	status, err := s.WaitForTask(id, 20*time.Millisecond)
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if status != domain.TaskExecuting {
		t.Fatalf("status = %v, want executing", status)
	}
}

func TestExpvarMetricsRecordsOutcomes(t *testing.T) {
	m := NewExpvarMetrics("")
	m.ObserveTask("mine", domain.TaskCompleted, 3*time.Millisecond)
	m.ObserveTask("mine", domain.TaskFailed, time.Millisecond)
	m.ObserveTask("", domain.TaskCompleted, time.Millisecond)

	snap := m.Snapshot()
	if snap.Outcomes["mine"]["completed"] != 1 || snap.Outcomes["mine"]["failed"] != 1 {
		t.Fatalf("outcomes = %+v", snap.Outcomes)
	}
	if snap.Outcomes["default"]["completed"] != 1 {
		t.Fatalf("empty kind not bucketed as default: %+v", snap.Outcomes)
	}
	if snap.DurationsMS["mine"] <= 0 {
		t.Fatalf("durations = %+v", snap.DurationsMS)
	}
}
