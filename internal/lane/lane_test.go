package lane

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/lanes/internal/admission"
	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/event"
)

func testConfig(min, max, queue int, overflow admission.Overflow) Config {
	return Config{
		Kind:          KindIO,
		MinWorkers:    min,
		MaxWorkers:    max,
		QueueCapacity: queue,
		Overflow:      overflow,
		Priority:      PriorityNormal,
		NamePrefix:    DefaultNamePrefix,
	}
}

func newTestLane(t *testing.T, cfg Config, opts ...Option) *Lane {
	t.Helper()
	l, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		l.ShutdownNow()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.AwaitTermination(ctx)
	})
	return l
}

// blocker returns a task that waits on release, and a channel signalled when
// it starts.
func blocker(release <-chan struct{}) (Task, <-chan struct{}) {
	started := make(chan struct{})
	return TaskFunc(func() {
		close(started)
		<-release
	}), started
}

func waitStarted(t *testing.T, started <-chan struct{}) {
	t.Helper()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not start")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(testConfig(3, 1, 1, admission.OverflowReject))
	assert.Error(t, err)
}

func TestNew_OverflowAliases(t *testing.T) {
	seq := DefaultConfig(KindSequential)
	seq.QueueCapacity = 1
	seq.Overflow = "caller_runs"
	_, err := New(seq)
	require.Error(t, err, "caller_runs is run-inline and would let the sequential lane overlap tasks")

	l := newTestLane(t, testConfig(1, 1, 1, "caller_runs"))
	assert.Equal(t, admission.OverflowRunInline, l.Config().Overflow)
}

func TestLane_ExecuteRunsTasks(t *testing.T) {
	l := newTestLane(t, testConfig(2, 4, 16, admission.OverflowRunInline))

	var ran atomic.Int32
	for range 50 {
		require.NoError(t, l.Execute(TaskFunc(func() { ran.Add(1) })))
	}

	assert.Eventually(t, func() bool { return ran.Load() == 50 }, 5*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return l.Stats().Completed == 50 }, 5*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, l.Stats().LargestPoolSize, 4)
}

func TestLane_ExecuteNilTask(t *testing.T) {
	l := newTestLane(t, testConfig(1, 1, 1, admission.OverflowReject))
	assert.Error(t, l.Execute(nil))
}

func TestLane_GrowsToMaxThenRunsInline(t *testing.T) {
	l := newTestLane(t, testConfig(1, 3, 1, admission.OverflowRunInline))
	release := make(chan struct{})
	defer close(release)

	// Worker 1 takes the first task, the second waits in the queue, and the
	// next two each get a fresh worker because the queue is full.
	first, started1 := blocker(release)
	require.NoError(t, l.Execute(first))
	waitStarted(t, started1)

	queued, _ := blocker(release)
	require.NoError(t, l.Execute(queued))

	third, started3 := blocker(release)
	require.NoError(t, l.Execute(third))
	fourth, started4 := blocker(release)
	require.NoError(t, l.Execute(fourth))
	waitStarted(t, started3)
	waitStarted(t, started4)

	stats := l.Stats()
	assert.Equal(t, 3, stats.PoolSize)
	assert.Equal(t, 1, stats.Queued)

	// Saturated: the fifth task runs on this goroutine before Execute returns.
	ranInline := false
	require.NoError(t, l.Execute(TaskFunc(func() { ranInline = true })))
	assert.True(t, ranInline)
	assert.Equal(t, uint64(1), l.Stats().InlineRuns)
}

func TestLane_RejectOverflow(t *testing.T) {
	bus := event.NewBus()
	var saturated []event.LaneSaturatedEvent
	var mu sync.Mutex
	bus.Subscribe(event.TypeLaneSaturated, func(e event.Event) {
		mu.Lock()
		saturated = append(saturated, e.(event.LaneSaturatedEvent))
		mu.Unlock()
	})

	l := newTestLane(t, testConfig(1, 1, 1, admission.OverflowReject), WithBus(bus))
	release := make(chan struct{})
	defer close(release)

	running, started := blocker(release)
	require.NoError(t, l.Execute(running))
	waitStarted(t, started)
	require.NoError(t, l.Execute(TaskFunc(func() {})))

	err := l.Execute(TaskFunc(func() { t.Error("rejected task must not run") }))
	require.Error(t, err)

	var rejected *errors.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "io", rejected.Lane)
	assert.True(t, errors.Is(err, errors.ErrQueueFull))
	assert.True(t, errors.IsRetryable(err))
	assert.Equal(t, uint64(1), l.Stats().Rejected)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, saturated, 1)
	assert.Equal(t, "reject", saturated[0].Action)
}

func TestLane_SequentialPreservesOrder(t *testing.T) {
	l := newTestLane(t, DefaultConfig(KindSequential))

	var mu sync.Mutex
	var order []int
	for i := range 200 {
		require.NoError(t, l.Execute(TaskFunc(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})))
	}

	l.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.AwaitTermination(ctx))

	require.Len(t, order, 200)
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
	assert.Equal(t, 1, l.Stats().LargestPoolSize)
}

func TestLane_PanicDoesNotKillWorker(t *testing.T) {
	l := newTestLane(t, DefaultConfig(KindSequential))

	done := make(chan struct{})
	require.NoError(t, l.Execute(TaskFunc(func() { panic("boom") })))
	require.NoError(t, l.Execute(TaskFunc(func() { close(done) })))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task after the panic did not run")
	}
	assert.Eventually(t, func() bool { return l.Stats().Completed == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, l.Stats().PoolSize)
}

func TestLane_IdleWorkersExpireAboveMinimum(t *testing.T) {
	cfg := testConfig(1, 3, 1, admission.OverflowRunInline)
	cfg.KeepAlive = 20 * time.Millisecond
	l := newTestLane(t, cfg)

	release := make(chan struct{})
	for range 4 {
		task, _ := blocker(release)
		require.NoError(t, l.Execute(task))
	}
	assert.Eventually(t, func() bool { return l.Stats().PoolSize == 3 }, time.Second, time.Millisecond)

	close(release)
	assert.Eventually(t, func() bool { return l.Stats().PoolSize == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, l.Stats().LargestPoolSize)
}

func TestLane_ZeroMinimumSpawnsForQueuedWork(t *testing.T) {
	cfg := testConfig(0, 2, 4, admission.OverflowReject)
	cfg.KeepAlive = 10 * time.Millisecond
	l := newTestLane(t, cfg)

	done := make(chan struct{})
	require.NoError(t, l.Execute(TaskFunc(func() { close(done) })))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("queued task never ran")
	}
	assert.Eventually(t, func() bool { return l.Stats().PoolSize == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestLane_ShutdownDrainsQueue(t *testing.T) {
	l := newTestLane(t, testConfig(1, 1, 8, admission.OverflowReject))

	release := make(chan struct{})
	running, started := blocker(release)
	require.NoError(t, l.Execute(running))
	waitStarted(t, started)

	var ran atomic.Int32
	for range 5 {
		require.NoError(t, l.Execute(TaskFunc(func() { ran.Add(1) })))
	}

	l.Shutdown()
	l.Shutdown()
	assert.Equal(t, StateShuttingDown, l.Stats().State)

	err := l.Execute(TaskFunc(func() {}))
	assert.True(t, errors.Is(err, errors.ErrLaneShutdown))
	assert.Equal(t, errors.KindRejected, errors.KindOf(err))
	assert.False(t, errors.IsRetryable(err))

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.AwaitTermination(ctx))

	assert.Equal(t, int32(5), ran.Load())
	assert.True(t, l.Terminated())
	assert.Equal(t, StateTerminated, l.Stats().State)
	assert.Equal(t, uint64(0), l.Stats().Rejected)
}

type discardTask struct {
	ran       atomic.Bool
	discarded chan error
}

func (d *discardTask) Run()              { d.ran.Store(true) }
func (d *discardTask) Discard(err error) { d.discarded <- err }

func TestLane_ShutdownNowReturnsQueuedTasks(t *testing.T) {
	l := newTestLane(t, testConfig(1, 1, 8, admission.OverflowReject))

	release := make(chan struct{})
	running, started := blocker(release)
	require.NoError(t, l.Execute(running))
	waitStarted(t, started)

	tasks := make([]*discardTask, 3)
	for i := range tasks {
		tasks[i] = &discardTask{discarded: make(chan error, 1)}
		require.NoError(t, l.Execute(tasks[i]))
	}

	dropped := l.ShutdownNow()
	assert.Len(t, dropped, 3)
	for _, task := range tasks {
		err := <-task.discarded
		assert.True(t, errors.Is(err, errors.ErrTaskDiscarded))
		assert.False(t, task.ran.Load())
	}

	// The in-flight task is not interrupted.
	assert.False(t, l.Terminated())
	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.AwaitTermination(ctx))
}

func TestLane_AwaitTerminationHonorsContext(t *testing.T) {
	l := newTestLane(t, testConfig(1, 1, 1, admission.OverflowReject))

	release := make(chan struct{})
	defer close(release)
	running, started := blocker(release)
	require.NoError(t, l.Execute(running))
	waitStarted(t, started)
	l.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.AwaitTermination(ctx), context.DeadlineExceeded)
}

func TestLane_ShutdownWithoutWorkersTerminatesImmediately(t *testing.T) {
	bus := event.NewBus()
	var terminated atomic.Int32
	bus.Subscribe(event.TypeLaneTerminated, func(e event.Event) { terminated.Add(1) })

	l := newTestLane(t, DefaultConfig(KindIO), WithBus(bus))
	l.Shutdown()

	assert.True(t, l.Terminated())
	assert.Equal(t, int32(1), terminated.Load())
	assert.Empty(t, l.ShutdownNow())
}

func TestLane_PublishesWorkerEvents(t *testing.T) {
	bus := event.NewBus()
	var started, stopped atomic.Int32
	bus.Subscribe(event.TypeWorkerStarted, func(e event.Event) { started.Add(1) })
	bus.Subscribe(event.TypeWorkerStopped, func(e event.Event) {
		if e.(event.WorkerStoppedEvent).Reason == event.StopReasonShutdown {
			stopped.Add(1)
		}
	})

	l := newTestLane(t, testConfig(2, 2, 4, admission.OverflowReject), WithBus(bus))
	for range 2 {
		require.NoError(t, l.Execute(TaskFunc(func() {})))
	}
	assert.Eventually(t, func() bool { return started.Load() == 2 }, time.Second, time.Millisecond)

	l.Shutdown()
	assert.Eventually(t, func() bool { return stopped.Load() == 2 }, time.Second, time.Millisecond)
}

func TestLane_StatsSnapshot(t *testing.T) {
	cfg := DefaultConfig(KindCompute)
	l := newTestLane(t, cfg)

	stats := l.Stats()
	assert.Equal(t, KindCompute, stats.Kind)
	assert.Equal(t, "lanes-compute", stats.Name)
	assert.Equal(t, StateRunning, stats.State)
	assert.Equal(t, cfg.MinWorkers, stats.MinWorkers)
	assert.Equal(t, cfg.MaxWorkers, stats.MaxWorkers)
	assert.Equal(t, cfg.QueueCapacity, stats.QueueCapacity)
	assert.Equal(t, PriorityHigh, stats.Priority)
	assert.Zero(t, stats.PoolSize)

	idle := IdleStats(cfg)
	assert.Equal(t, StateIdle, idle.State)
	assert.Equal(t, cfg.Name(), idle.Name)
}
