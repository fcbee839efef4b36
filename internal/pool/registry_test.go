package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/lanes/internal/admission"
	"github.com/Iron-Ham/lanes/internal/coordinator"
	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/event"
	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/task"
)

type refusingDispatcher struct{}

func (refusingDispatcher) Post(func()) error                       { return errors.ErrCoordinatorStopped }
func (refusingDispatcher) PostDelayed(func(), time.Duration) error { return errors.ErrCoordinatorStopped }
func (refusingDispatcher) Clear() int                              { return 0 }

func newRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r
}

func await[T any](t *testing.T, h *task.Handle[T]) task.Envelope[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env, err := h.Await(ctx)
	require.NoError(t, err, "handle did not resolve")
	return env
}

func configWith(kind lane.Kind, mutate func(*lane.Config)) Config {
	cfg := DefaultConfig()
	lc := cfg.Lanes[kind]
	mutate(&lc)
	cfg.Lanes[kind] = lc
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := configWith(lane.KindIO, func(c *lane.Config) { c.QueueCapacity = 0 })
	_, err := New(WithConfig(cfg))
	assert.Error(t, err)

	cfg = DefaultConfig()
	delete(cfg.Lanes, lane.KindSequential)
	_, err = New(WithConfig(cfg))
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.DrainTimeout = 0
	_, err = New(WithConfig(cfg))
	assert.Error(t, err)
}

func TestSubmitCompute_Success(t *testing.T) {
	r := newRegistry(t)

	h := SubmitCompute(r, func() (float64, error) {
		sum := 0.0
		for _, v := range []float64{1, 2, 3} {
			sum += v
		}
		return sum, nil
	})

	env := await(t, h)
	assert.True(t, env.Success)
	assert.Equal(t, 6.0, env.Value)
	assert.NoError(t, env.Err)
	assert.Equal(t, lane.KindCompute, env.Lane)
	assert.Equal(t, h.ID(), env.TaskID)
	assert.Equal(t, 6.0, h.Get())
}

type illegalStateError struct{ msg string }

func (e *illegalStateError) Error() string { return e.msg }

func TestSubmit_ErrorIdentityPreserved(t *testing.T) {
	r := newRegistry(t)
	cause := &illegalStateError{msg: "x"}

	env := await(t, SubmitIO(r, func() (int, error) { return 0, cause }))
	assert.False(t, env.Success)
	assert.Same(t, cause, env.Err)
	assert.Zero(t, env.Value)
	assert.Equal(t, errors.KindExecution, env.Kind())
}

func TestSubmit_PanicsBecomeFailures(t *testing.T) {
	r := newRegistry(t)

	cause := &illegalStateError{msg: "x"}
	env := await(t, SubmitIO(r, func() (string, error) { panic(cause) }))
	assert.Same(t, cause, env.Err, "a panicked error is delivered unchanged")

	env = await(t, SubmitIO(r, func() (string, error) { panic("not an error") }))
	var pe *errors.PanicError
	require.True(t, errors.As(env.Err, &pe))
	assert.Equal(t, "not an error", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.Equal(t, errors.KindExecution, env.Kind())
}

func TestSubmitWithTimeout_PostHoc(t *testing.T) {
	r := newRegistry(t)

	var finished atomic.Bool
	h := SubmitWithTimeout(r, 50*time.Millisecond, lane.KindCompute, func() (string, error) {
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
		return "done", nil
	})

	env := await(t, h)
	assert.True(t, finished.Load(), "the work item must run to completion")
	assert.False(t, env.Success)
	assert.Equal(t, errors.KindTimeoutExceeded, env.Kind())
	assert.GreaterOrEqual(t, env.Elapsed, 200*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, env.Budget)
	assert.Empty(t, env.Value)

	var te *errors.TimeoutExceededError
	require.True(t, errors.As(env.Err, &te))
	assert.Equal(t, "compute", te.Lane)
}

func TestSubmitWithTimeout_WithinBudget(t *testing.T) {
	r := newRegistry(t)

	env := await(t, SubmitWithTimeout(r, time.Second, lane.KindIO, func() (int, error) { return 1, nil }))
	assert.True(t, env.Success)
	assert.Equal(t, 1, env.Value)
}

func TestSubmitWithTimeout_ErrorWinsOverBudget(t *testing.T) {
	r := newRegistry(t)
	cause := errors.New("slow and broken")

	env := await(t, SubmitWithTimeout(r, time.Millisecond, lane.KindIO, func() (int, error) {
		time.Sleep(20 * time.Millisecond)
		return 0, cause
	}))
	assert.Same(t, cause, env.Err)
	assert.Equal(t, errors.KindExecution, env.Kind())
}

func TestSubmit_ReactionsRunOnCoordinator(t *testing.T) {
	r := newRegistry(t)
	loop := r.Dispatcher().(*coordinator.Loop)

	release := make(chan struct{})
	results := make(chan bool, 2)
	h := SubmitIO(r, func() (int, error) {
		<-release
		return 3, nil
	})
	h.OnSuccess(func(int) { results <- loop.IsLoopGoroutine() })
	close(release)
	await(t, h)

	// Registered after resolution: replayed on the coordinator, exactly once.
	var calls atomic.Int32
	h.OnComplete(func(env task.Envelope[int]) {
		calls.Add(1)
		results <- loop.IsLoopGoroutine() && env.Value == 3
	})

	for range 2 {
		select {
		case onLoop := <-results:
			assert.True(t, onLoop)
		case <-time.After(5 * time.Second):
			t.Fatal("reaction did not run")
		}
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmitSequential_StrictOrder(t *testing.T) {
	r := newRegistry(t)

	var mu sync.Mutex
	var log []string
	record := func(s string) {
		mu.Lock()
		log = append(log, s)
		mu.Unlock()
	}

	var last *task.Handle[int]
	for i := range 20 {
		last = SubmitSequential(r, func() (int, error) {
			record("start")
			time.Sleep(time.Millisecond)
			record("end")
			return i, nil
		})
	}
	assert.Equal(t, 19, await(t, last).Value)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, log, 40)
	for i := 0; i < len(log); i += 2 {
		require.Equal(t, "start", log[i], "task %d overlapped its predecessor", i/2)
		require.Equal(t, "end", log[i+1])
	}
}

func TestSubmit_CallerRunsWhenSaturated(t *testing.T) {
	cfg := configWith(lane.KindIO, func(c *lane.Config) {
		c.MinWorkers, c.MaxWorkers, c.QueueCapacity = 1, 1, 1
		c.Overflow = admission.OverflowRunInline
	})
	r := newRegistry(t, WithConfig(cfg))

	release := make(chan struct{})
	started := make(chan struct{})
	blocked := SubmitIO(r, func() (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started
	queued := SubmitIO(r, func() (int, error) { return 0, nil })

	submitter := coordinator.GoroutineID()
	var ranOn uint64
	inline := SubmitIO(r, func() (int, error) {
		ranOn = coordinator.GoroutineID()
		return 1, nil
	})
	assert.Equal(t, submitter, ranOn, "saturated lane should run the task on the submitter")

	close(release)
	await(t, blocked)
	await(t, queued)
	assert.Equal(t, 1, await(t, inline).Value)

	ls, ok := r.Stats().Lane(lane.KindIO)
	require.True(t, ok)
	assert.Equal(t, uint64(1), ls.InlineRuns)
}

func TestSubmit_RejectedWhenQueueFull(t *testing.T) {
	cfg := configWith(lane.KindSequential, func(c *lane.Config) { c.QueueCapacity = 1 })
	r := newRegistry(t, WithConfig(cfg))

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	SubmitSequential(r, func() (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started
	SubmitSequential(r, func() (int, error) { return 0, nil })

	env := await(t, SubmitSequential(r, func() (int, error) { return 0, nil }))
	assert.Equal(t, errors.KindRejected, env.Kind())
	assert.True(t, errors.Is(env.Err, errors.ErrQueueFull))
	assert.True(t, errors.IsRetryable(env.Err))
}

func TestSubmit_UnknownLane(t *testing.T) {
	r := newRegistry(t)

	env := await(t, Submit(r, lane.Kind("gpu"), func() (int, error) { return 0, nil }))
	assert.Equal(t, errors.KindRejected, env.Kind())
	assert.True(t, errors.Is(env.Err, errors.ErrUnknownLane))
}

func TestSubmit_NilFunction(t *testing.T) {
	r := newRegistry(t)

	env := await(t, SubmitIO[int](r, nil))
	assert.False(t, env.Success)
	assert.Equal(t, errors.KindExecution, env.Kind())
}

func TestSubmit_DispatchFailure(t *testing.T) {
	r := newRegistry(t, WithDispatcher(refusingDispatcher{}))

	env := await(t, SubmitIO(r, func() (int, error) { return 1, nil }))
	assert.False(t, env.Success)
	assert.Equal(t, errors.KindDispatch, env.Kind())
	var de *errors.DispatchError
	require.True(t, errors.As(env.Err, &de))
	assert.Nil(t, de.Outcome)

	cause := errors.New("work failed")
	env = await(t, SubmitIO(r, func() (int, error) { return 0, cause }))
	require.True(t, errors.As(env.Err, &de))
	assert.Same(t, cause, de.Outcome)

	// Other handles are unaffected.
	env = await(t, SubmitCompute(r, func() (int, error) { return 2, nil }))
	assert.Equal(t, errors.KindDispatch, env.Kind())
}

func TestRegistry_StatsAfterSubmitting(t *testing.T) {
	cfg := configWith(lane.KindCompute, func(c *lane.Config) {
		c.MinWorkers = 2
		c.MaxWorkers = max(c.MaxWorkers, 4)
		c.QueueCapacity = 128
	})
	r := newRegistry(t, WithConfig(cfg))

	release := make(chan struct{})
	handles := make([]*task.Handle[int], 5)
	for i := range handles {
		handles[i] = SubmitCompute(r, func() (int, error) {
			<-release
			return i, nil
		})
	}

	assert.Eventually(t, func() bool {
		ls, _ := r.Stats().Lane(lane.KindCompute)
		return ls.Active == 2
	}, 5*time.Second, time.Millisecond)

	ls, ok := r.Stats().Lane(lane.KindCompute)
	require.True(t, ok)
	assert.Equal(t, 2, ls.PoolSize)
	assert.Equal(t, 3, ls.Queued)
	assert.Equal(t, 128, ls.QueueCapacity)
	assert.Equal(t, lane.StateRunning, ls.State)

	close(release)
	for i, h := range handles {
		assert.Equal(t, i, await(t, h).Value)
	}
}

func TestRegistry_StatsDoesNotCreateLanes(t *testing.T) {
	r := newRegistry(t)

	stats := r.Stats()
	require.Len(t, stats.Lanes, 3)
	for _, ls := range stats.Lanes {
		assert.Equal(t, lane.StateIdle, ls.State, "lane %s", ls.Kind)
	}

	await(t, SubmitIO(r, func() (int, error) { return 0, nil }))

	stats = r.Stats()
	io, _ := stats.Lane(lane.KindIO)
	seq, _ := stats.Lane(lane.KindSequential)
	assert.Equal(t, lane.StateRunning, io.State)
	assert.Equal(t, lane.StateIdle, seq.State)
}

func TestStats_Filter(t *testing.T) {
	r := newRegistry(t)
	stats := r.Stats()

	tests := []struct {
		pattern string
		want    []lane.Kind
	}{
		{"", []lane.Kind{lane.KindIO, lane.KindCompute, lane.KindSequential}},
		{"seq*", []lane.Kind{lane.KindSequential}},
		{"{io,compute}", []lane.Kind{lane.KindIO, lane.KindCompute}},
		{"lanes-c*", []lane.Kind{lane.KindCompute}},
		{"gpu", nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			filtered, err := stats.Filter(tt.pattern)
			require.NoError(t, err)
			var got []lane.Kind
			for _, ls := range filtered.Lanes {
				got = append(got, ls.Kind)
			}
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := stats.Filter("[")
	assert.Error(t, err)
}

func TestRegistry_ShutdownIsIdempotent(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	env := await(t, SubmitIO(r, func() (int, error) { return 1, nil }))
	require.True(t, env.Success)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	start := time.Now()
	require.NoError(t, r.Shutdown(ctx))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	assert.True(t, r.Stats().Shutdown)
	env = await(t, SubmitIO(r, func() (int, error) { return 1, nil }))
	assert.Equal(t, errors.KindRejected, env.Kind())
	assert.True(t, errors.Is(env.Err, errors.ErrRegistryShutdown))

	assert.ErrorIs(t, r.RunOnCoordinator(func() {}), errors.ErrRegistryShutdown)
	assert.ErrorIs(t, r.RunDelayed(time.Millisecond, func() {}), errors.ErrRegistryShutdown)
	_, err = r.Lane(lane.KindIO)
	assert.ErrorIs(t, err, errors.ErrRegistryShutdown)
}

func TestRegistry_ShutdownDrainsQueuedWork(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	var ran atomic.Int32
	for range 10 {
		SubmitSequential(r, func() (int, error) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return 0, nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))
	assert.Equal(t, int32(10), ran.Load())

	seq, _ := r.Stats().Lane(lane.KindSequential)
	assert.Equal(t, lane.StateTerminated, seq.State)
}

func TestRegistry_ShutdownForcesLanesThatDoNotDrain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DrainTimeout = 50 * time.Millisecond

	bus := event.NewBus()
	shutdownEvents := make(chan event.RegistryShutdownEvent, 1)
	bus.Subscribe(event.TypeRegistryShutdown, func(e event.Event) {
		shutdownEvents <- e.(event.RegistryShutdownEvent)
	})

	r, err := New(WithConfig(cfg), WithBus(bus))
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	SubmitSequential(r, func() (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started

	queued := make([]*task.Handle[int], 3)
	for i := range queued {
		queued[i] = SubmitSequential(r, func() (int, error) {
			t.Error("discarded task ran")
			return 0, nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	for _, h := range queued {
		env := await(t, h)
		assert.Equal(t, errors.KindRejected, env.Kind())
		assert.True(t, errors.Is(env.Err, errors.ErrTaskDiscarded))
	}

	ev := <-shutdownEvents
	assert.True(t, ev.Forced)
	assert.Equal(t, 3, ev.Discarded)
}

func TestRegistry_ShutdownInterruptedByContext(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	SubmitSequential(r, func() (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started
	pending := SubmitSequential(r, func() (int, error) { return 0, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = r.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	env := await(t, pending)
	assert.True(t, errors.Is(env.Err, errors.ErrTaskDiscarded))

	// Later calls still return nil.
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestRegistry_ExternalDispatcherIsNotStopped(t *testing.T) {
	loop := coordinator.NewLoop()
	require.NoError(t, loop.Start())
	defer loop.Stop(context.Background())

	r, err := New(WithDispatcher(loop))
	require.NoError(t, err)
	await(t, SubmitIO(r, func() (int, error) { return 1, nil }))
	require.NoError(t, r.Shutdown(context.Background()))

	ran := make(chan struct{})
	require.NoError(t, loop.Post(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("external loop should still be running")
	}
}

func TestRegistry_RunDelayed(t *testing.T) {
	r := newRegistry(t)
	loop := r.Dispatcher().(*coordinator.Loop)

	start := time.Now()
	ran := make(chan bool, 1)
	require.NoError(t, r.RunDelayed(20*time.Millisecond, func() { ran <- loop.IsLoopGoroutine() }))

	select {
	case onLoop := <-ran:
		assert.True(t, onLoop)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	case <-time.After(5 * time.Second):
		t.Fatal("delayed action did not run")
	}
}

func TestRegistry_ShutdownClearsPendingActions(t *testing.T) {
	bus := event.NewBus()
	shutdownEvents := make(chan event.RegistryShutdownEvent, 1)
	bus.Subscribe(event.TypeRegistryShutdown, func(e event.Event) {
		shutdownEvents <- e.(event.RegistryShutdownEvent)
	})

	r, err := New(WithBus(bus))
	require.NoError(t, err)

	var ran atomic.Bool
	require.NoError(t, r.RunDelayed(200*time.Millisecond, func() { ran.Store(true) }))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	ev := <-shutdownEvents
	assert.GreaterOrEqual(t, ev.Cleared, 1)

	time.Sleep(300 * time.Millisecond)
	assert.False(t, ran.Load(), "cleared action ran")
}

func TestRegistry_ShutdownResolvesClearedCompletions(t *testing.T) {
	r, err := New()
	require.NoError(t, err)

	started := make(chan struct{})
	require.NoError(t, r.RunOnCoordinator(func() {
		close(started)
		time.Sleep(300 * time.Millisecond)
	}))
	<-started

	h := SubmitCompute(r, func() (int, error) { return 7, nil })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	env := await(t, h)
	assert.Equal(t, errors.KindDispatch, env.Kind())
	assert.True(t, errors.Is(env.Err, errors.ErrCoordinatorStopped))

	var de *errors.DispatchError
	require.True(t, errors.As(env.Err, &de))
	assert.NoError(t, de.Outcome)
}

func TestDiscard_DeliveredOnCoordinator(t *testing.T) {
	r := newRegistry(t)
	loop := r.Dispatcher().(*coordinator.Loop)

	j := &job[int]{registry: r, id: task.NewID(), kind: lane.KindSequential}
	j.handle = task.NewHandle[int](j.id, r.dispatcher, r.logger)

	onLoop := make(chan bool, 1)
	j.handle.OnComplete(func(task.Envelope[int]) { onLoop <- loop.IsLoopGoroutine() })

	j.Discard(&errors.RejectedError{Lane: string(lane.KindSequential), Cause: errors.ErrTaskDiscarded})

	env := await(t, j.handle)
	assert.Equal(t, errors.KindRejected, env.Kind())
	assert.True(t, errors.Is(env.Err, errors.ErrTaskDiscarded))

	select {
	case ok := <-onLoop:
		assert.True(t, ok, "discard reaction ran off the coordinator")
	case <-time.After(5 * time.Second):
		t.Fatal("discard reaction did not run")
	}
}

func TestSubmit_PublishesTaskEvents(t *testing.T) {
	bus := event.NewBus()
	var submitted, completed atomic.Int32
	bus.Subscribe(event.TypeTaskSubmitted, func(event.Event) { submitted.Add(1) })
	bus.Subscribe(event.TypeTaskCompleted, func(e event.Event) {
		if e.(event.TaskCompletedEvent).Kind == "none" {
			completed.Add(1)
		}
	})

	r := newRegistry(t, WithBus(bus))
	for range 5 {
		await(t, SubmitIO(r, func() (int, error) { return 0, nil }))
	}

	assert.Equal(t, int32(5), submitted.Load())
	assert.Eventually(t, func() bool { return completed.Load() == 5 }, time.Second, time.Millisecond)
}
