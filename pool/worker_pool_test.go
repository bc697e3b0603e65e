package pool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type counterTest struct {
	count int
	mu    *sync.Mutex
}

func NewCounterTest() *counterTest {
	return &counterTest{
		count: 0,
		mu:    &sync.Mutex{},
	}
}

func (c *counterTest) Inc() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *counterTest) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// recoverErr runs fn and returns the error it panicked with
func recoverErr(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e, ok := r.(error)
			if !ok {
				e = fmt.Errorf("%v", r)
			}
			err = e
		}
	}()
	fn()
	return nil
}

func TestThreadPool_MultipleStopDontPanic(t *testing.T) {
	p := New(5, WithLogger(discard))

	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	require.Equal(t, 0, p.Running())
}

func TestNew_ZeroSizePanics(t *testing.T) {
	for _, size := range []int{0, -1} {
		err := recoverErr(func() { New(size, WithLogger(discard)) })
		require.ErrorIs(t, err, ErrInvalidSize, "size %d", size)
	}
}

func TestNew_WorkersRunningAfterConstruction(t *testing.T) {
	for _, size := range []int{1, 2, 4, 8, 16} {
		p := New(size, WithLogger(discard))
		assert.Equal(t, size, p.Size())
		assert.Equal(t, size, p.Running(), "all workers should be looping once New returns")
		require.NoError(t, p.Stop())
		assert.Equal(t, 0, p.Running())
	}
}

func TestThreadPool_Work(t *testing.T) {
	c := NewCounterTest()

	p := New(4, WithLogger(discard))
	for i := 0; i < 100; i++ {
		p.Execute(c.Inc)
	}
	require.NoError(t, p.Stop())

	require.Equal(t, 100, c.Value())
}

func TestThreadPool_JobCountMatchesSubmissions(t *testing.T) {
	for _, tc := range []struct{ workers, jobs int }{
		{1, 0}, {1, 7}, {3, 2}, {4, 1000}, {16, 5},
	} {
		t.Run(fmt.Sprintf("%d_workers_%d_jobs", tc.workers, tc.jobs), func(t *testing.T) {
			var executed atomic.Int64
			p := New(tc.workers, WithLogger(discard))
			for i := 0; i < tc.jobs; i++ {
				require.NoError(t, p.AddWork(func() { executed.Add(1) }))
			}
			require.NoError(t, p.Stop())
			require.EqualValues(t, tc.jobs, executed.Load())
		})
	}
}

func TestThreadPool_EachJobRunsOnce(t *testing.T) {
	const n = 500
	seen := make([]atomic.Int32, n)

	p := New(8, WithLogger(discard))
	for i := 0; i < n; i++ {
		marker := i
		p.Execute(func() { seen[marker].Add(1) })
	}
	require.NoError(t, p.Stop())

	for i := range seen {
		require.EqualValues(t, 1, seen[i].Load(), "job %d", i)
	}
}

func TestThreadPool_StopWaitsForRunningAndQueuedJobs(t *testing.T) {
	var finished atomic.Int32
	p := New(2, WithLogger(discard))

	for i := 0; i < 6; i++ {
		p.Execute(func() {
			time.Sleep(50 * time.Millisecond)
			finished.Add(1)
		})
	}

	require.NoError(t, p.Stop())
	require.EqualValues(t, 6, finished.Load())
}

func TestThreadPool_SingleWorkerRunsSequentially(t *testing.T) {
	var aDone, bStart time.Time
	c := NewCounterTest()

	p := New(1, WithLogger(discard))
	p.Execute(func() {
		time.Sleep(50 * time.Millisecond)
		aDone = time.Now()
	})
	p.Execute(func() {
		bStart = time.Now()
		c.Inc()
	})
	require.NoError(t, p.Stop())

	require.Equal(t, 1, c.Value())
	require.False(t, bStart.Before(aDone), "second job started before the first finished")
}

func TestThreadPool_JobsRunConcurrently(t *testing.T) {
	p := New(2, WithLogger(discard))

	var wg sync.WaitGroup
	wg.Add(2)
	bothRunning := make(chan struct{})
	go func() {
		wg.Wait()
		close(bothRunning)
	}()

	var overlapped atomic.Int32
	job := func() {
		wg.Done()
		select {
		case <-bothRunning:
			overlapped.Add(1)
		case <-time.After(2 * time.Second):
		}
	}
	p.Execute(job)
	p.Execute(job)

	require.NoError(t, p.Stop())
	require.EqualValues(t, 2, overlapped.Load(), "both jobs should have been running at the same time")
}

func TestThreadPool_StopWithoutJobs(t *testing.T) {
	p := New(8, WithLogger(discard))

	done := make(chan struct{})
	go func() {
		require.NoError(t, p.Stop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop of an idle pool is hanging")
	}
}

func TestThreadPool_AddWorkAfterStop(t *testing.T) {
	p := New(2, WithLogger(discard))
	require.NoError(t, p.Stop())
	require.True(t, p.Closed())

	var ran atomic.Bool
	require.ErrorIs(t, p.AddWork(func() { ran.Store(true) }), ErrPoolClosed)
	require.ErrorIs(t, p.AddNamedWork("late", func() { ran.Store(true) }), ErrPoolClosed)

	err := recoverErr(func() { p.Execute(func() { ran.Store(true) }) })
	require.ErrorIs(t, err, ErrPoolClosed)
	require.False(t, ran.Load())
}

func TestThreadPool_NilJob(t *testing.T) {
	p := New(1, WithLogger(discard))
	defer func() { _ = p.Stop() }()

	require.ErrorIs(t, p.AddWork(nil), ErrNilJob)
}

func TestThreadPool_Queued(t *testing.T) {
	p := New(1, WithLogger(discard))

	started := make(chan struct{})
	release := make(chan struct{})
	p.Execute(func() {
		close(started)
		<-release
	})
	<-started

	for i := 0; i < 3; i++ {
		p.Execute(func() {})
	}
	require.Equal(t, 3, p.Queued())

	close(release)
	require.NoError(t, p.Stop())
	require.Equal(t, 0, p.Queued())
}

func TestThreadPool_RaceConditionOnStop(t *testing.T) {
	p := New(10, WithLogger(discard))

	var accepted, executed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.AddWork(func() { executed.Add(1) })
			if err == nil {
				accepted.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrPoolClosed)
		}()
	}

	// stop the pool while work is still being added
	time.Sleep(time.Millisecond)
	stopped := make(chan struct{})
	go func() {
		assert.NoError(t, p.Stop())
		close(stopped)
	}()

	wg.Wait()
	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		t.Fatal("failed because still hanging on Stop")
	}

	require.Equal(t, accepted.Load(), executed.Load(), "every accepted job must run")
}

func TestThreadPool_JobCanSubmitMoreWork(t *testing.T) {
	c := NewCounterTest()
	p := New(2, WithLogger(discard))

	done := make(chan struct{})
	p.Execute(func() {
		c.Inc()
		p.Execute(func() {
			c.Inc()
			close(done)
		})
	})
	<-done

	require.NoError(t, p.Stop())
	require.Equal(t, 2, c.Value())
}

func TestThreadPool_Observers(t *testing.T) {
	type event struct {
		kind string
		info JobInfo
	}

	var mu sync.Mutex
	events := map[string][]event{}
	record := func(kind string) func(JobInfo) {
		return func(i JobInfo) {
			mu.Lock()
			defer mu.Unlock()
			events[i.ID] = append(events[i.ID], event{kind: kind, info: i})
		}
	}

	p := New(3, WithLogger(discard), WithObserver(ObserverFuncs{
		Submitted: record("submitted"),
		Started:   record("started"),
		Finished:  record("finished"),
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, p.AddNamedWork(fmt.Sprintf("job-%d", i), func() {}))
	}
	require.NoError(t, p.Stop())

	require.Len(t, events, 20, "every job should have a distinct id")
	for id, evs := range events {
		require.Len(t, evs, 3, "job %s", id)
		assert.Equal(t, "submitted", evs[0].kind)
		assert.Equal(t, "started", evs[1].kind)
		assert.Equal(t, "finished", evs[2].kind)

		assert.Equal(t, -1, evs[0].info.WorkerID)
		fin := evs[2].info
		assert.GreaterOrEqual(t, fin.WorkerID, 0)
		assert.Less(t, fin.WorkerID, 3)
		assert.False(t, fin.Failed())
		assert.False(t, fin.FinishedAt.Before(fin.StartedAt))
		assert.Contains(t, fin.Name, "job-")
	}
}

func TestThreadPool_PanicHandlerKeepsWorkerAlive(t *testing.T) {
	var mu sync.Mutex
	var panicked []JobInfo
	c := NewCounterTest()

	p := New(1, WithLogger(discard), WithPanicHandler(func(i JobInfo) {
		mu.Lock()
		panicked = append(panicked, i)
		mu.Unlock()
	}))

	require.NoError(t, p.AddNamedWork("boom", func() { panic(errors.New("boom")) }))
	p.Execute(c.Inc)
	p.Execute(c.Inc)
	require.NoError(t, p.Stop())

	require.Equal(t, 2, c.Value(), "the single worker must survive the panic")
	require.Len(t, panicked, 1)
	assert.Equal(t, "boom", panicked[0].Name)
	assert.True(t, panicked[0].Failed())
	assert.EqualError(t, panicked[0].Panic.(error), "boom")
}

func TestThreadPool_PanicWithoutHandlerIsFatal(t *testing.T) {
	if os.Getenv("THREADPOOL_PANIC_CHILD") == "1" {
		p := New(1, WithLogger(discard))
		p.Execute(func() { panic("boom") })
		_ = p.Stop()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestThreadPool_PanicWithoutHandlerIsFatal$")
	cmd.Env = append(os.Environ(), "THREADPOOL_PANIC_CHILD=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, "the process should die on an unrecovered job panic")
	require.NotEqual(t, 0, exitErr.ExitCode())
	require.Contains(t, stderr.String(), "panic: boom")
}

func TestThreadPool_StopFromJobInNewGoroutine(t *testing.T) {
	p := New(2, WithLogger(discard))

	stopped := make(chan struct{})
	p.Execute(func() {
		go func() {
			_ = p.Stop()
			close(stopped)
		}()
	})

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop started by a job is hanging")
	}

	require.True(t, p.Closed())
	require.Equal(t, 0, p.Running())
}
