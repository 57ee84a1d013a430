package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInlineRunner(t *testing.T) {
	ctx := context.Background()
	failure := errors.New("boom")

	var seen []string
	runner := NewInlineRunner(zaptest.NewLogger(t), func(ctx context.Context, task Task) error {
		seen = append(seen, task.ID)
		if task.Attempt > 1 {
			return failure
		}
		return nil
	})

	task := NewTask(uploadEvent())
	require.NoError(t, runner.Submit(ctx, task))
	assert.ErrorIs(t, runner.Submit(ctx, task.Retry()), failure)
	assert.Len(t, seen, 2)

	panicking := NewInlineRunner(zaptest.NewLogger(t), func(ctx context.Context, task Task) error {
		panic("bad payload")
	})
	err := panicking.Submit(ctx, task)
	assert.True(t, Error.Has(err))
}

func TestPoolRunner(t *testing.T) {
	var mu sync.Mutex
	done := map[string]bool{}
	runner := NewPoolRunner(zaptest.NewLogger(t), func(ctx context.Context, task Task) error {
		if task.Reason == ReasonReprocess {
			panic("workers survive panics")
		}
		mu.Lock()
		defer mu.Unlock()
		done[task.ID] = true
		return nil
	}, 3, 64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tasks []Task
	for i := 0; i < 20; i++ {
		task := NewTask(uploadEvent())
		tasks = append(tasks, task)
		require.NoError(t, runner.Submit(ctx, task))
		require.NoError(t, runner.Submit(ctx, task.Retry()))
	}

	errc := make(chan error, 1)
	go func() { errc <- runner.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(done) == len(tasks)
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
}

func TestPoolRunner_QueueFull(t *testing.T) {
	runner := NewPoolRunner(zaptest.NewLogger(t), func(ctx context.Context, task Task) error { return nil }, 1, 2)
	ctx := context.Background()

	require.NoError(t, runner.Submit(ctx, NewTask(uploadEvent())))
	require.NoError(t, runner.Submit(ctx, NewTask(uploadEvent())))
	err := runner.Submit(ctx, NewTask(uploadEvent()))
	assert.True(t, ErrQueueFull.Has(err))
	assert.Equal(t, 2, runner.Pending())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, runner.Submit(canceled, NewTask(uploadEvent())), context.Canceled)
}

// refusingRunner rejects every task.
type refusingRunner struct {
	submitted int
}

func (r *refusingRunner) Submit(ctx context.Context, task Task) error {
	r.submitted++
	return ErrQueueFull.New("task %s", task.ID)
}

func TestDispatcher_RefusedReprocessRunsInline(t *testing.T) {
	f := newFixture(t, Config{})
	s := newScenario(f, "U-refused")

	require.NoError(t, f.process(s.anotEvent))
	assert.Equal(t, 1, f.cache.Waiting("U-refused"))

	refusing := &refusingRunner{}
	f.dispatcher.SetRunner(refusing)
	require.NoError(t, f.process(s.imageEvent))

	assert.Equal(t, 1, refusing.submitted)
	s.assertIngested(t, f)
}
