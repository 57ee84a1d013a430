package ingest

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// InlineRunner runs every task on the submitting goroutine.
type InlineRunner struct {
	log     *zap.Logger
	handler Handler
}

// NewInlineRunner returns a runner calling handler synchronously.
func NewInlineRunner(log *zap.Logger, handler Handler) *InlineRunner {
	return &InlineRunner{log: log, handler: handler}
}

// Submit runs the task and returns its error.
func (r *InlineRunner) Submit(ctx context.Context, task Task) error {
	return runTask(ctx, r.log, r.handler, task)
}

// PoolRunner runs tasks on a fixed number of workers fed by a bounded
// queue.
type PoolRunner struct {
	log     *zap.Logger
	handler Handler
	workers int
	queue   chan Task
}

// NewPoolRunner returns a runner with the given number of workers and queue
// slots. Tasks only run once Run has been called.
func NewPoolRunner(log *zap.Logger, handler Handler, workers, queueSize int) *PoolRunner {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &PoolRunner{
		log:     log,
		handler: handler,
		workers: workers,
		queue:   make(chan Task, queueSize),
	}
}

// Submit queues the task without blocking. It fails with ErrQueueFull when
// every slot is taken.
func (p *PoolRunner) Submit(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull.New("task %s", task.ID)
	}
}

// Pending returns the number of queued tasks.
func (p *PoolRunner) Pending() int {
	return len(p.queue)
}

// Run starts the workers and blocks until ctx is canceled. Queued tasks
// that were not started are dropped.
func (p *PoolRunner) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case task := <-p.queue:
					_ = runTask(ctx, p.log, p.handler, task)
				}
			}
		})
	}
	return group.Wait()
}

// runTask calls handler, turning a panic into an error so a bad payload
// cannot take down a worker.
func runTask(ctx context.Context, log *zap.Logger, handler Handler, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Error.New("task %s panicked: %v", task.ID, r)
		}
		if err != nil {
			log.Error("ingest task failed",
				zap.String("task_id", task.ID),
				zap.String("file_id", task.Event.File.ID.Hex()),
				zap.Int("attempt", task.Attempt),
				zap.Error(err))
		}
	}()
	if handler == nil {
		return Error.New("no handler for task %s", task.ID)
	}
	return handler(ctx, task)
}
