package capture

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-concierge/internal/model"
)

// Capturer performs one capture. *Dispatcher implements it.
type Capturer interface {
	Capture(ctx context.Context, in Input) model.CaptureResult
}

// Task is one queued capture. Done, when set, receives the result on the
// worker goroutine.
type Task struct {
	Input Input
	Done  func(model.CaptureResult)
}

// Queue runs captures on a fixed pool of background workers.
type Queue struct {
	capturer Capturer
	tasks    chan Task

	mu     sync.RWMutex
	closed bool

	wg sync.WaitGroup
}

// NewQueue creates a queue buffering up to size tasks.
func NewQueue(c Capturer, size int) *Queue {
	if size <= 0 {
		size = 64
	}
	return &Queue{capturer: c, tasks: make(chan Task, size)}
}

// Submit enqueues t without blocking. It returns false when the buffer is
// full or the queue is closed.
func (q *Queue) Submit(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.tasks <- t:
		return true
	default:
		return false
	}
}

// Pending returns the number of buffered tasks.
func (q *Queue) Pending() int { return len(q.tasks) }

// Start launches workers that drain the queue until Close. ctx is handed
// to every capture.
func (q *Queue) Start(ctx context.Context, workers int) {
	workers = max(workers, 1)
	for i := range workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for t := range q.tasks {
				q.run(ctx, i, t)
			}
		}()
	}
	zap.L().Info("capture: queue started", zap.Int("workers", workers), zap.Int("buffer", cap(q.tasks)))
}

func (q *Queue) run(ctx context.Context, worker int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("capture: worker panicked",
				zap.Int("worker", worker),
				zap.String("session_id", t.Input.SessionID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	res := q.capturer.Capture(ctx, t.Input)
	if t.Done != nil {
		t.Done(res)
	}
}

// Close stops accepting tasks. Workers finish what is buffered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
}

// Wait blocks until every worker has exited or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrapf(ctx.Err(), "capture: %d tasks left undrained", len(q.tasks))
	}
}
