package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/safar/fashion-store/internal/metrics"
)

// MemoryQueue runs tasks on in-process workers. Used when no broker is
// configured; pending tasks are lost on restart.
type MemoryQueue struct {
	tasks   chan Task
	done    chan struct{}
	handler Handler
	policy  RetryPolicy

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewMemoryQueue(handler Handler, policy RetryPolicy, buffer int) *MemoryQueue {
	return &MemoryQueue{
		tasks:   make(chan Task, buffer),
		done:    make(chan struct{}),
		handler: handler,
		policy:  policy,
	}
}

func (q *MemoryQueue) Start(workers int) {
	for i := 0; i < max(workers, 1); i++ {
		q.wg.Add(1)
		go q.work()
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			q.drain()
			return
		case task := <-q.tasks:
			q.run(task)
		}
	}
}

func (q *MemoryQueue) drain() {
	for {
		select {
		case task := <-q.tasks:
			q.run(task)
		default:
			return
		}
	}
}

func (q *MemoryQueue) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := safeHandle(ctx, q.handler, task)
	if err == nil {
		metrics.RecordTask(task.Type, "done")
		return
	}

	if !q.policy.ShouldRetry(task.Attempt) {
		metrics.RecordTask(task.Type, "dead")
		log.Printf("notify: task %s (%s) dropped after %d attempts: %v", task.ID, task.Type, task.Attempt+1, err)
		return
	}

	metrics.RecordTask(task.Type, "retried")
	log.Printf("notify: task %s (%s) attempt %d failed, retrying: %v", task.ID, task.Type, task.Attempt+1, err)

	delay := q.policy.Delay(task.Attempt)
	task.Attempt++
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		select {
		case <-time.After(delay):
			if err := q.Enqueue(context.Background(), task); err != nil {
				log.Printf("notify: requeue task %s: %v", task.ID, err)
			}
		case <-q.done:
		}
	}()
}

// Close runs what is already buffered and stops the workers. Pending retries
// are dropped.
func (q *MemoryQueue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
	q.wg.Wait()
}

func safeHandle(ctx context.Context, h Handler, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notify: recovered from panic in task %s: %v", task.ID, r)
			err = errPanic
		}
	}()
	return h(ctx, task)
}
