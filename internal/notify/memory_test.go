package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, Backoff: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.Delay(0))
	assert.Equal(t, 40*time.Millisecond, p.Delay(2))
	assert.True(t, p.ShouldRetry(0))
	assert.True(t, p.ShouldRetry(1))
	assert.False(t, p.ShouldRetry(2))
}

func TestMemoryQueueRunsTasks(t *testing.T) {
	done := make(chan Task, 1)
	q := NewMemoryQueue(func(_ context.Context, task Task) error {
		done <- task
		return nil
	}, RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}, 8)
	q.Start(1)
	defer q.Close()

	task := NewTask(TaskOrderConfirmation)
	task.OrderID = "o1"
	require.NoError(t, q.Enqueue(context.Background(), task))

	select {
	case got := <-done:
		assert.Equal(t, task.ID, got.ID)
		assert.Equal(t, "o1", got.OrderID)
	case <-time.After(2 * time.Second):
		t.Fatal("task was not processed")
	}
}

func TestMemoryQueueRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	done := make(chan int, 1)
	q := NewMemoryQueue(func(_ context.Context, task Task) error {
		if calls.Add(1) < 3 {
			return errors.New("smtp down")
		}
		done <- task.Attempt
		return nil
	}, RetryPolicy{MaxAttempts: 5, Backoff: time.Millisecond}, 8)
	q.Start(1)
	defer q.Close()

	require.NoError(t, q.Enqueue(context.Background(), NewTask(TaskInvoiceGenerate)))

	select {
	case attempt := <-done:
		assert.Equal(t, 2, attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not succeed after retries")
	}
}

func TestMemoryQueueGivesUp(t *testing.T) {
	var calls atomic.Int32
	q := NewMemoryQueue(func(context.Context, Task) error {
		calls.Add(1)
		return errors.New("permanent")
	}, RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}, 8)
	q.Start(1)

	require.NoError(t, q.Enqueue(context.Background(), NewTask(TaskReturnTicket)))
	time.Sleep(200 * time.Millisecond)
	q.Close()

	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryQueueRecoversPanics(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	q := NewMemoryQueue(func(_ context.Context, task Task) error {
		mu.Lock()
		seen = append(seen, task.Type)
		mu.Unlock()
		if task.Type == TaskInvoiceGenerate {
			panic("boom")
		}
		return nil
	}, RetryPolicy{MaxAttempts: 1}, 8)
	q.Start(1)

	require.NoError(t, q.Enqueue(context.Background(), NewTask(TaskInvoiceGenerate)))
	require.NoError(t, q.Enqueue(context.Background(), NewTask(TaskOrderConfirmation)))
	q.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{TaskInvoiceGenerate, TaskOrderConfirmation}, seen)
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	q := NewMemoryQueue(func(context.Context, Task) error { return nil }, RetryPolicy{MaxAttempts: 1}, 1)
	q.Start(1)
	q.Close()

	assert.ErrorIs(t, q.Enqueue(context.Background(), NewTask(TaskOrderConfirmation)), ErrQueueClosed)
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, Task) error { return errors.New("broker down") }

func TestEnqueueBestEffortSwallowsErrors(t *testing.T) {
	assert.NotPanics(t, func() {
		EnqueueBestEffort(context.Background(), failingQueue{}, NewTask(TaskOrderConfirmation))
	})
}

func TestEnqueueBestEffortDoesNotBlockOnFullQueue(t *testing.T) {
	old := enqueueTimeout
	enqueueTimeout = 50 * time.Millisecond
	defer func() { enqueueTimeout = old }()

	// Not started, so the single buffer slot stays occupied.
	q := NewMemoryQueue(func(context.Context, Task) error { return nil }, RetryPolicy{MaxAttempts: 1}, 1)
	defer q.Close()
	require.NoError(t, q.Enqueue(context.Background(), NewTask(TaskInvoiceGenerate)))

	start := time.Now()
	EnqueueBestEffort(context.Background(), q, NewTask(TaskOrderConfirmation))
	assert.Less(t, time.Since(start), time.Second)
}

func TestEnqueueBestEffortIgnoresCancelledCaller(t *testing.T) {
	q := NewMemoryQueue(func(context.Context, Task) error { return nil }, RetryPolicy{MaxAttempts: 1}, 1)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := NewTask(TaskInvoiceGenerate)
	EnqueueBestEffort(ctx, q, task)

	select {
	case got := <-q.tasks:
		assert.Equal(t, task.ID, got.ID)
	default:
		t.Fatal("task was not enqueued")
	}
}
