package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/safar/fashion-store/internal/metrics"
)

const (
	TaskOrderConfirmation  = "order.confirmation"
	TaskInvoiceGenerate    = "invoice.generate"
	TaskReturnTicket       = "return.ticket"
	TaskRefundConfirmation = "refund.confirmation"
	TaskNewsletterWelcome  = "newsletter.welcome"
)

var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrUnknownTask = errors.New("unknown task type")
	errPanic       = errors.New("task handler panicked")
)

// Task is a best-effort side effect that runs after the primary action has
// committed. Attempt counts from zero.
type Task struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	OrderID      string    `json:"order_id,omitempty"`
	ReturnID     string    `json:"return_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	DiscountCode string    `json:"discount_code,omitempty"`
	RefundNumber string    `json:"refund_number,omitempty"`
	Amount       int64     `json:"amount,omitempty"`
	Attempt      int       `json:"attempt"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewTask(taskType string) Task {
	return Task{ID: uuid.NewString(), Type: taskType, CreatedAt: time.Now()}
}

type Queue interface {
	Enqueue(ctx context.Context, task Task) error
}

type Handler func(ctx context.Context, task Task) error

type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Delay doubles per attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.Backoff * time.Duration(1<<min(attempt, 10))
}

// ShouldRetry reports whether a task that failed on attempt gets another try.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt+1 < p.MaxAttempts
}

// enqueueTimeout bounds how long a caller waits on a full queue or a slow
// broker before the task is dropped.
var enqueueTimeout = 2 * time.Second

// EnqueueBestEffort logs enqueue failures instead of returning them. The wait
// is bounded by enqueueTimeout and survives cancellation of ctx, so work that
// has already committed still gets its follow-up tasks.
func EnqueueBestEffort(ctx context.Context, q Queue, task Task) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := q.Enqueue(ctx, task); err != nil {
		metrics.RecordTask(task.Type, "enqueue_failed")
		log.Printf("notify: enqueue %s for order %s: %v", task.Type, task.OrderID, err)
		return
	}
	metrics.RecordTask(task.Type, "enqueued")
}
