package returns

import (
	"context"
	"database/sql"
	"strings"

	"github.com/safar/fashion-store/internal/metrics"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/notify"
	"github.com/safar/fashion-store/internal/store"
)

// Service runs the customer and admin order workflows after checkout:
// cancellation, return requests, refunds and status changes.
type Service struct {
	db    *sql.DB
	queue notify.Queue
}

func NewService(db *sql.DB, queue notify.Queue) *Service {
	return &Service{db: db, queue: queue}
}

// RequestReturn opens a return ticket. The ticket email is best-effort.
func (s *Service) RequestReturn(ctx context.Context, customerEmail, orderID, reason string) (*models.ReturnRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = store.DefaultReturnReason
	}

	rr, err := store.CreateReturnRequest(ctx, s.db, orderID, customerEmail, reason)
	metrics.RecordOrderOperation("return_request", err == nil)
	if err != nil {
		return nil, err
	}

	task := notify.NewTask(notify.TaskReturnTicket)
	task.OrderID = rr.OrderID
	task.ReturnID = rr.ID
	task.Email = customerEmail
	notify.EnqueueBestEffort(ctx, s.queue, task)

	return rr, nil
}

func (s *Service) ProcessRefund(ctx context.Context, req store.RefundRequest) (*store.RefundResult, error) {
	result, err := store.ProcessRefund(ctx, s.db, req)
	metrics.RecordOrderOperation("refund", err == nil)
	if err != nil {
		return nil, err
	}

	task := notify.NewTask(notify.TaskRefundConfirmation)
	task.OrderID = result.Order.ID
	task.Email = result.Order.CustomerEmail
	task.RefundNumber = result.RefundNumber
	task.Amount = result.RefundAmount
	if result.ReturnRequest != nil {
		task.ReturnID = result.ReturnRequest.ID
	}
	notify.EnqueueBestEffort(ctx, s.queue, task)

	return result, nil
}

func (s *Service) CancelOrder(ctx context.Context, customerEmail, orderID string) (*models.Order, error) {
	order, err := store.CancelOrder(ctx, s.db, orderID, customerEmail)
	metrics.RecordOrderOperation("cancel", err == nil)
	return order, err
}

func (s *Service) UpdateStatus(ctx context.Context, orderID, status string) (*models.Order, error) {
	order, err := store.UpdateOrderStatus(ctx, s.db, orderID, status)
	metrics.RecordOrderOperation("update_status", err == nil)
	return order, err
}
