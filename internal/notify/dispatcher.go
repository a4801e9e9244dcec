package notify

import (
	"context"
	"fmt"

	"github.com/safar/fashion-store/internal/models"
)

type Mailer interface {
	SendOrderConfirmation(order *models.Order) error
	SendReturnTicket(order *models.Order, ret *models.ReturnRequest) error
	SendRefundConfirmation(order *models.Order, refundNumber string, amount int64) error
	SendNewsletterWelcome(email, firstName, code string) error
}

type Deps struct {
	LoadOrder    func(ctx context.Context, id string) (*models.Order, error)
	LoadReturn   func(ctx context.Context, id string) (*models.ReturnRequest, error)
	IssueInvoice func(ctx context.Context, orderID string) (*models.Invoice, error)
	Mailer       Mailer
}

// Dispatcher routes tasks to their handlers by type.
type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher(d Deps) *Dispatcher {
	disp := &Dispatcher{handlers: map[string]Handler{}}

	disp.Register(TaskInvoiceGenerate, func(ctx context.Context, t Task) error {
		_, err := d.IssueInvoice(ctx, t.OrderID)
		return err
	})

	disp.Register(TaskOrderConfirmation, func(ctx context.Context, t Task) error {
		order, err := d.LoadOrder(ctx, t.OrderID)
		if err != nil {
			return err
		}
		return d.Mailer.SendOrderConfirmation(order)
	})

	disp.Register(TaskReturnTicket, func(ctx context.Context, t Task) error {
		order, err := d.LoadOrder(ctx, t.OrderID)
		if err != nil {
			return err
		}
		ret, err := d.LoadReturn(ctx, t.ReturnID)
		if err != nil {
			return err
		}
		return d.Mailer.SendReturnTicket(order, ret)
	})

	disp.Register(TaskRefundConfirmation, func(ctx context.Context, t Task) error {
		order, err := d.LoadOrder(ctx, t.OrderID)
		if err != nil {
			return err
		}
		return d.Mailer.SendRefundConfirmation(order, t.RefundNumber, t.Amount)
	})

	disp.Register(TaskNewsletterWelcome, func(_ context.Context, t Task) error {
		return d.Mailer.SendNewsletterWelcome(t.Email, t.Name, t.DiscountCode)
	})

	return disp
}

func (d *Dispatcher) Register(taskType string, h Handler) {
	d.handlers[taskType] = h
}

func (d *Dispatcher) Handle(ctx context.Context, task Task) error {
	h, ok := d.handlers[task.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, task.Type)
	}
	return h(ctx, task)
}
