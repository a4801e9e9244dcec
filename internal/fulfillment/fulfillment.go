package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/safar/fashion-store/internal/checkout"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/metrics"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/notify"
	"github.com/safar/fashion-store/internal/payment"
	"github.com/safar/fashion-store/internal/store"
)

var ErrBadManifest = errors.New("invalid item manifest")

const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
)

type Outcome struct {
	Status string        `json:"status"`
	Order  *models.Order `json:"order,omitempty"`
}

type EventVerifier interface {
	Verify(payload []byte, signature string) (*payment.Event, error)
}

type OrderCreator func(ctx context.Context, req store.CheckoutOrder) (*models.Order, error)

type OrderFinder func(ctx context.Context, sessionID string) (*models.Order, error)

type Service struct {
	verifier  EventVerifier
	create    OrderCreator
	bySession OrderFinder
	queue     notify.Queue
}

func NewService(verifier EventVerifier, create OrderCreator, bySession OrderFinder, queue notify.Queue) *Service {
	return &Service{verifier: verifier, create: create, bySession: bySession, queue: queue}
}

// HandleWebhook verifies and applies one provider delivery. Signature failures
// wrap payment.ErrInvalidSignature or payment.ErrMissingSignature; a manifest
// that cannot be parsed wraps ErrBadManifest. Any other error means the order
// was not recorded and the provider should retry.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Outcome, error) {
	event, err := s.verifier.Verify(payload, signature)
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "rejected")
		return nil, err
	}

	if event.Type != payment.EventCheckoutSessionCompleted {
		metrics.RecordWebhookEvent(event.Type, OutcomeIgnored)
		return &Outcome{Status: OutcomeIgnored}, nil
	}

	session, err := event.CheckoutSession()
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "rejected")
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}

	outcome, err := s.fulfil(ctx, session)
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "failed")
		return nil, err
	}
	metrics.RecordWebhookEvent(event.Type, outcome.Status)
	return outcome, nil
}

func (s *Service) fulfil(ctx context.Context, session *payment.CheckoutSession) (*Outcome, error) {
	raw, ok := session.Metadata[checkout.MetaItems]
	if !ok || raw == "" {
		log.Printf("fulfillment: session %s has no item manifest, ignoring", session.ID)
		return &Outcome{Status: OutcomeIgnored}, nil
	}

	items, err := checkout.DecodeManifest(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrBadManifest)
	}

	req := OrderFromSession(session)
	for _, item := range items {
		req.Items = append(req.Items, store.CheckoutOrderItem{
			ProductID: item.ID,
			Quantity:  item.Quantity,
			Size:      item.Size,
			Color:     item.Color,
		})
	}

	order, err := s.create(ctx, req)
	if errors.Is(err, database.ErrDuplicateCheckout) {
		metrics.RecordOrderOperation("create", true)
		existing, ferr := s.bySession(ctx, session.ID)
		if ferr != nil {
			log.Printf("fulfillment: duplicate session %s but order lookup failed: %v", session.ID, ferr)
		}
		return &Outcome{Status: OutcomeDuplicate, Order: existing}, nil
	}
	if err != nil {
		metrics.RecordOrderOperation("create", false)
		return nil, fmt.Errorf("record order for session %s: %w", session.ID, err)
	}
	metrics.RecordOrderOperation("create", true)

	invoice := notify.NewTask(notify.TaskInvoiceGenerate)
	invoice.OrderID = order.ID
	notify.EnqueueBestEffort(ctx, s.queue, invoice)

	confirmation := notify.NewTask(notify.TaskOrderConfirmation)
	confirmation.OrderID = order.ID
	confirmation.Email = order.CustomerEmail
	notify.EnqueueBestEffort(ctx, s.queue, confirmation)

	log.Printf("fulfillment: order %s recorded for session %s", order.OrderNumber, session.ID)
	return &Outcome{Status: OutcomeProcessed, Order: order}, nil
}

// OrderFromSession maps the provider session onto an order request without items.
func OrderFromSession(session *payment.CheckoutSession) store.CheckoutOrder {
	req := store.CheckoutOrder{
		SessionID:       session.ID,
		CustomerEmail:   session.CustomerEmail,
		CustomerName:    session.Metadata[checkout.MetaCustomerName],
		DiscountCode:    session.Metadata[checkout.MetaDiscountCode],
		Total:           session.AmountTotal,
		PaymentIntentID: session.PaymentIntent,
	}

	var addr *payment.Address
	if d := session.CustomerDetails; d != nil {
		if d.Email != "" {
			req.CustomerEmail = d.Email
		}
		if req.CustomerName == "" {
			req.CustomerName = d.Name
		}
		req.CustomerPhone = d.Phone
		addr = d.Address
	}
	if sd := session.ShippingDetails; sd != nil {
		if sd.Address != nil {
			addr = sd.Address
		}
		if req.CustomerName == "" {
			req.CustomerName = sd.Name
		}
	}
	if req.CustomerName == "" {
		req.CustomerName = "Customer"
	}

	if addr != nil {
		req.ShippingAddress = models.Address{
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		}
	}

	if td := session.TotalDetails; td != nil {
		req.ShippingCost = td.AmountShipping
		req.Tax = td.AmountTax
		req.DiscountAmount = td.AmountDiscount
	}

	return req
}
