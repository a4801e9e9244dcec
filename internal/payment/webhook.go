package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v80/webhook"
)

const EventCheckoutSessionCompleted = "checkout.session.completed"

var (
	ErrMissingSecret    = errors.New("webhook secret is not configured")
	ErrMissingSignature = errors.New("missing stripe-signature header")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type CustomerDetails struct {
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Phone   string   `json:"phone"`
	Address *Address `json:"address"`
}

type ShippingDetails struct {
	Name    string   `json:"name"`
	Address *Address `json:"address"`
}

type TotalDetails struct {
	AmountDiscount int64 `json:"amount_discount"`
	AmountShipping int64 `json:"amount_shipping"`
	AmountTax      int64 `json:"amount_tax"`
}

// CheckoutSession holds the fields of a completed hosted checkout that order
// creation needs.
type CheckoutSession struct {
	ID              string            `json:"id"`
	AmountSubtotal  int64             `json:"amount_subtotal"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *CustomerDetails  `json:"customer_details"`
	ShippingDetails *ShippingDetails  `json:"shipping_details"`
	TotalDetails    *TotalDetails     `json:"total_details"`
	PaymentIntent   string            `json:"payment_intent"`
	PaymentStatus   string            `json:"payment_status"`
	Metadata        map[string]string `json:"metadata"`
}

type Event struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

// CheckoutSession decodes the event object. It is only meaningful for
// checkout.session.* events.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var s CheckoutSession
	if err := json.Unmarshal(e.Raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &s, nil
}

type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: secret, tolerance: webhook.DefaultTolerance}, nil
}

// Verify checks the signature header and returns the decoded event. There is
// no unverified path.
func (v *Verifier) Verify(payload []byte, signature string) (*Event, error) {
	if signature == "" {
		return nil, ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	e := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil {
		e.Raw = event.Data.Raw
	}
	return e, nil
}
