package payment

import (
	"context"
	"errors"
)

var ErrProviderUnavailable = errors.New("payment provider unavailable")

type LineItem struct {
	Name       string
	Image      string
	UnitAmount int64
	Quantity   int64
}

// CouponRequest describes a single-use coupon mirroring a validated discount code.
// Value is a percentage for percentage coupons and minor units for fixed ones.
type CouponRequest struct {
	Code         string
	DiscountType string
	Value        int64
	Currency     string
}

type SessionRequest struct {
	LineItems        []LineItem
	Currency         string
	CustomerEmail    string
	ShippingAmount   int64
	ShippingLabel    string
	CouponID         string
	Metadata         map[string]string
	SuccessURL       string
	CancelURL        string
	AllowedCountries []string
	PaymentMethods   []string
}

type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Provider hosts checkout pages and coupons.
type Provider interface {
	CreateCoupon(ctx context.Context, req CouponRequest) (string, error)
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
}
