package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/safar/fashion-store/internal/models"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/coupon"
)

type BreakerSettings struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// StripeGateway talks to Stripe through a circuit breaker so a provider outage
// fails checkout fast instead of stacking slow requests.
type StripeGateway struct {
	breaker *gobreaker.CircuitBreaker[any]
}

func NewStripeGateway(secretKey string, bs BreakerSettings) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{breaker: newBreaker("stripe", bs)}
}

func newBreaker(name string, bs BreakerSettings) *gobreaker.CircuitBreaker[any] {
	maxFailures := bs.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    name,
		Timeout: bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: isProviderHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("payment: breaker %s changed from %s to %s", name, from, to)
		},
	})
}

// isProviderHealthy reports whether err leaves the breaker untouched. Stripe
// rejecting a request (4xx other than 429) says nothing about its availability.
func isProviderHealthy(err error) bool {
	if err == nil {
		return true
	}
	var serr *stripe.Error
	if errors.As(err, &serr) {
		return serr.HTTPStatusCode < 500 && serr.HTTPStatusCode != 429 && serr.HTTPStatusCode != 0
	}
	return false
}

func execute[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	var zero T
	v, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return zero, err
	}
	return v.(T), nil
}

func couponParams(req CouponRequest) (*stripe.CouponParams, error) {
	params := &stripe.CouponParams{
		Duration:       stripe.String(string(stripe.CouponDurationOnce)),
		MaxRedemptions: stripe.Int64(1),
		Name:           stripe.String(req.Code),
	}

	switch req.DiscountType {
	case models.DiscountPercentage:
		params.PercentOff = stripe.Float64(float64(req.Value))
	case models.DiscountFixed:
		params.AmountOff = stripe.Int64(req.Value)
		params.Currency = stripe.String(strings.ToLower(req.Currency))
	default:
		return nil, fmt.Errorf("unsupported discount type %q", req.DiscountType)
	}
	return params, nil
}

func (g *StripeGateway) CreateCoupon(ctx context.Context, req CouponRequest) (string, error) {
	params, err := couponParams(req)
	if err != nil {
		return "", err
	}
	params.Context = ctx

	c, err := execute(g.breaker, func() (*stripe.Coupon, error) {
		return coupon.New(params)
	})
	if err != nil {
		return "", fmt.Errorf("create coupon: %w", err)
	}
	return c.ID, nil
}

func sessionParams(req SessionRequest) *stripe.CheckoutSessionParams {
	currency := stripe.String(strings.ToLower(req.Currency))

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		li := &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   currency,
				UnitAmount: stripe.Int64(item.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
			Quantity: stripe.Int64(item.Quantity),
		}
		if item.Image != "" {
			li.PriceData.ProductData.Images = []*string{stripe.String(item.Image)}
		}
		lineItems = append(lineItems, li)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          lineItems,
		PaymentMethodTypes: stripe.StringSlice(req.PaymentMethods),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.AllowedCountries),
		},
		ShippingOptions: []*stripe.CheckoutSessionShippingOptionParams{{
			ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
				Type:        stripe.String("fixed_amount"),
				DisplayName: stripe.String(req.ShippingLabel),
				FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
					Amount:   stripe.Int64(req.ShippingAmount),
					Currency: currency,
				},
			},
		}},
		PhoneNumberCollection: &stripe.CheckoutSessionPhoneNumberCollectionParams{
			Enabled: stripe.Bool(true),
		},
	}

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if req.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(req.CouponID)}}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	return params
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := sessionParams(req)
	params.Context = ctx

	s, err := execute(g.breaker, func() (*stripe.CheckoutSession, error) {
		return session.New(params)
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}
