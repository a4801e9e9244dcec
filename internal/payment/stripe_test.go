package payment

import (
	"errors"
	"testing"
	"time"

	"github.com/safar/fashion-store/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80"
)

func TestCouponParams(t *testing.T) {
	pct, err := couponParams(CouponRequest{Code: "WELCOME10", DiscountType: models.DiscountPercentage, Value: 10})
	require.NoError(t, err)
	assert.Equal(t, 10.0, *pct.PercentOff)
	assert.Nil(t, pct.AmountOff)
	assert.Equal(t, int64(1), *pct.MaxRedemptions)
	assert.Equal(t, "once", *pct.Duration)

	fixed, err := couponParams(CouponRequest{Code: "ENVIOGRATIS", DiscountType: models.DiscountFixed, Value: 500, Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), *fixed.AmountOff)
	assert.Equal(t, "eur", *fixed.Currency)

	_, err = couponParams(CouponRequest{DiscountType: "bogo"})
	assert.Error(t, err)
}

func TestSessionParams(t *testing.T) {
	params := sessionParams(SessionRequest{
		LineItems: []LineItem{
			{Name: "Camisa", UnitAmount: 5900, Quantity: 2, Image: "a.jpg"},
			{Name: "Chino", UnitAmount: 6900, Quantity: 1},
		},
		Currency:         "eur",
		CustomerEmail:    "ana@example.com",
		ShippingAmount:   499,
		ShippingLabel:    "Standard shipping",
		CouponID:         "co_1",
		Metadata:         map[string]string{"customerName": "Ana"},
		SuccessURL:       "https://shop.test/ok",
		CancelURL:        "https://shop.test/ko",
		AllowedCountries: []string{"ES"},
		PaymentMethods:   []string{"card"},
	})

	require.Len(t, params.LineItems, 2)
	assert.Equal(t, int64(5900), *params.LineItems[0].PriceData.UnitAmount)
	assert.Len(t, params.LineItems[0].PriceData.ProductData.Images, 1)
	assert.Empty(t, params.LineItems[1].PriceData.ProductData.Images)
	assert.Equal(t, int64(499), *params.ShippingOptions[0].ShippingRateData.FixedAmount.Amount)
	assert.Equal(t, "co_1", *params.Discounts[0].Coupon)
	assert.Equal(t, "ana@example.com", *params.CustomerEmail)
	assert.Equal(t, "Ana", params.Metadata["customerName"])
	assert.True(t, *params.PhoneNumberCollection.Enabled)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	cb := newBreaker("test", BreakerSettings{MaxFailures: 2, Timeout: time.Minute})
	boom := errors.New("boom")
	calls := 0
	fail := func() (string, error) {
		calls++
		return "", boom
	}

	_, err := execute(cb, fail)
	assert.ErrorIs(t, err, boom)
	_, err = execute(cb, fail)
	assert.ErrorIs(t, err, boom)

	_, err = execute(cb, fail)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 2, calls)
}

func TestBreakerIgnoresRejectedRequests(t *testing.T) {
	cb := newBreaker("test", BreakerSettings{MaxFailures: 2, Timeout: time.Minute})
	rejected := &stripe.Error{HTTPStatusCode: 400, Type: stripe.ErrorTypeInvalidRequest, Msg: "bad image url"}

	for i := 0; i < 5; i++ {
		_, err := execute(cb, func() (string, error) { return "", rejected })
		assert.ErrorIs(t, err, rejected)
	}

	got, err := execute(cb, func() (string, error) { return "cs_1", nil })
	require.NoError(t, err)
	assert.Equal(t, "cs_1", got)
}

func TestBreakerTripsOnProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"server error", &stripe.Error{HTTPStatusCode: 502, Type: stripe.ErrorTypeAPI}},
		{"rate limited", &stripe.Error{HTTPStatusCode: 429, Type: stripe.ErrorTypeInvalidRequest}},
		{"transport", errors.New("dial tcp: connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := newBreaker("test", BreakerSettings{MaxFailures: 2, Timeout: time.Minute})
			for i := 0; i < 2; i++ {
				_, err := execute(cb, func() (string, error) { return "", tt.err })
				require.Error(t, err)
			}

			_, err := execute(cb, func() (string, error) { return "cs_1", nil })
			assert.ErrorIs(t, err, ErrProviderUnavailable)
		})
	}
}

func TestIsProviderHealthy(t *testing.T) {
	assert.True(t, isProviderHealthy(nil))
	assert.True(t, isProviderHealthy(&stripe.Error{HTTPStatusCode: 402}))
	assert.False(t, isProviderHealthy(&stripe.Error{HTTPStatusCode: 500}))
	assert.False(t, isProviderHealthy(&stripe.Error{HTTPStatusCode: 429}))
	assert.False(t, isProviderHealthy(errors.New("timeout")))
}

func TestBreakerPassesResults(t *testing.T) {
	cb := newBreaker("test", BreakerSettings{})
	got, err := execute(cb, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
