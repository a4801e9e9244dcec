package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

var completedPayload = []byte(`{
  "id": "evt_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_test_1",
    "object": "checkout.session",
    "amount_subtotal": 6000,
    "amount_total": 5400,
    "customer_details": {"email": "ana@example.com", "name": "Ana", "phone": "+34600000000",
      "address": {"line1": "Calle Mayor 1", "city": "Madrid", "postal_code": "28013", "country": "ES"}},
    "total_details": {"amount_discount": 600, "amount_shipping": 0, "amount_tax": 0},
    "payment_intent": "pi_1",
    "metadata": {"customerName": "Ana", "items": "[{\"id\":\"p1\",\"quantity\":2}]"}
  }}
}`)

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("")
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestVerifyValidSignature(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	event, err := v.Verify(completedPayload, sign(completedPayload, testSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutSessionCompleted, event.Type)

	s, err := event.CheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", s.ID)
	assert.Equal(t, "pi_1", s.PaymentIntent)
	assert.Equal(t, int64(600), s.TotalDetails.AmountDiscount)
	assert.Equal(t, "Madrid", s.CustomerDetails.Address.City)
	assert.Equal(t, "Ana", s.Metadata["customerName"])
}

func TestVerifyRejects(t *testing.T) {
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		body   []byte
	}{
		{"missing header", "", completedPayload},
		{"wrong secret", sign(completedPayload, "whsec_other", time.Now()), completedPayload},
		{"tampered body", sign(completedPayload, testSecret, time.Now()), append([]byte(" "), completedPayload...)},
		{"too old", sign(completedPayload, testSecret, time.Now().Add(-time.Hour)), completedPayload},
		{"garbage header", "nonsense", completedPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.body, tt.header)
			assert.Error(t, err)
		})
	}
}
