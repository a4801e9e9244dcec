package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "59.00 EUR", Format(5900, "eur"))
	assert.Equal(t, "4.99 EUR", Format(499, "eur"))
	assert.Equal(t, "-12.34 EUR", Format(-1234, "EUR"))
}

func TestPercentOf(t *testing.T) {
	assert.Equal(t, int64(600), PercentOf(6000, 10))
	assert.Equal(t, int64(199), PercentOf(999, 20), "floors 199.8")
	assert.Equal(t, int64(0), PercentOf(4, 10))
	assert.Equal(t, int64(6000), PercentOf(6000, 100))
}

func TestDecimalRoundTrip(t *testing.T) {
	assert.Equal(t, int64(1999), FromDecimal(decimal.RequireFromString("19.99")))
	assert.True(t, ToDecimal(1999).Equal(decimal.RequireFromString("19.99")))
}
