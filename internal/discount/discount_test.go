package discount

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seeded = map[string]models.DiscountCode{
	"WELCOME10":   {Code: "WELCOME10", DiscountType: models.DiscountPercentage, DiscountValue: 10, MinPurchase: 2000, IsActive: true},
	"FASHION20":   {Code: "FASHION20", DiscountType: models.DiscountPercentage, DiscountValue: 20, MinPurchase: 5000, IsActive: true},
	"ENVIOGRATIS": {Code: "ENVIOGRATIS", DiscountType: models.DiscountFixed, DiscountValue: 500, MinPurchase: 3000, IsActive: true},
}

func lookupSeeded(_ context.Context, code string) (*models.DiscountCode, error) {
	dc, ok := seeded[strings.ToUpper(code)]
	if !ok {
		return nil, database.ErrDiscountNotFound
	}
	return &dc, nil
}

func TestValidateScenarios(t *testing.T) {
	v := NewValidator(lookupSeeded, "eur")
	ctx := context.Background()

	res, err := v.Validate(ctx, "welcome10", 6000)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(600), res.DiscountAmount)
	assert.Equal(t, "WELCOME10", res.Code)

	res, err = v.Validate(ctx, "FASHION20", 1000)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "minimum purchase")

	res, err = v.Validate(ctx, "NOPE", 1000)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, ErrMsgInvalidCode, res.Error)

	res, err = v.Validate(ctx, "  ", 1000)
	require.NoError(t, err)
	assert.Equal(t, ErrMsgCodeRequired, res.Error)
}

func TestValidateLookupFailure(t *testing.T) {
	v := NewValidator(func(context.Context, string) (*models.DiscountCode, error) {
		return nil, errors.New("connection refused")
	}, "eur")

	_, err := v.Validate(context.Background(), "WELCOME10", 6000)
	assert.Error(t, err)
}

func TestEvaluateRules(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)
	three := 3

	base := models.DiscountCode{Code: "X", DiscountType: models.DiscountPercentage, DiscountValue: 10, MinPurchase: 1000, IsActive: true}
	with := func(f func(*models.DiscountCode)) *models.DiscountCode {
		dc := base
		f(&dc)
		return &dc
	}

	tests := []struct {
		name  string
		code  *models.DiscountCode
		total int64
		valid bool
	}{
		{"accepted", &base, 1000, true},
		{"nil code", nil, 1000, false},
		{"inactive", with(func(d *models.DiscountCode) { d.IsActive = false }), 5000, false},
		{"not started", with(func(d *models.DiscountCode) { d.StartsAt = &future }), 5000, false},
		{"expired", with(func(d *models.DiscountCode) { d.ExpiresAt = &past }), 5000, false},
		{"inside window", with(func(d *models.DiscountCode) { d.StartsAt, d.ExpiresAt = &past, &future }), 5000, true},
		{"uses exhausted", with(func(d *models.DiscountCode) { d.MaxUses, d.CurrentUses = &three, 3 }), 5000, false},
		{"uses left", with(func(d *models.DiscountCode) { d.MaxUses, d.CurrentUses = &three, 2 }), 5000, true},
		{"below minimum", &base, 999, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Evaluate(tt.code, tt.total, now, "eur")
			assert.Equal(t, tt.valid, res.Valid, res.Error)
			if !tt.valid {
				assert.NotEmpty(t, res.Error)
			}
		})
	}
}

func TestAmount(t *testing.T) {
	assert.Equal(t, int64(600), Amount(models.DiscountPercentage, 10, 6000))
	assert.Equal(t, int64(199), Amount(models.DiscountPercentage, 20, 999), "floored")
	assert.Equal(t, int64(500), Amount(models.DiscountFixed, 500, 3000))
	assert.Equal(t, int64(300), Amount(models.DiscountFixed, 500, 300), "capped at subtotal")
	assert.Equal(t, int64(0), Amount(models.DiscountFixed, 500, 0))

	for subtotal := int64(0); subtotal < 3000; subtotal += 137 {
		for _, value := range []int64{1, 15, 50, 100} {
			assert.LessOrEqual(t, Amount(models.DiscountPercentage, value, subtotal), subtotal)
		}
		assert.LessOrEqual(t, Amount(models.DiscountFixed, 2500, subtotal), subtotal)
	}
}
