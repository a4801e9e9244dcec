package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/money"
)

const (
	ErrMsgCodeRequired = "discount code is required"
	ErrMsgInvalidCode  = "invalid discount code"
	ErrMsgInactive     = "this discount code is no longer active"
	ErrMsgNotStarted   = "this discount code is not active yet"
	ErrMsgExpired      = "this discount code has expired"
	ErrMsgExhausted    = "this discount code has reached its usage limit"
)

// Result is returned for every business-rule outcome; only lookup failures
// surface as errors.
type Result struct {
	Valid          bool    `json:"valid"`
	Error          string  `json:"error,omitempty"`
	Code           string  `json:"code,omitempty"`
	DiscountType   string  `json:"discount_type,omitempty"`
	DiscountValue  int64   `json:"discount_value,omitempty"`
	DiscountAmount int64   `json:"discount_amount"`
	Description    *string `json:"description,omitempty"`
}

func invalid(msg string) Result {
	return Result{Valid: false, Error: msg}
}

// Amount never exceeds subtotal.
func Amount(discountType string, value, subtotal int64) int64 {
	if subtotal <= 0 || value <= 0 {
		return 0
	}

	var amount int64
	switch discountType {
	case models.DiscountPercentage:
		amount = money.PercentOf(subtotal, value)
	case models.DiscountFixed:
		amount = value
	}
	return min(amount, subtotal)
}

// Evaluate applies the business rules of a code against a subtotal at now.
func Evaluate(code *models.DiscountCode, subtotal int64, now time.Time, currency string) Result {
	if code == nil {
		return invalid(ErrMsgInvalidCode)
	}
	if !code.IsActive {
		return invalid(ErrMsgInactive)
	}
	if code.StartsAt != nil && now.Before(*code.StartsAt) {
		return invalid(ErrMsgNotStarted)
	}
	if code.ExpiresAt != nil && now.After(*code.ExpiresAt) {
		return invalid(ErrMsgExpired)
	}
	if code.MaxUses != nil && code.CurrentUses >= *code.MaxUses {
		return invalid(ErrMsgExhausted)
	}
	if subtotal < code.MinPurchase {
		return invalid(fmt.Sprintf("minimum purchase of %s required", money.Format(code.MinPurchase, currency)))
	}

	return Result{
		Valid:          true,
		Code:           code.Code,
		DiscountType:   code.DiscountType,
		DiscountValue:  code.DiscountValue,
		DiscountAmount: Amount(code.DiscountType, code.DiscountValue, subtotal),
		Description:    code.Description,
	}
}

// Lookup finds a code case-insensitively and returns database.ErrDiscountNotFound
// when there is none.
type Lookup func(ctx context.Context, code string) (*models.DiscountCode, error)

type Validator struct {
	lookup   Lookup
	currency string
	now      func() time.Time
}

func NewValidator(lookup Lookup, currency string) *Validator {
	return &Validator{lookup: lookup, currency: currency, now: time.Now}
}

func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

func (v *Validator) Validate(ctx context.Context, code string, subtotal int64) (Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return invalid(ErrMsgCodeRequired), nil
	}

	dc, err := v.lookup(ctx, code)
	if err != nil {
		if errors.Is(err, database.ErrDiscountNotFound) {
			return invalid(ErrMsgInvalidCode), nil
		}
		return Result{}, fmt.Errorf("look up discount code: %w", err)
	}

	return Evaluate(dc, subtotal, v.now(), v.currency), nil
}
