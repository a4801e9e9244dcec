package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case codeUniqueViolation, codeForeignKeyViolation, "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsUniqueViolation reports a 23505 error, optionally limited to one constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation
}

var (
	ErrCustomerNotFound  = errors.New("customer not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrProductNotFound   = errors.New("product not found")
	ErrCategoryNotFound  = errors.New("category not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotOrderOwner     = errors.New("order belongs to another customer")
	ErrNotCancellable    = errors.New("order can no longer be cancelled")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateCheckout = errors.New("checkout session already processed")
	ErrDiscountNotFound  = errors.New("discount code not found")
	ErrDuplicateCode     = errors.New("discount code already exists")
	ErrDiscountExhausted = errors.New("discount code usage limit reached")
	ErrReturnNotFound    = errors.New("return request not found")
	ErrReturnExists      = errors.New("return request already exists for order")
	ErrNotReturnable     = errors.New("only delivered orders can be returned")
	ErrReturnClosed      = errors.New("return request is already closed")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrAlreadyRefunded   = errors.New("order already refunded")
	ErrSettingNotFound   = errors.New("setting not found")
	ErrLockTimeout       = errors.New("lock timeout")
)
