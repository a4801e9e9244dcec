package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/fashion-store/internal/auth"
	"github.com/safar/fashion-store/internal/cart"
	"github.com/safar/fashion-store/internal/checkout"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/fulfillment"
	"github.com/safar/fashion-store/internal/payment"
)

func respondJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}

// respondErr maps err to a status. Internal errors are logged and hidden.
func respondErr(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("api: %s %s: %v", c.Request.Method, c.FullPath(), err)
		if status == http.StatusServiceUnavailable {
			respondError(c, status, "service temporarily unavailable")
			return
		}
		respondError(c, status, "internal server error")
		return
	}
	respondError(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrCategoryNotFound),
		errors.Is(err, database.ErrDiscountNotFound),
		errors.Is(err, database.ErrReturnNotFound),
		errors.Is(err, database.ErrCustomerNotFound),
		errors.Is(err, database.ErrSettingNotFound),
		errors.Is(err, cart.ErrItemNotFound):
		return http.StatusNotFound

	case errors.Is(err, database.ErrNotOrderOwner):
		return http.StatusForbidden

	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, database.ErrDuplicateCode),
		errors.Is(err, database.ErrEmailTaken),
		errors.Is(err, database.ErrLockTimeout):
		return http.StatusConflict

	case errors.Is(err, database.ErrReturnExists),
		errors.Is(err, database.ErrNotReturnable),
		errors.Is(err, database.ErrNotCancellable),
		errors.Is(err, database.ErrInvalidTransition),
		errors.Is(err, database.ErrReturnClosed),
		errors.Is(err, database.ErrAlreadyRefunded),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidItem),
		errors.Is(err, checkout.ErrProductUnavailable),
		errors.Is(err, checkout.ErrInsufficientStock),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrExceedsStock),
		errors.Is(err, cart.ErrMissingProduct),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrWrongPassword),
		errors.Is(err, fulfillment.ErrBadManifest),
		errors.Is(err, payment.ErrInvalidSignature),
		errors.Is(err, payment.ErrMissingSignature):
		return http.StatusBadRequest

	case errors.Is(err, payment.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
