package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/fashion-store/internal/auth"
	"github.com/safar/fashion-store/internal/checkout"
	"github.com/safar/fashion-store/internal/fulfillment"
	"github.com/safar/fashion-store/internal/notify"
	"github.com/safar/fashion-store/internal/payment"
	"github.com/safar/fashion-store/internal/store"
)

const signatureHeader = "Stripe-Signature"

type validateDiscountRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
}

func (s *Server) validateDiscount(c *gin.Context) {
	var req validateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subtotal < 0 {
		respondError(c, http.StatusBadRequest, "subtotal cannot be negative")
		return
	}

	result, err := s.Discounts.Validate(c.Request.Context(), req.Code, req.Subtotal)
	if err != nil {
		log.Printf("api: validate discount %q: %v", req.Code, err)
		respondJSON(c, http.StatusInternalServerError, gin.H{"valid": false, "error": "could not validate code"})
		return
	}
	respondJSON(c, http.StatusOK, result)
}

func (s *Server) createCheckout(c *gin.Context) {
	var req checkout.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.Checkout.CreateSession(c.Request.Context(), req)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, result)
}

// handleWebhook answers 400 for deliveries that will never succeed and 500
// for anything the provider should retry.
func (s *Server) handleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "could not read body")
		return
	}

	outcome, err := s.Fulfillment.HandleWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrMissingSignature), errors.Is(err, payment.ErrInvalidSignature):
			respondError(c, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, fulfillment.ErrBadManifest):
			respondError(c, http.StatusBadRequest, "invalid order manifest")
		default:
			log.Printf("api: webhook: %v", err)
			respondError(c, http.StatusInternalServerError, "webhook processing failed")
		}
		return
	}

	resp := gin.H{
		"received":  true,
		"status":    outcome.Status,
		"duplicate": outcome.Status == fulfillment.OutcomeDuplicate,
	}
	if outcome.Order != nil {
		resp["orderId"] = outcome.Order.ID
		resp["orderNumber"] = outcome.Order.OrderNumber
	}
	respondJSON(c, http.StatusOK, resp)
}

type subscribeRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	Source    string `json:"source"`
}

func (s *Server) subscribeNewsletter(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	email, err := auth.ValidateEmail(req.Email)
	if err != nil {
		respondErr(c, err)
		return
	}

	sub, existing, err := store.Subscribe(c.Request.Context(), s.DB, email, req.FirstName, req.Source, s.WelcomeCode)
	if err != nil {
		respondErr(c, err)
		return
	}

	if !existing {
		task := notify.NewTask(notify.TaskNewsletterWelcome)
		task.Email = sub.Email
		if sub.FirstName != nil {
			task.Name = *sub.FirstName
		}
		task.DiscountCode = s.WelcomeCode
		notify.EnqueueBestEffort(c.Request.Context(), s.Queue, task)
	}

	respondJSON(c, http.StatusOK, gin.H{
		"success":           true,
		"alreadySubscribed": existing,
		"discountCode":      s.WelcomeCode,
	})
}
