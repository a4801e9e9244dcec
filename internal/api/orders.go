package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/fashion-store/internal/auth"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/store"
)

func (s *Server) listMyOrders(c *gin.Context) {
	cursor := c.Query("cursor")
	if _, err := store.DecodeCursor(cursor); err != nil {
		respondError(c, http.StatusBadRequest, "invalid cursor")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	session := auth.CurrentSession(c)
	page, err := store.ListOrdersByEmail(c.Request.Context(), s.DB, session.Email, cursor, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, page)
}

func (s *Server) getMyOrder(c *gin.Context) {
	order, err := store.GetOrder(c.Request.Context(), s.DB, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}

	session := auth.CurrentSession(c)
	if !strings.EqualFold(order.CustomerEmail, session.Email) {
		respondErr(c, database.ErrNotOrderOwner)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"order": order})
}

type orderRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

func (s *Server) cancelOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "orderId is required")
		return
	}

	session := auth.CurrentSession(c)
	order, err := s.Orders.CancelOrder(c.Request.Context(), session.Email, req.OrderID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "order": order})
}

type returnRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Reason  string `json:"reason"`
}

func (s *Server) requestReturn(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "orderId is required")
		return
	}

	session := auth.CurrentSession(c)
	ret, err := s.Orders.RequestReturn(c.Request.Context(), session.Email, req.OrderID, req.Reason)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, gin.H{
		"success":       true,
		"ticketNumber":  ret.TicketNumber,
		"returnRequest": ret,
	})
}

type refundRequest struct {
	OrderID         string `json:"orderId" binding:"required"`
	ReturnRequestID string `json:"returnRequestId"`
	AdminNotes      string `json:"adminNotes"`
}

func (s *Server) processRefund(c *gin.Context) {
	var req refundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "orderId is required")
		return
	}

	result, err := s.Orders.ProcessRefund(c.Request.Context(), store.RefundRequest{
		OrderID:         req.OrderID,
		ReturnRequestID: req.ReturnRequestID,
		AdminNotes:      req.AdminNotes,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{
		"success":      true,
		"refundNumber": result.RefundNumber,
		"refundAmount": result.RefundAmount,
		"order":        result.Order,
		"creditNote":   result.CreditNote,
	})
}

func (s *Server) listOrders(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.IsOrderStatus(status) {
		respondError(c, http.StatusBadRequest, "unknown order status")
		return
	}
	page, pageSize := pagination(c)

	result, err := store.ListOrders(c.Request.Context(), s.DB, status, page, pageSize)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, result)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "status is required")
		return
	}
	if !models.IsOrderStatus(req.Status) {
		respondError(c, http.StatusBadRequest, "unknown order status")
		return
	}

	order, err := s.Orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "order": order})
}

func (s *Server) listReturns(c *gin.Context) {
	status := c.Query("status")
	switch status {
	case "", models.ReturnStatusPending, models.ReturnStatusApproved,
		models.ReturnStatusRejected, models.ReturnStatusRefunded:
	default:
		respondError(c, http.StatusBadRequest, "unknown return status")
		return
	}
	page, pageSize := pagination(c)

	result, err := store.ListReturnRequests(c.Request.Context(), s.DB, status, page, pageSize)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, result)
}
