package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/fashion-store/internal/store"
)

func (s *Server) listDiscounts(c *gin.Context) {
	codes, err := store.ListDiscountCodes(c.Request.Context(), s.DB)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"discounts": codes})
}

func (s *Server) getDiscount(c *gin.Context) {
	code, err := store.GetDiscountCode(c.Request.Context(), s.DB, c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"discount": code})
}

func bindDiscount(c *gin.Context) (store.DiscountInput, bool) {
	var in store.DiscountInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return in, false
	}
	if err := in.Validate(); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}

func (s *Server) createDiscount(c *gin.Context) {
	in, ok := bindDiscount(c)
	if !ok {
		return
	}

	code, err := store.CreateDiscountCode(c.Request.Context(), s.DB, in)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, gin.H{"success": true, "discount": code})
}

func (s *Server) updateDiscount(c *gin.Context) {
	in, ok := bindDiscount(c)
	if !ok {
		return
	}

	code, err := store.UpdateDiscountCode(c.Request.Context(), s.DB, c.Param("id"), in)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "discount": code})
}

func (s *Server) deleteDiscount(c *gin.Context) {
	if err := store.DeleteDiscountCode(c.Request.Context(), s.DB, c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true})
}
