package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const cartCookie = "cart_id"

// cartID returns the visitor's cart id, issuing a new cookie when absent.
func (s *Server) cartID(c *gin.Context) string {
	if id, err := c.Cookie(cartCookie); err == nil {
		if _, perr := uuid.Parse(id); perr == nil {
			return id
		}
	}

	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cartCookie, id, s.CartCookie.MaxAge, "/", "", s.CartCookie.Secure, true)
	return id
}

func (s *Server) getCart(c *gin.Context) {
	cart, err := s.Carts.Load(c.Request.Context(), s.cartID(c))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"cart": cart, "count": cart.Count(), "subtotal": cart.Subtotal()})
}

type addCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

func (s *Server) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "productId is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := s.Carts.AddItem(c.Request.Context(), s.cartID(c), req.ProductID, req.Quantity, req.Size, req.Color)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"cart": cart, "count": cart.Count(), "subtotal": cart.Subtotal()})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func (s *Server) updateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	cart, err := s.Carts.UpdateItem(c.Request.Context(), s.cartID(c), c.Param("id"), req.Quantity)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"cart": cart, "count": cart.Count(), "subtotal": cart.Subtotal()})
}

func (s *Server) removeCartItem(c *gin.Context) {
	cart, err := s.Carts.RemoveItem(c.Request.Context(), s.cartID(c), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"cart": cart, "count": cart.Count(), "subtotal": cart.Subtotal()})
}

func (s *Server) clearCart(c *gin.Context) {
	if err := s.Carts.Clear(c.Request.Context(), s.cartID(c)); err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true})
}
