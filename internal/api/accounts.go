package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/fashion-store/internal/auth"
	"github.com/safar/fashion-store/internal/models"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) startSession(c *gin.Context, status int, customer *models.Customer) {
	pair, err := s.Tokens.Issue(customer.ID, customer.Email)
	if err != nil {
		respondErr(c, err)
		return
	}
	s.Sessions.SetSession(c, pair)
	respondJSON(c, status, gin.H{"success": true, "customer": customer})
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	customer, err := s.Accounts.Register(c.Request.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		respondErr(c, err)
		return
	}
	s.startSession(c, http.StatusCreated, customer)
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	customer, err := s.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondErr(c, err)
		return
	}
	s.startSession(c, http.StatusOK, customer)
}

func (s *Server) logout(c *gin.Context) {
	s.Sessions.ClearSession(c)
	respondJSON(c, http.StatusOK, gin.H{"success": true})
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	session := auth.CurrentSession(c)
	if err := s.Accounts.ChangePassword(c.Request.Context(), session.CustomerID, req.CurrentPassword, req.NewPassword); err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true})
}
