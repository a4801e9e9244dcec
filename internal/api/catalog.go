package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/fashion-store/internal/catalog"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/store"
)

const flashOffersKey = "show_flash_offers"

func (s *Server) listProducts(c *gin.Context) {
	page, pageSize := pagination(c)
	filter := store.ProductFilter{
		CategoryID: c.Query("category"),
		FlashOnly:  c.Query("flash") == "1" || c.Query("flash") == "true",
	}

	result, err := store.ListProducts(c.Request.Context(), s.DB, filter, page, pageSize)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, result)
}

func (s *Server) searchProducts(c *gin.Context) {
	results, err := catalog.Search(c.Request.Context(), s.Search, c.Query("q"))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"products": results})
}

func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.Categories.Get(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"categories": categories})
}

type createCategoryRequest struct {
	Name     string  `json:"name" binding:"required"`
	Slug     string  `json:"slug" binding:"required"`
	ParentID *string `json:"parent_id"`
}

func (s *Server) createCategory(c *gin.Context) {
	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "name and slug are required")
		return
	}

	category, err := store.CreateCategory(c.Request.Context(), s.DB,
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Slug), req.ParentID)
	if err != nil {
		respondErr(c, err)
		return
	}
	s.Categories.Invalidate()

	respondJSON(c, http.StatusCreated, gin.H{"success": true, "category": category})
}

func (s *Server) deleteCategory(c *gin.Context) {
	if err := store.DeleteCategory(c.Request.Context(), s.DB, c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	s.Categories.Invalidate()

	respondJSON(c, http.StatusOK, gin.H{"success": true})
}

func (s *Server) getFlashOffers(c *gin.Context) {
	setting, err := store.GetSetting(c.Request.Context(), s.DB, flashOffersKey)
	if errors.Is(err, database.ErrSettingNotFound) {
		respondJSON(c, http.StatusOK, gin.H{"enabled": false})
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	var enabled bool
	if err := json.Unmarshal(setting.Value, &enabled); err != nil {
		enabled = false
	}
	respondJSON(c, http.StatusOK, gin.H{"enabled": enabled})
}

type flashOffersRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) setFlashOffers(c *gin.Context) {
	var req flashOffersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "enabled is required")
		return
	}

	value, _ := json.Marshal(*req.Enabled)
	if err := store.PutSetting(c.Request.Context(), s.DB, flashOffersKey, value); err != nil {
		respondErr(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"success": true, "enabled": *req.Enabled})
}
