package api

import (
	"database/sql"
	"log"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/fashion-store/internal/auth"
	"github.com/safar/fashion-store/internal/cart"
	"github.com/safar/fashion-store/internal/catalog"
	"github.com/safar/fashion-store/internal/checkout"
	"github.com/safar/fashion-store/internal/discount"
	"github.com/safar/fashion-store/internal/fulfillment"
	"github.com/safar/fashion-store/internal/metrics"
	"github.com/safar/fashion-store/internal/notify"
	"github.com/safar/fashion-store/internal/returns"
)

type Deps struct {
	DB          *sql.DB
	Categories  *catalog.CategoryCache
	Search      catalog.ProductSearcher
	Carts       *cart.Service
	Discounts   *discount.Validator
	Checkout    *checkout.Service
	Fulfillment *fulfillment.Service
	Orders      *returns.Service
	Accounts    *auth.Accounts
	Tokens      *auth.TokenManager
	Sessions    *auth.Middleware
	Queue       notify.Queue
	WelcomeCode string
	CartCookie  CookieSettings
	// PagesDir has cuenta/ and admin/ subdirectories of built pages.
	PagesDir string
}

type CookieSettings struct {
	MaxAge int
	Secure bool
}

type Server struct {
	Deps
}

func NewServer(d Deps) *Server {
	return &Server{Deps: d}
}

func (s *Server) Routes(trustedProxies []string) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		log.Printf("api: trusted proxies: %v", err)
	}
	r.Use(gin.Logger(), gin.Recovery(), auth.SecurityHeaders(), metrics.PrometheusMiddleware())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	api.GET("/products", s.listProducts)
	api.GET("/products/search", s.searchProducts)
	api.GET("/categories", s.listCategories)
	api.GET("/settings/flash-offers", s.getFlashOffers)

	api.GET("/cart", s.getCart)
	api.DELETE("/cart", s.clearCart)
	api.POST("/cart/items", s.addCartItem)
	api.PATCH("/cart/items/:id", s.updateCartItem)
	api.DELETE("/cart/items/:id", s.removeCartItem)

	api.POST("/discount/validate", s.validateDiscount)
	api.POST("/checkout", s.createCheckout)
	api.POST("/webhook", s.handleWebhook)
	api.POST("/newsletter/subscribe", s.subscribeNewsletter)

	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)
	api.POST("/auth/logout", s.logout)

	customer := api.Group("", s.Sessions.RequireSession(auth.API))
	customer.POST("/auth/change-password", s.changePassword)
	customer.GET("/account/orders", s.listMyOrders)
	customer.GET("/account/orders/:id", s.getMyOrder)
	customer.POST("/orders/cancel", s.cancelOrder)
	customer.POST("/orders/return-request", s.requestReturn)

	admin := api.Group("", s.Sessions.RequireSession(auth.API), s.Sessions.RequireAdmin(auth.API))
	admin.GET("/discount", s.listDiscounts)
	admin.POST("/discount", s.createDiscount)
	admin.GET("/discount/:id", s.getDiscount)
	admin.PUT("/discount/:id", s.updateDiscount)
	admin.DELETE("/discount/:id", s.deleteDiscount)
	admin.POST("/orders/process-refund", s.processRefund)
	admin.GET("/admin/orders", s.listOrders)
	admin.PUT("/admin/orders/:id/status", s.updateOrderStatus)
	admin.GET("/admin/returns", s.listReturns)
	admin.POST("/categories", s.createCategory)
	admin.DELETE("/categories/:id", s.deleteCategory)
	admin.POST("/settings/flash-offers", s.setFlashOffers)

	if s.PagesDir != "" {
		s.mountPages(r)
	}

	return r
}

// mountPages serves the account and admin pages behind the session cookies.
// Unauthenticated visitors are sent to /login, non-admins to /cuenta.
func (s *Server) mountPages(r *gin.Engine) {
	account := r.Group("/cuenta", s.Sessions.RequireSession(auth.Page))
	account.StaticFS("/", gin.Dir(filepath.Join(s.PagesDir, "cuenta"), false))

	admin := r.Group("/admin", s.Sessions.RequireSession(auth.Page), s.Sessions.RequireAdmin(auth.Page))
	admin.StaticFS("/", gin.Dir(filepath.Join(s.PagesDir, "admin"), false))
}

func (s *Server) health(c *gin.Context) {
	if err := s.DB.PingContext(c.Request.Context()); err != nil {
		respondJSON(c, http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
