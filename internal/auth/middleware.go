package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	sessionKey = "session"
)

type Session struct {
	CustomerID string
	Email      string
}

// Mode picks how a rejected request is answered.
type Mode int

const (
	// API requests get a JSON 401/403.
	API Mode = iota
	// Page requests are redirected.
	Page
)

type Middleware struct {
	tokens  *TokenManager
	isAdmin func(email string) bool
	secure  bool
	maxAge  time.Duration
}

func NewMiddleware(tokens *TokenManager, isAdmin func(email string) bool, secureCookies bool) *Middleware {
	return &Middleware{tokens: tokens, isAdmin: isAdmin, secure: secureCookies, maxAge: tokens.refreshTTL}
}

func (m *Middleware) setCookie(c *gin.Context, name, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m *Middleware) SetSession(c *gin.Context, pair TokenPair) {
	age := int(m.maxAge.Seconds())
	m.setCookie(c, AccessCookie, pair.Access, age)
	m.setCookie(c, RefreshCookie, pair.Refresh, age)
}

func (m *Middleware) ClearSession(c *gin.Context) {
	m.setCookie(c, AccessCookie, "", -1)
	m.setCookie(c, RefreshCookie, "", -1)
}

// resolve reads the session cookies, refreshing both tokens when the access
// token is no longer valid.
func (m *Middleware) resolve(c *gin.Context) (*Session, bool) {
	access, _ := c.Cookie(AccessCookie)
	refresh, _ := c.Cookie(RefreshCookie)
	if access == "" || refresh == "" {
		return nil, false
	}

	if claims, err := m.tokens.ParseAccess(access); err == nil {
		return &Session{CustomerID: claims.CustomerID, Email: claims.Email}, true
	}

	claims, err := m.tokens.ParseRefresh(refresh)
	if err != nil {
		m.ClearSession(c)
		return nil, false
	}

	pair, err := m.tokens.Issue(claims.CustomerID, claims.Email)
	if err != nil {
		m.ClearSession(c)
		return nil, false
	}
	m.SetSession(c, pair)

	return &Session{CustomerID: claims.CustomerID, Email: claims.Email}, true
}

func (m *Middleware) RequireSession(mode Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := m.resolve(c)
		if !ok {
			if mode == Page {
				c.Redirect(http.StatusSeeOther, "/login?redirect="+url.QueryEscape(c.Request.URL.Path))
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// RequireAdmin must run after RequireSession.
func (m *Middleware) RequireAdmin(mode Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := CurrentSession(c)
		if session == nil || !m.isAdmin(session.Email) {
			if mode == Page {
				c.Redirect(http.StatusSeeOther, "/cuenta")
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "admin access required"})
			return
		}
		c.Next()
	}
}

func CurrentSession(c *gin.Context) *Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	s, _ := v.(*Session)
	return s
}

var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self' https://js.stripe.com",
	"style-src 'self' 'unsafe-inline'",
	"img-src 'self' data: https:",
	"connect-src 'self' https://api.stripe.com",
	"frame-src https://js.stripe.com https://hooks.stripe.com",
	"object-src 'none'",
	"base-uri 'self'",
	"form-action 'self'",
	"frame-ancestors 'self'",
}, "; ")

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Content-Security-Policy", contentSecurityPolicy)
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "SAMEORIGIN")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=(self)")
		c.Next()
	}
}
