package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/safar/fashion-store/internal/auth"
	"github.com/safar/fashion-store/internal/cart"
	"github.com/safar/fashion-store/internal/catalog"
	"github.com/safar/fashion-store/internal/checkout"
	"github.com/safar/fashion-store/internal/database"
	"github.com/safar/fashion-store/internal/discount"
	"github.com/safar/fashion-store/internal/fulfillment"
	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/notify"
	"github.com/safar/fashion-store/internal/payment"
	"github.com/safar/fashion-store/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const webhookSecret = "whsec_test"

type stubProvider struct{}

func (stubProvider) CreateCoupon(context.Context, payment.CouponRequest) (string, error) {
	return "co_1", nil
}

func (stubProvider) CreateCheckoutSession(context.Context, payment.SessionRequest) (*payment.Session, error) {
	return &payment.Session{ID: "cs_1", URL: "https://checkout.test/cs_1"}, nil
}

type nopQueue struct{ tasks []notify.Task }

func (q *nopQueue) Enqueue(_ context.Context, task notify.Task) error {
	q.tasks = append(q.tasks, task)
	return nil
}

type testEnv struct {
	router        *gin.Engine
	tokens        *auth.TokenManager
	categoryLoads int
	orderCreates  int
}

var catalogProducts = map[string]models.Product{
	"p1": {ID: "p1", Name: "Linen shirt", Price: 3000, Stock: 10, IsActive: true, Images: []string{"shirt.jpg"}},
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	lookup := func(_ context.Context, id string) (cart.ProductRef, error) {
		p, ok := catalogProducts[id]
		if !ok {
			return cart.ProductRef{}, database.ErrProductNotFound
		}
		return cart.ProductRef{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock, Image: p.FirstImage()}, nil
	}

	codes := map[string]models.DiscountCode{
		"WELCOME10": {Code: "WELCOME10", DiscountType: models.DiscountPercentage, DiscountValue: 10, IsActive: true},
	}
	validator := discount.NewValidator(func(_ context.Context, code string) (*models.DiscountCode, error) {
		dc, ok := codes[store.NormalizeCode(code)]
		if !ok {
			return nil, database.ErrDiscountNotFound
		}
		return &dc, nil
	}, "EUR")

	products := func(_ context.Context, ids []string) (map[string]models.Product, error) {
		out := map[string]models.Product{}
		for _, id := range ids {
			if p, ok := catalogProducts[id]; ok {
				out[id] = p
			}
		}
		return out, nil
	}
	checkoutSvc := checkout.NewService(products, validator, func(context.Context, string) error { return nil },
		stubProvider{}, checkout.Options{SiteURL: "https://shop.test", Currency: "EUR", FreeShippingThreshold: 5000, ShippingFee: 495})

	verifier, err := payment.NewVerifier(webhookSecret)
	require.NoError(t, err)
	queue := &nopQueue{}
	fulfil := fulfillment.NewService(verifier,
		func(context.Context, store.CheckoutOrder) (*models.Order, error) {
			env.orderCreates++
			return &models.Order{ID: "o1"}, nil
		},
		func(context.Context, string) (*models.Order, error) { return nil, database.ErrOrderNotFound },
		queue)

	env.tokens = auth.NewTokenManager("jwt-secret", time.Hour, 24*time.Hour)
	sessions := auth.NewMiddleware(env.tokens, func(email string) bool { return email == "admin@example.com" }, false)

	categories := catalog.NewCategoryCache(func(context.Context) ([]models.Category, error) {
		env.categoryLoads++
		return []models.Category{{ID: "c1", Name: "Dresses", Slug: "dresses"}}, nil
	}, time.Minute)

	pages := t.TempDir()
	for _, dir := range []string{"cuenta", "admin"} {
		require.NoError(t, os.MkdirAll(filepath.Join(pages, dir), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(pages, dir, "index.html"), []byte("<h1>"+dir+"</h1>"), 0o644))
	}

	srv := NewServer(Deps{
		Categories: categories,
		Search: func(context.Context, string, int) ([]models.Product, error) {
			return []models.Product{catalogProducts["p1"]}, nil
		},
		Carts:       cart.NewService(cart.NewRedisStore(client, time.Hour), lookup),
		Discounts:   validator,
		Checkout:    checkoutSvc,
		Fulfillment: fulfil,
		Tokens:      env.tokens,
		Sessions:    sessions,
		Queue:       queue,
		WelcomeCode: "WELCOME10",
		CartCookie:  CookieSettings{MaxAge: 3600},
		PagesDir:    pages,
	})
	env.router = srv.Routes(nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) sessionCookies(t *testing.T, email string) []*http.Cookie {
	pair, err := e.tokens.Issue("cust-1", email)
	require.NoError(t, err)
	return []*http.Cookie{
		{Name: auth.AccessCookie, Value: pair.Access},
		{Name: auth.RefreshCookie, Value: pair.Refresh},
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{database.ErrOrderNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", cart.ErrItemNotFound), http.StatusNotFound},
		{database.ErrNotOrderOwner, http.StatusForbidden},
		{auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{database.ErrEmailTaken, http.StatusConflict},
		{database.ErrLockTimeout, http.StatusConflict},
		{database.ErrAlreadyRefunded, http.StatusBadRequest},
		{checkout.ErrEmptyCart, http.StatusBadRequest},
		{payment.ErrInvalidSignature, http.StatusBadRequest},
		{payment.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestWebhookRejectsUnsignedDelivery(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/webhook", map[string]string{"type": "checkout.session.completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewBufferString(`{}`))
	req.Header.Set(signatureHeader, "t=1,v1=deadbeef")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Zero(t, env.orderCreates)
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte(`{"id":"evt_2","object":"event","type":"payment_intent.created","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)

	now := time.Now()
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	fmt.Fprintf(mac, "%d.%s", now.Unix(), payload)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook", bytes.NewReader(payload))
	req.Header.Set(signatureHeader, fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(mac.Sum(nil))))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, fulfillment.OutcomeIgnored, body["status"])
	assert.Equal(t, false, body["duplicate"])
	assert.Zero(t, env.orderCreates)
}

func TestValidateDiscountEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/discount/validate", map[string]interface{}{"code": "welcome10", "subtotal": 6000})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, float64(600), body["discount_amount"])

	w = env.do(t, http.MethodPost, "/api/discount/validate", map[string]interface{}{"code": "NOPE", "subtotal": 6000})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])
}

func TestCheckoutEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/checkout", map[string]interface{}{
		"items":         []map[string]interface{}{{"id": "p1", "quantity": 2}},
		"customerEmail": "ana@example.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "cs_1", body["sessionId"])
	assert.Equal(t, "https://checkout.test/cs_1", body["url"])

	w = env.do(t, http.MethodPost, "/api/checkout", map[string]interface{}{"items": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/checkout", map[string]interface{}{
		"items": []map[string]interface{}{{"id": "p1", "quantity": 11}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCartEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": "p1", "quantity": 2, "size": "M"})
	require.Equal(t, http.StatusOK, w.Code)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == cartCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	w = env.do(t, http.MethodGet, "/api/cart", nil, cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["count"])
	assert.Equal(t, float64(6000), body["subtotal"])

	w = env.do(t, http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": "missing"}, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/cart/items/unknown", nil, cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/account/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/api/orders/process-refund", map[string]string{"orderId": "x"},
		env.sessionCookies(t, "ana@example.com")...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/settings/flash-offers", map[string]interface{}{},
		env.sessionCookies(t, "admin@example.com")...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCategoriesServedFromCache(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodGet, "/api/categories", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, env.categoryLoads)
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/products/search?q=a", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["products"])

	w = env.do(t, http.MethodGet, "/api/products/search?q=linen", nil)
	require.Equal(t, http.StatusOK, w.Code)
	products := decode(t, w)["products"].([]interface{})
	require.Len(t, products, 1)
	assert.Equal(t, "shirt.jpg", products[0].(map[string]interface{})["image"])
}

func TestSecurityHeadersApplied(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/categories", nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestAccountPagesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/cuenta/", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?redirect=%2Fcuenta%2F", w.Header().Get("Location"))

	w = env.do(t, http.MethodGet, "/cuenta/", nil, env.sessionCookies(t, "ana@example.com")...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>cuenta</h1>")
}

func TestAdminPagesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/admin/", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?redirect=%2Fadmin%2F", w.Header().Get("Location"))

	w = env.do(t, http.MethodGet, "/admin/", nil, env.sessionCookies(t, "ana@example.com")...)
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/cuenta", w.Header().Get("Location"))

	w = env.do(t, http.MethodGet, "/admin/", nil, env.sessionCookies(t, "admin@example.com")...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<h1>admin</h1>")
}
