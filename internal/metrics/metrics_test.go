package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(PrometheusMiddleware())
	r.GET("/api/products/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/products/:id", "418"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products/abc", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/api/products/:id", "418"))
	assert.Equal(t, before+1, after)
}

func TestRecordOrderOperation(t *testing.T) {
	before := testutil.ToFloat64(orderOperations.WithLabelValues("refund", "error"))
	RecordOrderOperation("refund", false)
	assert.Equal(t, before+1, testutil.ToFloat64(orderOperations.WithLabelValues("refund", "error")))
}
