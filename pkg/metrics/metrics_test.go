package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recorders(t *testing.T) {
	m := New("taskmanager")

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SetSubscriptions(3)
	m.NotificationResult(ResultDelivered)
	m.NotificationResult(ResultDropped)
	m.NotificationResult(ResultDropped)
	m.MessageReceived("subscribe")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.wsConnections))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.wsSubs))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.notifyCnt.WithLabelValues(ResultDelivered)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.notifyCnt.WithLabelValues(ResultDropped)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.wsMessages.WithLabelValues("subscribe")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.SetSubscriptions(1)
		m.NotificationResult(ResultFailed)
		m.MessageReceived("ping")
	})
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New("taskmanager")

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/tasks", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpReqCnt.WithLabelValues("GET", "/api/tasks", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "taskmanager_http_requests_total")
	assert.Contains(t, string(body), "taskmanager_ws_connections")
}
