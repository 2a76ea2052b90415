package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Notification outcomes.
const (
	ResultDelivered = "delivered"
	ResultDropped   = "dropped"
	ResultFailed    = "failed"
)

// Metrics is safe to use through a nil pointer; every recorder becomes a no-op.
type Metrics struct {
	registry      *prometheus.Registry
	namespace     string
	httpReqCnt    *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
	wsConnections prometheus.Gauge
	wsSubs        prometheus.Gauge
	notifyCnt     *prometheus.CounterVec
	wsMessages    *prometheus.CounterVec
}

func New(namespace string) *Metrics {
	ns := namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"method", "route", "status"})
	r.MustRegister(httpReqCnt, httpDur)

	wsConnections := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "ws_connections", Help: "Live WebSocket connections."})
	wsSubs := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "ws_subscriptions", Help: "Users with a subscribed connection."})
	notifyCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "notifications_total", Help: "Task notifications by outcome."}, []string{"result"})
	wsMessages := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "ws_messages_total", Help: "Inbound WebSocket messages by type."}, []string{"type"})
	r.MustRegister(wsConnections, wsSubs, notifyCnt, wsMessages)

	return &Metrics{
		registry:      r,
		namespace:     ns,
		httpReqCnt:    httpReqCnt,
		httpDur:       httpDur,
		wsConnections: wsConnections,
		wsSubs:        wsSubs,
		notifyCnt:     notifyCnt,
		wsMessages:    wsMessages,
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.wsConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.wsConnections.Dec()
}

func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.wsSubs.Set(float64(n))
}

func (m *Metrics) NotificationResult(result string) {
	if m == nil {
		return
	}
	m.notifyCnt.WithLabelValues(result).Inc()
}

func (m *Metrics) MessageReceived(messageType string) {
	if m == nil {
		return
	}
	m.wsMessages.WithLabelValues(messageType).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
