package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	reqTotal      *prometheus.CounterVec
	reqLatency    *prometheus.HistogramVec
	ticketActions *prometheus.CounterVec
	denied        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reqTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"route", "method", "status"},
		),
		reqLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		ticketActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_ticket_actions_total",
				Help: "Committed ticket workflow actions.",
			},
			[]string{"action", "role"},
		),
		denied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helpdesk_permission_denied_total",
				Help: "Ticket operations rejected by the role policy.",
			},
			[]string{"operation", "role"},
		),
	}

	reg.MustRegister(m.reqTotal, m.reqLatency, m.ticketActions, m.denied)
	return m
}

// Middleware labels requests by route template so ids don't explode cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.reqTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.reqLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) TicketAction(action, role string) {
	m.ticketActions.WithLabelValues(action, role).Inc()
}

func (m *Metrics) PermissionDenied(operation, role string) {
	m.denied.WithLabelValues(operation, role).Inc()
}
