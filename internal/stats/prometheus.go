package stats

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusStats exposes every registered metric as a gauge named
// chat_<snake_case_name> and serves them at GET /metrics.
type PrometheusStats struct {
	registry *prometheus.Registry
	mu       sync.RWMutex
	gauges   map[string]prometheus.Gauge

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewPrometheusStats(mux *http.ServeMux) *PrometheusStats {
	reg := prometheus.NewRegistry()
	ps := &PrometheusStats{
		registry: reg,
		gauges:   make(map[string]prometheus.Gauge),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
	reg.MustRegister(ps.requests, ps.duration)

	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return ps
}

func metricName(name string) string {
	var b strings.Builder
	b.WriteString("chat_")
	for i, r := range strings.TrimPrefix(name, "Num") {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}

	return b.String()
}

func (ps *PrometheusStats) RegisterMetric(name string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, ok := ps.gauges[name]; ok {
		return
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: metricName(name),
		Help: "Current value of " + name,
	})
	ps.registry.MustRegister(g)
	ps.gauges[name] = g
}

func (ps *PrometheusStats) RegisterGaugeFunc(name string, fn func() float64) {
	ps.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: metricName(name),
		Help: "Current value of " + name,
	}, fn))
}

func (ps *PrometheusStats) gauge(name string) prometheus.Gauge {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	g, ok := ps.gauges[name]
	if !ok {
		panic("metric not found: " + name)
	}

	return g
}

func (ps *PrometheusStats) Incr(name string) {
	ps.gauge(name).Inc()
}

func (ps *PrometheusStats) Decr(name string) {
	ps.gauge(name).Dec()
}

// Run is a no-op; gauges are updated in place.
func (ps *PrometheusStats) Run() {}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not implement http.Hijacker")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

const unmatchedRoute = "unmatched"

// Instrument records request counts and latencies for next, labelled by the
// matched route pattern.
func (ps *PrometheusStats) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{"method": r.Method, "path": routeLabel(r.Pattern), "status": strconv.Itoa(rec.status)}
		ps.requests.With(labels).Inc()
		ps.duration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// routeLabel strips the method from a mux pattern such as
// "GET /api/rooms/{id}/messages". Requests no route matched share one label.
func routeLabel(pattern string) string {
	if pattern == "" {
		return unmatchedRoute
	}
	if _, p, ok := strings.Cut(pattern, " "); ok {
		return p
	}

	return pattern
}
