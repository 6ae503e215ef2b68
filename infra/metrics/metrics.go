package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mstgnz/gopaytr/provider"
)

// Callback results
const (
	CallbackSuccess = "success"
	CallbackFailed  = "failed"
	CallbackBadHash = "bad_hash"
	CallbackError   = "error"
)

// PaytrMetrics counts token requests and callback notifications
type PaytrMetrics struct {
	TokenRequests   *prometheus.CounterVec
	Callbacks       *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
}

// NewPaytrMetrics creates and registers the payment collectors. A nil
// registerer means the default one.
func NewPaytrMetrics(namespace string, reg prometheus.Registerer) *PaytrMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PaytrMetrics{
		TokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paytr_token_requests_total",
			Help:      "Count of iframe token requests by result and failure kind.",
		}, []string{"result", "kind"}),
		Callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paytr_callbacks_total",
			Help:      "Count of processed payment notifications by result.",
		}, []string{"result"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "paytr_token_request_duration_ms",
			Help:      "Latency of iframe token requests in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 20000},
		}, []string{"result"}),
	}

	mustRegisterCollector(reg, m.TokenRequests, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.TokenRequests = v
		}
	})
	mustRegisterCollector(reg, m.Callbacks, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.Callbacks = v
		}
	})
	mustRegisterCollector(reg, m.ProviderLatency, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.HistogramVec); ok {
			m.ProviderLatency = v
		}
	})

	return m
}

// ObserveToken records one token request. Safe on a nil receiver.
func (m *PaytrMetrics) ObserveToken(res provider.TokenResult, elapsed time.Duration) {
	if m == nil {
		return
	}

	result, kind := "success", "none"
	if !res.Success {
		result = "failure"
		if res.Kind != provider.FailureNone {
			kind = string(res.Kind)
		}
	}

	m.TokenRequests.WithLabelValues(result, kind).Inc()
	m.ProviderLatency.WithLabelValues(result).Observe(DurationMillis(elapsed))
}

// ObserveInvalidRequest records a token request rejected before sending
func (m *PaytrMetrics) ObserveInvalidRequest(kind string) {
	if m == nil {
		return
	}
	m.TokenRequests.WithLabelValues("rejected", kind).Inc()
}

// ObserveCallback records one notification. Safe on a nil receiver.
func (m *PaytrMetrics) ObserveCallback(result string) {
	if m == nil {
		return
	}
	m.Callbacks.WithLabelValues(result).Inc()
}

// HTTPMetrics groups the collectors of the HTTP server
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics creates and registers the HTTP collectors
func NewHTTPMetrics(namespace string, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests handled by the server.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency distribution in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}

	mustRegisterCollector(reg, m.ReqTotal, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.ReqTotal = v
		}
	})
	mustRegisterCollector(reg, m.ReqDur, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.HistogramVec); ok {
			m.ReqDur = v
		}
	})
	mustRegisterCollector(reg, m.InFlight, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Gauge); ok {
			m.InFlight = v
		}
	})

	return m
}

// Middleware counts requests per chi route pattern
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		m.InFlight.Inc()
		start := time.Now()
		next.ServeHTTP(recorder, r)
		m.InFlight.Dec()

		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = "unknown"
		}

		m.ReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		m.ReqDur.WithLabelValues(r.Method, route).Observe(DurationMillis(time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.wroteHeader {
		sr.status = code
		sr.wroteHeader = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// DurationMillis converts a duration to milliseconds for metric observation
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
