package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedeemCouponDuration tracks the latency of coupon redemption
	RedeemCouponDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "coupon_redeem_duration_seconds",
			Help: "Duration of coupon redemption requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"status"}, // success, already_used, not_found, invalid, error
	)

	// CouponsGenerated counts codes persisted by batch generation
	CouponsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coupon_generated_total",
		Help: "Total number of coupon codes generated",
	})

	// LoginAttempts counts operator logins by outcome
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_login_attempts_total",
		Help: "Total number of operator login attempts",
	}, []string{"result"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coupon_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// RecordRedeemCouponDuration records the duration of a coupon redemption request
func RecordRedeemCouponDuration(status string, duration float64) {
	RedeemCouponDuration.WithLabelValues(status).Observe(duration)
}

// AddCouponsGenerated adds n freshly generated codes
func AddCouponsGenerated(n int) {
	CouponsGenerated.Add(float64(n))
}

// RecordLogin records a login outcome (success, not_found, invalid_credential, invalid)
func RecordLogin(result string) {
	LoginAttempts.WithLabelValues(result).Inc()
}

// HTTPMiddleware instruments requests. The chi route pattern is used as the
// label so path parameters do not explode cardinality.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := strconv.Itoa(ww.status)
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
