package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kkkkikiki/coupon-verify/internal/metrics"
	"github.com/kkkkikiki/coupon-verify/internal/service"
)

// Pinger is the database handle checked by /health/db
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the coupon HTTP API
type Handler struct {
	auth      *service.AuthService
	coupons   *service.CouponService
	companies *service.CompanyService
	records   *service.RecordService
	db        Pinger
	logger    *zap.Logger
}

// NewHandler creates a Handler over the given services
func NewHandler(
	authService *service.AuthService,
	couponService *service.CouponService,
	companyService *service.CompanyService,
	recordService *service.RecordService,
	db Pinger,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		auth:      authService,
		coupons:   couponService,
		companies: companyService,
		records:   recordService,
		db:        db,
		logger:    logger,
	}
}

// NewRouter wires middleware and routes. allowedOrigins feeds CORS.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.HTTPMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Get("/health/db", h.HealthDB)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Get("/auth/verify", h.Verify)
			r.Post("/auth/logout", h.Logout)

			r.Route("/coupon", func(r chi.Router) {
				r.Get("/companies", h.Companies)
				r.Post("/redeem", h.Redeem)
				r.Post("/verify", h.Redeem)
				r.Get("/records", h.Records)
				r.Post("/batch-add", h.BatchAdd)
			})
		})
	})

	return r
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	hostname, _ := os.Hostname()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"service":  "coupon-verify",
		"hostname": hostname,
	})
}

// HealthDB handles GET /health/db
func (h *Handler) HealthDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "database unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
}
