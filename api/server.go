package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jeffsasaki/store-admin/dashboard"
	model "github.com/jeffsasaki/store-admin/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type CheckoutService interface {
	Checkout(ctx context.Context, storeID string, productIDs []string) (string, error)
}

type WebhookHandler interface {
	Handle(ctx context.Context, payload []byte, signature string) error
}

type CatalogService interface {
	ListProducts(ctx context.Context, storeID string, filter model.ProductFilter) ([]model.Product, error)
}

type OrderLister interface {
	ListOrders(ctx context.Context, storeID string) ([]model.OrderSummary, error)
}

type StatsService interface {
	Stats(ctx context.Context, storeID string) (*dashboard.Stats, error)
}

type Server struct {
	Checkout    CheckoutService
	Webhook     WebhookHandler
	Catalog     CatalogService
	Orders      OrderLister
	Stats       StatsService
	AdminAPIKey string
	Logger      *slog.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Post("/api/webhook", s.handleWebhook)

	r.Route("/api/{storeId}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(cors)
			r.Options("/checkout", s.handlePreflight)
			r.Post("/checkout", s.handleCheckout)
		})

		r.Get("/products", s.handleListProducts)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/orders", s.handleListOrders)
			r.Get("/stats", s.handleStats)
		})
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
