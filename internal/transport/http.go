package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casaluna/order-service/internal/auth"
	"github.com/casaluna/order-service/internal/cart"
	"github.com/casaluna/order-service/internal/handler"
	"github.com/casaluna/order-service/internal/order"
	"github.com/casaluna/order-service/internal/payment"
)

// NewRouter mounts the order, cart and payment APIs plus health and metrics
// endpoints.
func NewRouter(orders order.Service, carts cart.Service, payments payment.Service) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(auth.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	orderHandler := handler.NewOrderHandler(orders)
	cartHandler := handler.NewCartHandler(carts)
	paymentHandler := handler.NewPaymentHandler(payments)

	r.Route("/api/orders", func(r chi.Router) {
		cartHandler.RegisterRoutes(r)
		orderHandler.RegisterRoutes(r)
	})
	r.Route("/api/payments", func(r chi.Router) {
		paymentHandler.RegisterRoutes(r)
	})

	return r
}
