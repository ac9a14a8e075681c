// Package handler exposes the storefront API over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voltstore/storefront/internal/auth"
	"github.com/voltstore/storefront/internal/domain/order"
	"github.com/voltstore/storefront/internal/domain/product"
	"github.com/voltstore/storefront/internal/domain/receipt"
	"github.com/voltstore/storefront/internal/upload"
)

// Server bundles the services behind the HTTP surface.
type Server struct {
	orders   *order.Service
	products product.Repository
	receipts *receipt.Service
	uploads  *upload.Store
	lg       *zap.Logger
}

// NewServer creates the HTTP handler set.
func NewServer(orders *order.Service, products product.Repository, receipts *receipt.Service, uploads *upload.Store, lg *zap.Logger) *Server {
	return &Server{
		orders:   orders,
		products: products,
		receipts: receipts,
		uploads:  uploads,
		lg:       lg,
	}
}

// Routes mounts the API under /api on the given router. Catalog reads are
// public; everything else requires a bearer token, and the administrative
// surface requires a staff role on top.
func (s *Server) Routes(r chi.Router, verifier auth.Verifier) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.listProducts)
		r.Get("/products/{id}", s.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))

			r.Post("/orders", s.placeOrder)
			r.Get("/orders/user", s.listUserOrders)
			r.Get("/orders/{id}", s.getOrder)
			r.Patch("/orders/{id}/cancel", s.cancelOrder)
			r.Post("/orders/{id}/receipt", s.uploadReceipt)
			r.Get("/orders/{id}/receipts", s.listReceipts)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireStaff)

				r.Get("/orders", s.listAllOrders)
				r.Put("/orders/{id}/status", s.updateStatus)
				r.Put("/orders/{id}/notes", s.updateNotes)
				r.Get("/orders/stats/count", s.statsCount)
				r.Get("/orders/stats/revenue", s.statsRevenue)
				r.Delete("/receipts/{id}", s.deleteReceipt)
			})
		})
	})
}

// pathID parses the {id} route parameter. A malformed value reports
// not-found rather than bad-request: such a path names no resource.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func principal(r *http.Request) (auth.Principal, bool) {
	return auth.FromContext(r.Context())
}
