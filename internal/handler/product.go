package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltstore/storefront/internal/domain/product"
)

type productView struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	ImagePath string          `json:"image_path,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func toProductView(p *product.Product) productView {
	return productView{
		ID:        p.ID,
		Name:      p.Name,
		SKU:       p.SKU,
		Price:     p.Price,
		Stock:     p.Stock,
		ImagePath: p.ImagePath,
		CreatedAt: p.CreatedAt,
	}
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.products.ListActive(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	views := make([]productView, len(products))
	for i := range products {
		views[i] = toProductView(&products[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": views})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	p, err := s.products.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductView(p))
}
