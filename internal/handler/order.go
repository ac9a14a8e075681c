package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/voltstore/storefront/internal/domain/order"
)

type placeOrderRequest struct {
	Items           []order.LineInput `json:"items"`
	ShippingAddress string            `json:"shipping_address"`
	Phone           string            `json:"phone"`
	PaymentMethod   string            `json:"payment_method"`
	Notes           string            `json:"notes"`
}

type orderItemView struct {
	ID           int64           `json:"id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductSKU   string          `json:"product_sku"`
	ProductImage string          `json:"product_image,omitempty"`
	Quantity     int             `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	Total        decimal.Decimal `json:"total"`
}

type orderView struct {
	ID              int64               `json:"id"`
	UserID          int64               `json:"user_id"`
	CustomerName    string              `json:"customer_name,omitempty"`
	CustomerEmail   string              `json:"customer_email,omitempty"`
	Status          order.Status        `json:"status"`
	TotalAmount     decimal.Decimal     `json:"total_amount"`
	ShippingAddress string              `json:"shipping_address"`
	Phone           string              `json:"phone"`
	PaymentMethod   order.PaymentMethod `json:"payment_method"`
	Notes           string              `json:"notes,omitempty"`
	AdminNotes      string              `json:"admin_notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`

	Items        []orderItemView     `json:"items,omitempty"`
	ItemsPreview []order.PreviewItem `json:"items_preview,omitempty"`
	ItemsCount   int                 `json:"items_count,omitempty"`
}

func toOrderView(o *order.Order) orderView {
	v := orderView{
		ID:              o.ID,
		UserID:          o.UserID,
		CustomerName:    o.CustomerName,
		CustomerEmail:   o.CustomerEmail,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		ShippingAddress: o.ShippingAddress,
		Phone:           o.Phone,
		PaymentMethod:   o.PaymentMethod,
		Notes:           o.Notes,
		AdminNotes:      o.AdminNotes,
		CreatedAt:       o.CreatedAt,
		ItemsPreview:    o.ItemsPreview,
		ItemsCount:      o.ItemsCount,
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, orderItemView{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductSKU:   it.ProductSKU,
			ProductImage: it.ProductImage,
			Quantity:     it.Quantity,
			Price:        it.Price,
			Total:        it.LineTotal(),
		})
	}
	return v
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := s.orders.Place(r.Context(), p, order.PlaceRequest{
		Items:           req.Items,
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":     o.ID,
		"total_amount": o.TotalAmount,
		"status":       o.Status,
	})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	o, err := s.orders.Get(r.Context(), p, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (s *Server) listUserOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := s.orders.ListForUser(r.Context(), p)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = toOrderView(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

func (s *Server) listAllOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f order.ListFilter
	if raw := q.Get("status"); raw != "" {
		st, err := order.ParseStatus(raw)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		f.Status = st
	}
	if raw := q.Get("payment_method"); raw != "" {
		pm, err := order.ParsePaymentMethod(raw)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		f.PaymentMethod = pm
	}

	page := order.Page{Limit: 20}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= 100 {
		page.Limit = n
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		page.Offset = n
	}

	orders, total, err := s.orders.ListAll(r.Context(), f, page)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	views := make([]orderView, len(orders))
	for i := range orders {
		views[i] = toOrderView(&orders[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": views,
		"total":  total,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if err := s.orders.Cancel(r.Context(), p, id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id": id,
		"status":   order.StatusCancelled,
	})
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := s.orders.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id": o.ID,
		"status":   o.Status,
	})
}

func (s *Server) updateNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	var req struct {
		AdminNotes string `json:"admin_notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.orders.SetAdminNotes(r.Context(), id, req.AdminNotes); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id})
}

func (s *Server) statsCount(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orders.CountByMonth(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current":  stats.Current,
		"previous": stats.Previous,
	})
}

func (s *Server) statsRevenue(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orders.RevenueByMonth(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current":  stats.Current,
		"previous": stats.Previous,
	})
}
