package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voltstore/storefront/internal/auth"
	"github.com/voltstore/storefront/internal/domain/order"
	"github.com/voltstore/storefront/internal/domain/product"
	"github.com/voltstore/storefront/internal/domain/receipt"
	"github.com/voltstore/storefront/internal/upload"
)

// --- In-memory stores ---

type stubProducts struct {
	byID map[int64]product.Product
}

func (s *stubProducts) ListActive(context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range s.byID {
		if p.IsActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubProducts) GetByID(_ context.Context, id int64) (*product.Product, error) {
	p, ok := s.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (s *stubProducts) GetByIDs(_ context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := s.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubOrders struct {
	byID   map[int64]*order.Order
	nextID int64
}

func newStubOrders() *stubOrders {
	return &stubOrders{byID: make(map[int64]*order.Order), nextID: 1}
}

func (s *stubOrders) Create(_ context.Context, o *order.Order) error {
	o.ID = s.nextID
	o.CreatedAt = time.Now()
	s.nextID++
	cp := *o
	s.byID[o.ID] = &cp
	return nil
}

func (s *stubOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubOrders) ListForUser(_ context.Context, userID int64) ([]order.Order, error) {
	var out []order.Order
	for _, o := range s.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *stubOrders) ListAll(context.Context, order.ListFilter, order.Page) ([]order.Order, int, error) {
	var out []order.Order
	for _, o := range s.byID {
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (s *stubOrders) UpdateStatus(_ context.Context, id int64, st order.Status) error {
	o, ok := s.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = st
	return nil
}

func (s *stubOrders) UpdateAdminNotes(_ context.Context, id int64, notes string) error {
	o, ok := s.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	o.AdminNotes = notes
	return nil
}

func (s *stubOrders) Cancel(_ context.Context, id int64) error {
	o, ok := s.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != order.StatusPending {
		return &order.InvalidTransitionError{From: o.Status, To: order.StatusCancelled}
	}
	o.Status = order.StatusCancelled
	return nil
}

func (s *stubOrders) CountByMonth(context.Context) (*order.MonthStats, error) {
	return &order.MonthStats{Current: decimal.NewFromInt(4), Previous: decimal.NewFromInt(2)}, nil
}

func (s *stubOrders) RevenueByMonth(context.Context) (*order.MonthStats, error) {
	return &order.MonthStats{}, nil
}

type stubReceipts struct {
	byID   map[int64]*receipt.Receipt
	nextID int64
}

func (s *stubReceipts) Create(_ context.Context, r *receipt.Receipt) error {
	r.ID = s.nextID
	r.CreatedAt = time.Now()
	s.nextID++
	s.byID[r.ID] = r
	return nil
}

func (s *stubReceipts) GetByID(_ context.Context, id int64) (*receipt.Receipt, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, receipt.ErrNotFound
	}
	return r, nil
}

func (s *stubReceipts) ListForOrder(_ context.Context, orderID int64) ([]receipt.Receipt, error) {
	var out []receipt.Receipt
	for _, r := range s.byID {
		if r.OrderID == orderID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *stubReceipts) Delete(_ context.Context, id int64) error {
	if _, ok := s.byID[id]; !ok {
		return receipt.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// --- Test fixture ---

type fixture struct {
	router   chi.Router
	verifier *auth.TokenVerifier
	orders   *stubOrders
}

func newFixture(t *testing.T) *fixture {
	products := &stubProducts{byID: map[int64]product.Product{
		1: {ID: 1, Name: "Widget", SKU: "W1", Price: decimal.RequireFromString("8.75"), Stock: 10, IsActive: true},
		2: {ID: 2, Name: "Gadget", SKU: "G1", Price: decimal.RequireFromString("20.00"), Stock: 1, IsActive: true},
	}}
	orders := newStubOrders()
	receipts := &stubReceipts{byID: make(map[int64]*receipt.Receipt), nextID: 1}

	lg := zaptest.NewLogger(t)
	uploads := upload.NewStore(t.TempDir())
	orderSvc := order.NewService(products, orders, nil)
	receiptSvc := receipt.NewService(receipts, orders, uploads, nil)
	verifier := auth.NewTokenVerifier([]byte("test-secret"))

	router := chi.NewRouter()
	NewServer(orderSvc, products, receiptSvc, uploads, lg).Routes(router, verifier)

	return &fixture{router: router, verifier: verifier, orders: orders}
}

func (f *fixture) do(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestPlaceOrderEndpoint(t *testing.T) {
	f := newFixture(t)
	token := f.verifier.Sign(auth.Principal{UserID: 7, Role: auth.RoleUser}, time.Now().Add(time.Hour))

	rec := f.do(t, http.MethodPost, "/api/orders", token, `{
		"items": [{"product_id": 1, "quantity": 2}],
		"shipping_address": "1 Main St",
		"phone": "+155501",
		"payment_method": "cash_on_delivery"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		OrderID     int64  `json:"order_id"`
		TotalAmount string `json:"total_amount"`
		Status      string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.OrderID)
	assert.Equal(t, "17.5", decimal.RequireFromString(resp.TotalAmount).String())
	assert.Equal(t, "pending", resp.Status)
}

func TestPlaceOrderEndpoint_InsufficientStock(t *testing.T) {
	f := newFixture(t)
	token := f.verifier.Sign(auth.Principal{UserID: 7, Role: auth.RoleUser}, time.Now().Add(time.Hour))

	rec := f.do(t, http.MethodPost, "/api/orders", token, `{
		"items": [{"product_id": 2, "quantity": 5}],
		"shipping_address": "1 Main St",
		"phone": "+155501",
		"payment_method": "bank_transfer"
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient stock")
	assert.Contains(t, rec.Body.String(), "Gadget")
}

func TestPlaceOrderEndpoint_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/orders", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetOrderEndpoint_AccessRules(t *testing.T) {
	f := newFixture(t)
	owner := f.verifier.Sign(auth.Principal{UserID: 7, Role: auth.RoleUser}, time.Now().Add(time.Hour))
	stranger := f.verifier.Sign(auth.Principal{UserID: 8, Role: auth.RoleUser}, time.Now().Add(time.Hour))
	admin := f.verifier.Sign(auth.Principal{UserID: 9, Role: auth.RoleAdmin}, time.Now().Add(time.Hour))

	f.orders.byID[1] = &order.Order{ID: 1, UserID: 7, Status: order.StatusPending}
	f.orders.nextID = 2

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/orders/1", owner, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/orders/1", stranger, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/orders/1", admin, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/orders/99", owner, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/orders/abc", owner, "").Code)
}

func TestCancelOrderEndpoint(t *testing.T) {
	f := newFixture(t)
	owner := f.verifier.Sign(auth.Principal{UserID: 7, Role: auth.RoleUser}, time.Now().Add(time.Hour))

	f.orders.byID[1] = &order.Order{ID: 1, UserID: 7, Status: order.StatusPending}
	f.orders.byID[2] = &order.Order{ID: 2, UserID: 7, Status: order.StatusShipped}
	f.orders.nextID = 3

	rec := f.do(t, http.MethodPatch, "/api/orders/1/cancel", owner, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, order.StatusCancelled, f.orders.byID[1].Status)

	rec = f.do(t, http.MethodPatch, "/api/orders/2/cancel", owner, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "cannot transition")
}

func TestUpdateStatusEndpoint_StaffOnly(t *testing.T) {
	f := newFixture(t)
	user := f.verifier.Sign(auth.Principal{UserID: 7, Role: auth.RoleUser}, time.Now().Add(time.Hour))
	admin := f.verifier.Sign(auth.Principal{UserID: 9, Role: auth.RoleAdmin}, time.Now().Add(time.Hour))

	f.orders.byID[1] = &order.Order{ID: 1, UserID: 7, Status: order.StatusPending}
	f.orders.nextID = 2

	rec := f.do(t, http.MethodPut, "/api/orders/1/status", user, `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/orders/1/status", admin, `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, order.StatusConfirmed, f.orders.byID[1].Status)

	rec = f.do(t, http.MethodPut, "/api/orders/1/status", admin, `{"status":"sideways"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductsEndpoint_Public(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Products []productView `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Products, 2)

	rec = f.do(t, http.MethodGet, "/api/products/1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/products/99", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatsEndpoints_StaffOnly(t *testing.T) {
	f := newFixture(t)
	user := f.verifier.Sign(auth.Principal{UserID: 7, Role: auth.RoleUser}, time.Now().Add(time.Hour))
	admin := f.verifier.Sign(auth.Principal{UserID: 9, Role: auth.RoleAdmin}, time.Now().Add(time.Hour))

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/orders/stats/count", user, "").Code)

	rec := f.do(t, http.MethodGet, "/api/orders/stats/count", admin, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "current")
}
