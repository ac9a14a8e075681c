//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestPlaceOrder_Lifecycle(t *testing.T) {
	mat := findProduct(t, "MAT-XL-BLK")

	placed := placeOrder(t, customerToken, orderRequest{
		Items:           []orderItemRequest{{ProductID: mat.ID, Quantity: 2}},
		ShippingAddress: "12 Canal St, Springfield",
		Phone:           "+15550100",
		PaymentMethod:   "cash_on_delivery",
		Notes:           "leave at the door",
	})

	if placed.Status != "pending" {
		t.Errorf("status: got %q, want pending", placed.Status)
	}
	if placed.TotalAmount != "39.8" {
		t.Errorf("total: got %q, want %q", placed.TotalAmount, "39.8")
	}

	// Stock is decremented as part of placement.
	after := findProduct(t, "MAT-XL-BLK")
	if after.Stock != mat.Stock-2 {
		t.Errorf("stock: got %d, want %d", after.Stock, mat.Stock-2)
	}

	// The owner can read the order back, items included.
	resp := doAuthGet(t, fmt.Sprintf("/api/orders/%d", placed.OrderID), customerToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get order: expected 200, got %d", resp.StatusCode)
	}
	o := decodeJSON[orderResponse](t, resp)
	if len(o.Items) != 1 || o.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items: %+v", o.Items)
	}
	if o.Items[0].Price != "19.9" {
		t.Errorf("item price snapshot: got %q, want %q", o.Items[0].Price, "19.9")
	}

	// Staff advance the order through its milestones.
	for _, status := range []string{"confirmed", "processing", "shipped", "delivered"} {
		resp := doAuthJSON(t, http.MethodPut, fmt.Sprintf("/api/orders/%d/status", placed.OrderID),
			map[string]string{"status": status}, adminToken)
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			t.Fatalf("set status %s: expected 200, got %d: %s", status, resp.StatusCode, body)
		}
		got := decodeJSON[statusResponse](t, resp)
		resp.Body.Close()
		if got.Status != status {
			t.Errorf("status: got %q, want %q", got.Status, status)
		}
	}
}

func TestPlaceOrder_RequiresAuth(t *testing.T) {
	mat := findProduct(t, "MAT-XL-BLK")

	resp := doAuthJSON(t, http.MethodPost, "/api/orders", orderRequest{
		Items:           []orderItemRequest{{ProductID: mat.ID, Quantity: 1}},
		ShippingAddress: "12 Canal St",
		Phone:           "+15550100",
		PaymentMethod:   "cash_on_delivery",
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	monitor := findProduct(t, "MON-4K-27")

	resp := doAuthJSON(t, http.MethodPost, "/api/orders", orderRequest{
		Items:           []orderItemRequest{{ProductID: monitor.ID, Quantity: monitor.Stock + 1}},
		ShippingAddress: "12 Canal St",
		Phone:           "+15550100",
		PaymentMethod:   "cash_on_delivery",
	}, customerToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if !strings.Contains(body.Error, "insufficient stock") {
		t.Errorf("error: got %q, want insufficient stock mention", body.Error)
	}

	// A rejected order must not touch stock.
	after := findProduct(t, "MON-4K-27")
	if after.Stock != monitor.Stock {
		t.Errorf("stock changed on rejected order: got %d, want %d", after.Stock, monitor.Stock)
	}
}

func TestCancelOrder_RestoresStock(t *testing.T) {
	mouse := findProduct(t, "MOUSE-WL-02")

	placed := placeOrder(t, customerToken, orderRequest{
		Items:           []orderItemRequest{{ProductID: mouse.ID, Quantity: 3}},
		ShippingAddress: "9 Hill Rd",
		Phone:           "+15550101",
		PaymentMethod:   "cash_on_delivery",
	})

	decremented := findProduct(t, "MOUSE-WL-02")
	if decremented.Stock != mouse.Stock-3 {
		t.Fatalf("stock after order: got %d, want %d", decremented.Stock, mouse.Stock-3)
	}

	resp := doAuthJSON(t, http.MethodPatch, fmt.Sprintf("/api/orders/%d/cancel", placed.OrderID), nil, customerToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("cancel: expected 200, got %d: %s", resp.StatusCode, body)
	}
	got := decodeJSON[statusResponse](t, resp)
	if got.Status != "cancelled" {
		t.Errorf("status: got %q, want cancelled", got.Status)
	}

	restored := findProduct(t, "MOUSE-WL-02")
	if restored.Stock != mouse.Stock {
		t.Errorf("stock after cancel: got %d, want %d", restored.Stock, mouse.Stock)
	}
}

func TestCancelOrder_OnlyWhilePending(t *testing.T) {
	hub := findProduct(t, "HUB-USBC-7")

	placed := placeOrder(t, customerToken, orderRequest{
		Items:           []orderItemRequest{{ProductID: hub.ID, Quantity: 1}},
		ShippingAddress: "9 Hill Rd",
		Phone:           "+15550101",
		PaymentMethod:   "cash_on_delivery",
	})

	resp := doAuthJSON(t, http.MethodPut, fmt.Sprintf("/api/orders/%d/status", placed.OrderID),
		map[string]string{"status": "confirmed"}, adminToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm: expected 200, got %d", resp.StatusCode)
	}

	resp = doAuthJSON(t, http.MethodPatch, fmt.Sprintf("/api/orders/%d/cancel", placed.OrderID), nil, customerToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("cancel confirmed order: expected 400, got %d", resp.StatusCode)
	}
}

func TestGetOrder_OwnerOnly(t *testing.T) {
	cam := findProduct(t, "CAM-FHD-01")

	// Order placed by the admin account; the customer must not see it.
	placed := placeOrder(t, adminToken, orderRequest{
		Items:           []orderItemRequest{{ProductID: cam.ID, Quantity: 1}},
		ShippingAddress: "1 Office Park",
		Phone:           "+15550102",
		PaymentMethod:   "cash_on_delivery",
	})

	resp := doAuthGet(t, fmt.Sprintf("/api/orders/%d", placed.OrderID), customerToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestListUserOrders(t *testing.T) {
	resp := doAuthGet(t, "/api/orders/user", customerToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	list := decodeJSON[orderListResponse](t, resp)
	if len(list.Orders) == 0 {
		t.Fatal("expected at least one order for the customer")
	}
	for _, o := range list.Orders {
		if o.UserID != 2 {
			t.Errorf("order %d belongs to user %d, expected the customer's own orders only", o.ID, o.UserID)
		}
		if o.ItemsCount == 0 {
			t.Errorf("order %d has no items count", o.ID)
		}
	}
}

func TestListAllOrders_StaffOnly(t *testing.T) {
	resp := doAuthGet(t, "/api/orders", customerToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("customer list all: expected 403, got %d", resp.StatusCode)
	}

	resp = doAuthGet(t, "/api/orders?status=cancelled", adminToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin list all: expected 200, got %d", resp.StatusCode)
	}

	list := decodeJSON[orderListResponse](t, resp)
	for _, o := range list.Orders {
		if o.Status != "cancelled" {
			t.Errorf("order %d has status %q, filter requested cancelled", o.ID, o.Status)
		}
	}
}

func TestOrderStats_StaffOnly(t *testing.T) {
	for _, path := range []string{"/api/orders/stats/count", "/api/orders/stats/revenue"} {
		resp := doAuthGet(t, path, customerToken)
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s as customer: expected 403, got %d", path, resp.StatusCode)
		}

		resp = doAuthGet(t, path, adminToken)
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			t.Errorf("%s as admin: expected 200, got %d", path, resp.StatusCode)
			continue
		}

		stats := decodeJSON[map[string]any](t, resp)
		resp.Body.Close()
		if _, ok := stats["current"]; !ok {
			t.Errorf("%s: missing current field", path)
		}
		if _, ok := stats["previous"]; !ok {
			t.Errorf("%s: missing previous field", path)
		}
	}
}

func TestUpdateAdminNotes(t *testing.T) {
	kb := findProduct(t, "KB-MECH-TKL")

	placed := placeOrder(t, customerToken, orderRequest{
		Items:           []orderItemRequest{{ProductID: kb.ID, Quantity: 1}},
		ShippingAddress: "9 Hill Rd",
		Phone:           "+15550101",
		PaymentMethod:   "cash_on_delivery",
	})

	resp := doAuthJSON(t, http.MethodPut, fmt.Sprintf("/api/orders/%d/notes", placed.OrderID),
		map[string]string{"admin_notes": "ship with extra padding"}, adminToken)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set notes: expected 200, got %d", resp.StatusCode)
	}

	// Notes are staff-only; the customer cannot set them.
	resp = doAuthJSON(t, http.MethodPut, fmt.Sprintf("/api/orders/%d/notes", placed.OrderID),
		map[string]string{"admin_notes": "nope"}, customerToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("customer set notes: expected 403, got %d", resp.StatusCode)
	}
}

// Two buyers race for the last unit of a single-stock product. Exactly one
// order may win; the loser is rejected and stock never goes negative.
func TestPlaceOrder_LastUnitContention(t *testing.T) {
	cable := findProduct(t, "CABLE-TB4-2M")
	if cable.Stock != 1 {
		t.Fatalf("stock: got %d, want a single unit", cable.Stock)
	}

	body, err := json.Marshal(orderRequest{
		Items:           []orderItemRequest{{ProductID: cable.ID, Quantity: 1}},
		ShippingAddress: "12 Canal St",
		Phone:           "+15550100",
		PaymentMethod:   "cash_on_delivery",
	})
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}

	type result struct {
		code int
		err  error
	}
	results := make(chan result, 2)
	for range 2 {
		go func() {
			req, err := http.NewRequest(http.MethodPost, baseURL+"/api/orders", bytes.NewReader(body))
			if err != nil {
				results <- result{err: err}
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+customerToken)

			resp, err := httpClient.Do(req)
			if err != nil {
				results <- result{err: err}
				return
			}
			resp.Body.Close()
			results <- result{code: resp.StatusCode}
		}()
	}

	var won, lost int
	for range 2 {
		res := <-results
		if res.err != nil {
			t.Fatalf("place order: %v", res.err)
		}
		switch res.code {
		case http.StatusCreated:
			won++
		case http.StatusBadRequest:
			lost++
		default:
			t.Fatalf("unexpected status %d", res.code)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("got %d accepted and %d rejected, want exactly one of each", won, lost)
	}

	after := findProduct(t, "CABLE-TB4-2M")
	if after.Stock != 0 {
		t.Errorf("stock after race: got %d, want 0", after.Stock)
	}
}

// A product deactivated after the buyer last saw the catalog must not be
// sellable, even though its row still exists.
func TestPlaceOrder_DeactivatedProduct(t *testing.T) {
	stand := findProduct(t, "STAND-ALU-01")

	execSQL(t, "UPDATE products SET is_active = FALSE WHERE sku = 'STAND-ALU-01'")
	t.Cleanup(func() {
		execSQL(t, "UPDATE products SET is_active = TRUE WHERE sku = 'STAND-ALU-01'")
	})

	resp := doAuthJSON(t, http.MethodPost, "/api/orders", orderRequest{
		Items:           []orderItemRequest{{ProductID: stand.ID, Quantity: 1}},
		ShippingAddress: "12 Canal St",
		Phone:           "+15550100",
		PaymentMethod:   "cash_on_delivery",
	}, customerToken)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	body := decodeJSON[errorResponse](t, resp)
	if !strings.Contains(body.Error, "not found") {
		t.Errorf("error: got %q, want not-found mention", body.Error)
	}

	// No unit was reserved for the rejected order.
	after := findProduct(t, "STAND-ALU-01")
	if after.Stock != stand.Stock {
		t.Errorf("stock changed on rejected order: got %d, want %d", after.Stock, stand.Stock)
	}
}
