package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// ErrInvalidStatus is returned when a status string is not a known value.
var ErrInvalidStatus = errors.New("invalid status")

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusProcessing,
		StatusShipped, StatusDelivered, StatusCancelled:
		return st, nil
	default:
		return "", ErrInvalidStatus
	}
}

// rank positions each non-terminal-entry status on the fulfillment chain.
var rank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether an order may move from one status to
// another. The fulfillment chain is forward-only
// (pending -> confirmed -> processing -> shipped -> delivered), skipping
// steps is allowed, and cancelled is reachable only from pending.
func CanTransition(from, to Status) bool {
	if from.Terminal() || from == to {
		return false
	}
	if to == StatusCancelled {
		return from == StatusPending
	}
	return rank[to] > rank[from]
}

// PaymentMethod is how the customer pays for an order.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentBankTransfer   PaymentMethod = "bank_transfer"
)

// ErrInvalidPaymentMethod is returned when a payment method string is not
// a known value.
var ErrInvalidPaymentMethod = errors.New("invalid payment method")

// ParsePaymentMethod validates a raw payment method string.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch pm := PaymentMethod(s); pm {
	case PaymentCashOnDelivery, PaymentBankTransfer:
		return pm, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// Order is the aggregate root: the order row together with its line items.
// TotalAmount is fixed at placement time and never recomputed.
type Order struct {
	ID              int64
	UserID          int64
	Status          Status
	TotalAmount     decimal.Decimal
	ShippingAddress string
	Phone           string
	PaymentMethod   PaymentMethod
	Notes           string
	AdminNotes      string
	CreatedAt       time.Time

	// Customer snapshot, filled by read-time join for display and
	// notification purposes.
	CustomerName  string
	CustomerEmail string

	// Items is the full line item set (GetByID only).
	Items []Item

	// ItemsPreview and ItemsCount are filled for list views instead of
	// the full item set.
	ItemsPreview []PreviewItem
	ItemsCount   int
}

// Item is one product line within an order. Price is the unit price
// captured when the order was placed.
type Item struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  int
	Price     decimal.Decimal

	// Product snapshot from the read-time join.
	ProductName  string
	ProductSKU   string
	ProductImage string
}

// LineTotal returns Price * Quantity for this item.
func (it Item) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// PreviewItem is the bounded per-order item preview used by list views.
type PreviewItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
}

// ListFilter narrows the administrative order listing.
type ListFilter struct {
	Status        Status
	PaymentMethod PaymentMethod
}

// Page is a limit/offset window for paginated listings.
type Page struct {
	Limit  int
	Offset int
}

// MonthStats holds a current-vs-previous month comparison.
type MonthStats struct {
	Current  decimal.Decimal
	Previous decimal.Decimal
}

// Sentinel errors for order operations.
var (
	ErrNotFound      = errors.New("order not found")
	ErrAccessDenied  = errors.New("access denied")
	ErrEmptyItems    = errors.New("order items are required")
	ErrMissingFields = errors.New("shipping address, phone, and payment method are required")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d", e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist or is
// not active.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

// InsufficientStockError indicates a line's quantity exceeds the product's
// available stock.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// InvalidTransitionError indicates an illegal status move.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Repository is the order aggregate store. Create and Cancel are atomic
// units: order row, line items, and the matching stock mutations commit or
// roll back together.
type Repository interface {
	// Create persists the order with its items and decrements stock for
	// every line inside one transaction. A line whose guarded decrement
	// affects no row fails the whole unit with InsufficientStockError.
	// On success the order's ID and CreatedAt are filled in.
	Create(ctx context.Context, o *Order) error

	// GetByID returns the full aggregate: items with product snapshots
	// plus the customer snapshot. Returns ErrNotFound when missing.
	GetByID(ctx context.Context, id int64) (*Order, error)

	// ListForUser returns the user's orders newest-first, each carrying
	// ItemsPreview (up to 3 items) and ItemsCount.
	ListForUser(ctx context.Context, userID int64) ([]Order, error)

	// ListAll returns the administrative listing page plus the total
	// count of the filtered set.
	ListAll(ctx context.Context, f ListFilter, p Page) ([]Order, int, error)

	// UpdateStatus writes the status column. Returns ErrNotFound when the
	// order does not exist.
	UpdateStatus(ctx context.Context, id int64, st Status) error

	// UpdateAdminNotes writes the admin_notes side channel.
	UpdateAdminNotes(ctx context.Context, id int64, notes string) error

	// Cancel restores stock for every line item and sets the status to
	// cancelled in one transaction. Fails with InvalidTransitionError if
	// the order is no longer pending, ErrNotFound if it is missing.
	Cancel(ctx context.Context, id int64) error

	// CountByMonth and RevenueByMonth compare the current calendar month
	// against the previous one.
	CountByMonth(ctx context.Context) (*MonthStats, error)
	RevenueByMonth(ctx context.Context) (*MonthStats, error)
}
