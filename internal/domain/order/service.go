package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/voltstore/storefront/internal/auth"
	"github.com/voltstore/storefront/internal/domain/product"
)

// EventPublisher receives order events after the corresponding business
// transaction has committed. Implementations must never block the caller
// and must never return delivery failures into the request path.
type EventPublisher interface {
	OrderCreated(o *Order)
	OrderConfirmed(o *Order)
	StatusChanged(o *Order, from, to Status)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) OrderCreated(*Order)                  {}
func (NopPublisher) OrderConfirmed(*Order)                {}
func (NopPublisher) StatusChanged(*Order, Status, Status) {}

// LineInput is one requested cart line.
type LineInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// PlaceRequest holds the input for placing an order.
type PlaceRequest struct {
	Items           []LineInput
	ShippingAddress string
	Phone           string
	PaymentMethod   string
	Notes           string
}

// Service implements the order placement and lifecycle workflow on top of
// the catalog and the aggregate store.
type Service struct {
	products product.Repository
	orders   Repository
	events   EventPublisher
}

// NewService creates an order Service with the required dependencies.
func NewService(products product.Repository, orders Repository, events EventPublisher) *Service {
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{
		products: products,
		orders:   orders,
		events:   events,
	}
}

// Place validates the cart, captures unit prices, computes the total, and
// commits the order with its items and stock decrements as one atomic
// unit. The created event is published only after the commit.
func (s *Service) Place(ctx context.Context, p auth.Principal, req PlaceRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if req.ShippingAddress == "" || req.Phone == "" || req.PaymentMethod == "" {
		return nil, ErrMissingFields
	}
	pm, err := ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(req.Items))
	for i, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, pr := range fetched {
		byID[pr.ID] = pr
	}

	// Validate each line against the live catalog and capture the unit
	// price at check time. The transactional decrement in the store is
	// the authoritative guard; this pass gives precise errors.
	items := make([]Item, len(req.Items))
	total := decimal.Zero
	for i, line := range req.Items {
		pr, ok := byID[line.ProductID]
		if !ok || !pr.IsActive {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if pr.Stock < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID: pr.ID,
				Name:      pr.Name,
				Requested: line.Quantity,
				Available: pr.Stock,
			}
		}
		items[i] = Item{
			ProductID: pr.ID,
			Quantity:  line.Quantity,
			Price:     pr.Price,
		}
		total = total.Add(items[i].LineTotal())
	}

	o := &Order{
		UserID:          p.UserID,
		Status:          StatusPending,
		TotalAmount:     total.Round(2),
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
		PaymentMethod:   pm,
		Notes:           req.Notes,
		Items:           items,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, err
	}

	// Re-read the full aggregate so the notification snapshot carries
	// product and customer names. A read failure here only degrades the
	// event payload; the order is already committed.
	if full, err := s.orders.GetByID(ctx, o.ID); err == nil {
		o = full
	}
	s.events.OrderCreated(o)

	return o, nil
}

// Get returns the full order aggregate. Only the owning user or staff may
// read an order.
func (s *Service) Get(ctx context.Context, p auth.Principal, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != p.UserID && !p.IsStaff() {
		return nil, ErrAccessDenied
	}
	return o, nil
}

// ListForUser returns the caller's orders with bounded item previews.
func (s *Service) ListForUser(ctx context.Context, p auth.Principal) ([]Order, error) {
	return s.orders.ListForUser(ctx, p.UserID)
}

// ListAll returns the administrative listing page and filtered total.
func (s *Service) ListAll(ctx context.Context, f ListFilter, page Page) ([]Order, int, error) {
	return s.orders.ListAll(ctx, f, page)
}

// UpdateStatus moves an order to a new lifecycle state and publishes the
// status-change alert. A transition landing on confirmed additionally
// publishes the confirmation milestone. Writing the current status again
// is a no-op and publishes nothing.
func (s *Service) UpdateStatus(ctx context.Context, id int64, rawStatus string) (*Order, error) {
	st, err := ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == st {
		return o, nil
	}
	if !CanTransition(o.Status, st) {
		return nil, &InvalidTransitionError{From: o.Status, To: st}
	}

	if err := s.orders.UpdateStatus(ctx, id, st); err != nil {
		return nil, err
	}

	from := o.Status
	o.Status = st
	s.events.StatusChanged(o, from, st)
	if st == StatusConfirmed {
		// First-confirmation milestone: the full order alert, mirroring
		// the manual-verification signal for bank-transfer orders.
		s.events.OrderConfirmed(o)
	}
	return o, nil
}

// Cancel cancels a pending order on behalf of its owner, restoring stock
// for every line item before the status flips to cancelled.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, id int64) error {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.UserID != p.UserID {
		return ErrAccessDenied
	}
	if o.Status != StatusPending {
		return &InvalidTransitionError{From: o.Status, To: StatusCancelled}
	}

	// The store re-checks the pending status under lock, so a racing
	// admin transition loses cleanly instead of double-restoring.
	if err := s.orders.Cancel(ctx, id); err != nil {
		return err
	}

	o.Status = StatusCancelled
	s.events.StatusChanged(o, StatusPending, StatusCancelled)
	return nil
}

// SetAdminNotes updates the administrative note side channel. No events
// are published.
func (s *Service) SetAdminNotes(ctx context.Context, id int64, notes string) error {
	if _, err := s.orders.GetByID(ctx, id); err != nil {
		return err
	}
	return s.orders.UpdateAdminNotes(ctx, id, notes)
}

// CountByMonth reports order counts for the current and previous month.
func (s *Service) CountByMonth(ctx context.Context) (*MonthStats, error) {
	return s.orders.CountByMonth(ctx)
}

// RevenueByMonth reports order revenue for the current and previous month.
func (s *Service) RevenueByMonth(ctx context.Context) (*MonthStats, error) {
	return s.orders.RevenueByMonth(ctx)
}
