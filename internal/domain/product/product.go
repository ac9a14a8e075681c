package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID        int64
	Name      string
	SKU       string
	Price     decimal.Decimal
	Stock     int
	ImagePath string
	IsActive  bool
	CreatedAt time.Time
}

// Repository defines read operations for the product catalog. Stock
// mutation is deliberately absent: decrements and restores happen only
// inside the order store's transactions.
type Repository interface {
	ListActive(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}
