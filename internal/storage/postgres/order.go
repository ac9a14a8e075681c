package postgres

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/voltstore/storefront/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (user_id, status, total_amount, shipping_address, phone, payment_method, notes)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		RETURNING id, created_at`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	// Guarded decrement: affects no row when the product is gone,
	// deactivated since the availability check, or the remaining stock is
	// below the requested quantity.
	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND is_active AND stock >= $2`

	stockShortfallSQL = `SELECT name, stock, is_active FROM products WHERE id = $1`

	orderColumns = `o.id, o.user_id, o.status, o.total_amount, o.shipping_address, o.phone,
		o.payment_method, COALESCE(o.notes, ''), COALESCE(o.admin_notes, ''), o.created_at,
		u.name, u.email`

	getOrderByIDSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.id = $1`

	getOrderItemsSQL = `SELECT oi.id, oi.order_id, oi.product_id, oi.quantity, oi.price,
			p.name, p.sku, p.image_path
		FROM order_items oi JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1
		ORDER BY oi.id`

	listUserOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.user_id = $1
		ORDER BY o.created_at DESC, o.id DESC`

	listPreviewItemsSQL = `SELECT order_id, product_id, name FROM (
			SELECT oi.order_id, oi.product_id, p.name,
				ROW_NUMBER() OVER (PARTITION BY oi.order_id ORDER BY oi.id) AS rn
			FROM order_items oi JOIN products p ON p.id = oi.product_id
			WHERE oi.order_id = ANY($1)
		) t WHERE rn <= 3
		ORDER BY order_id, product_id`

	countItemsSQL = `SELECT order_id, COUNT(*) FROM order_items
		WHERE order_id = ANY($1) GROUP BY order_id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	updateAdminNotesSQL = `UPDATE orders SET admin_notes = NULLIF($2, '') WHERE id = $1`

	lockOrderStatusSQL = `SELECT status FROM orders WHERE id = $1 FOR UPDATE`

	restoreStockSQL = `UPDATE products p SET stock = p.stock + oi.quantity
		FROM order_items oi
		WHERE oi.order_id = $1 AND p.id = oi.product_id`

	countByMonthSQL = `SELECT
			COUNT(*) FILTER (WHERE created_at >= date_trunc('month', now())),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('month', now()) - INTERVAL '1 month'
				AND created_at < date_trunc('month', now()))
		FROM orders`

	revenueByMonthSQL = `SELECT
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= date_trunc('month', now())), 0),
			COALESCE(SUM(total_amount) FILTER (WHERE created_at >= date_trunc('month', now()) - INTERVAL '1 month'
				AND created_at < date_trunc('month', now())), 0)
		FROM orders WHERE status <> 'cancelled'`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order, its line items, and the matching stock
// decrements in one transaction. A line whose guarded decrement affects
// no row aborts the whole unit with InsufficientStockError or
// ProductNotFoundError, depending on what the row looks like.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderSQL,
			o.UserID, o.Status, o.TotalAmount, o.ShippingAddress,
			o.Phone, o.PaymentMethod, o.Notes,
		).Scan(&o.ID, &o.CreatedAt)
		if err != nil {
			return errors.Wrap(err, "inserting order")
		}

		for i := range o.Items {
			it := &o.Items[i]
			it.OrderID = o.ID

			err := tx.QueryRow(ctx, insertOrderItemSQL,
				o.ID, it.ProductID, it.Quantity, it.Price,
			).Scan(&it.ID)
			if err != nil {
				return errors.Wrapf(err, "inserting item for product %d", it.ProductID)
			}

			tag, err := tx.Exec(ctx, decrementStockSQL, it.ProductID, it.Quantity)
			if err != nil {
				return errors.Wrapf(err, "decrementing stock for product %d", it.ProductID)
			}
			if tag.RowsAffected() == 0 {
				return r.stockShortfall(ctx, tx, it)
			}
		}
		return nil
	})
}

// stockShortfall turns a failed guarded decrement into the precise domain
// error, reading the product row inside the same transaction.
func (r *OrderRepository) stockShortfall(ctx context.Context, tx pgx.Tx, it *order.Item) error {
	var (
		name   string
		stock  int
		active bool
	)
	err := tx.QueryRow(ctx, stockShortfallSQL, it.ProductID).Scan(&name, &stock, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return &order.ProductNotFoundError{ProductID: it.ProductID}
	}
	if err != nil {
		return errors.Wrapf(err, "checking stock for product %d", it.ProductID)
	}
	// A product deactivated after the availability check is treated the
	// same as a missing one.
	if !active {
		return &order.ProductNotFoundError{ProductID: it.ProductID}
	}
	return &order.InsufficientStockError{
		ProductID: it.ProductID,
		Name:      name,
		Requested: it.Quantity,
		Available: stock,
	}
}

// GetByID returns the full aggregate: the order row with its customer
// snapshot plus every line item with its product snapshot.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting order %d", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting order %d", id)
	}

	itemRows, err := r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting items for order %d", id)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, errors.Wrapf(err, "getting items for order %d", id)
	}

	return &o, nil
}

// ListForUser returns the user's orders newest first, each carrying up to
// three preview items and the total item count.
func (r *OrderRepository) ListForUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listUserOrdersSQL, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing user orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "listing user orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}

	if err := r.attachPreviews(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *OrderRepository) attachPreviews(ctx context.Context, orders []order.Order) error {
	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx, listPreviewItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "listing preview items")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			orderID int64
			pv      order.PreviewItem
		)
		if err := rows.Scan(&orderID, &pv.ProductID, &pv.Name); err != nil {
			return errors.Wrap(err, "scanning preview item")
		}
		if o := byID[orderID]; o != nil {
			o.ItemsPreview = append(o.ItemsPreview, pv)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "listing preview items")
	}

	countRows, err := r.pool.Query(ctx, countItemsSQL, ids)
	if err != nil {
		return errors.Wrap(err, "counting order items")
	}
	defer countRows.Close()
	for countRows.Next() {
		var (
			orderID int64
			n       int
		)
		if err := countRows.Scan(&orderID, &n); err != nil {
			return errors.Wrap(err, "scanning item count")
		}
		if o := byID[orderID]; o != nil {
			o.ItemsCount = n
		}
	}
	return errors.Wrap(countRows.Err(), "counting order items")
}

// ListAll returns one page of the administrative listing plus the total
// count of the filtered set. Filters compose with AND.
func (r *OrderRepository) ListAll(ctx context.Context, f order.ListFilter, p order.Page) ([]order.Order, int, error) {
	where := ` WHERE TRUE`
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where += ` AND o.status = ` + placeholder(len(args))
	}
	if f.PaymentMethod != "" {
		args = append(args, f.PaymentMethod)
		where += ` AND o.payment_method = ` + placeholder(len(args))
	}

	var total int
	countSQL := `SELECT COUNT(*) FROM orders o` + where
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting orders")
	}

	pageSQL := `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id` + where +
		` ORDER BY o.created_at DESC, o.id DESC` +
		` LIMIT ` + placeholder(len(args)+1) + ` OFFSET ` + placeholder(len(args)+2)
	args = append(args, p.Limit, p.Offset)

	rows, err := r.pool.Query(ctx, pageSQL, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing orders")
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing orders")
	}

	if len(orders) > 0 {
		if err := r.attachPreviews(ctx, orders); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

// UpdateStatus writes the status column.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, st order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, st)
	if err != nil {
		return errors.Wrapf(err, "updating status of order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdateAdminNotes writes the staff-only notes column.
func (r *OrderRepository) UpdateAdminNotes(ctx context.Context, id int64, notes string) error {
	tag, err := r.pool.Exec(ctx, updateAdminNotesSQL, id, notes)
	if err != nil {
		return errors.Wrapf(err, "updating notes of order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Cancel restores stock for every line item and flips the status to
// cancelled, in one transaction. The status row is locked so a concurrent
// fulfillment update cannot race the restore.
func (r *OrderRepository) Cancel(ctx context.Context, id int64) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var st order.Status
		err := tx.QueryRow(ctx, lockOrderStatusSQL, id).Scan(&st)
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "locking order %d", id)
		}
		if st != order.StatusPending {
			return &order.InvalidTransitionError{From: st, To: order.StatusCancelled}
		}

		if _, err := tx.Exec(ctx, restoreStockSQL, id); err != nil {
			return errors.Wrapf(err, "restoring stock for order %d", id)
		}
		if _, err := tx.Exec(ctx, updateOrderStatusSQL, id, order.StatusCancelled); err != nil {
			return errors.Wrapf(err, "cancelling order %d", id)
		}
		return nil
	})
}

// CountByMonth compares order counts for the current calendar month against
// the previous one.
func (r *OrderRepository) CountByMonth(ctx context.Context) (*order.MonthStats, error) {
	var cur, prev int64
	if err := r.pool.QueryRow(ctx, countByMonthSQL).Scan(&cur, &prev); err != nil {
		return nil, errors.Wrap(err, "counting orders by month")
	}
	return &order.MonthStats{
		Current:  decimal.NewFromInt(cur),
		Previous: decimal.NewFromInt(prev),
	}, nil
}

// RevenueByMonth compares non-cancelled revenue for the current calendar
// month against the previous one.
func (r *OrderRepository) RevenueByMonth(ctx context.Context) (*order.MonthStats, error) {
	var s order.MonthStats
	if err := r.pool.QueryRow(ctx, revenueByMonthSQL).Scan(&s.Current, &s.Previous); err != nil {
		return nil, errors.Wrap(err, "summing revenue by month")
	}
	return &s, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.ShippingAddress,
		&o.Phone, &o.PaymentMethod, &o.Notes, &o.AdminNotes, &o.CreatedAt,
		&o.CustomerName, &o.CustomerEmail,
	)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price,
		&it.ProductName, &it.ProductSKU, &it.ProductImage,
	)
	return it, err
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
