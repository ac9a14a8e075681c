package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voltstore/storefront/internal/domain/receipt"
)

const (
	insertReceiptSQL = `INSERT INTO receipts (order_id, file_path, original_filename, file_size, mime_type, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	receiptColumns = `r.id, r.order_id, r.file_path, r.original_filename, r.file_size,
		r.mime_type, r.uploaded_by, u.name, r.created_at`

	getReceiptByIDSQL = `SELECT ` + receiptColumns + `
		FROM receipts r JOIN users u ON u.id = r.uploaded_by
		WHERE r.id = $1`

	listOrderReceiptsSQL = `SELECT ` + receiptColumns + `
		FROM receipts r JOIN users u ON u.id = r.uploaded_by
		WHERE r.order_id = $1
		ORDER BY r.created_at DESC, r.id DESC`

	deleteReceiptSQL = `DELETE FROM receipts WHERE id = $1`
)

var _ receipt.Repository = (*ReceiptRepository)(nil)

// ReceiptRepository implements receipt.Repository backed by PostgreSQL.
type ReceiptRepository struct {
	pool *pgxpool.Pool
}

// NewReceiptRepository returns a ReceiptRepository that uses the given pool.
func NewReceiptRepository(pool *pgxpool.Pool) *ReceiptRepository {
	return &ReceiptRepository{pool: pool}
}

// Create persists a receipt row, filling in its ID and CreatedAt.
func (r *ReceiptRepository) Create(ctx context.Context, rc *receipt.Receipt) error {
	err := r.pool.QueryRow(ctx, insertReceiptSQL,
		rc.OrderID, rc.FilePath, rc.OriginalFilename,
		rc.FileSize, rc.MimeType, rc.UploadedBy,
	).Scan(&rc.ID, &rc.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "inserting receipt")
	}
	return nil
}

// GetByID returns a single receipt with its uploader name.
func (r *ReceiptRepository) GetByID(ctx context.Context, id int64) (*receipt.Receipt, error) {
	rows, err := r.pool.Query(ctx, getReceiptByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting receipt %d", id)
	}

	rc, err := pgx.CollectExactlyOneRow(rows, scanReceipt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, receipt.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting receipt %d", id)
	}
	return &rc, nil
}

// ListForOrder returns an order's receipts newest first.
func (r *ReceiptRepository) ListForOrder(ctx context.Context, orderID int64) ([]receipt.Receipt, error) {
	rows, err := r.pool.Query(ctx, listOrderReceiptsSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "listing receipts for order %d", orderID)
	}
	return pgx.CollectRows(rows, scanReceipt)
}

// Delete removes a receipt row.
func (r *ReceiptRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteReceiptSQL, id)
	if err != nil {
		return errors.Wrapf(err, "deleting receipt %d", id)
	}
	if tag.RowsAffected() == 0 {
		return receipt.ErrNotFound
	}
	return nil
}

func scanReceipt(row pgx.CollectableRow) (receipt.Receipt, error) {
	var rc receipt.Receipt
	err := row.Scan(
		&rc.ID, &rc.OrderID, &rc.FilePath, &rc.OriginalFilename, &rc.FileSize,
		&rc.MimeType, &rc.UploadedBy, &rc.UploadedByName, &rc.CreatedAt,
	)
	return rc, err
}
