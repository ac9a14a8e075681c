package receipt

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/voltstore/storefront/internal/auth"
	"github.com/voltstore/storefront/internal/domain/order"
)

// Sentinel errors for receipt operations.
var (
	ErrNotFound = errors.New("receipt not found")
	// ErrNotBankTransfer is returned when a receipt is attached to an
	// order that is not paid by bank transfer.
	ErrNotBankTransfer = errors.New("receipts can only be uploaded for bank transfer orders")
	ErrAccessDenied    = errors.New("access denied")
)

// Receipt is a proof-of-payment file attached to a bank-transfer order.
type Receipt struct {
	ID               int64
	OrderID          int64
	FilePath         string
	OriginalFilename string
	FileSize         int64
	MimeType         string
	UploadedBy       int64
	UploadedByName   string
	CreatedAt        time.Time
}

// StoredFile describes an already-persisted upload. The upload
// collaborator produces it; this package only records the reference and
// never interprets file contents.
type StoredFile struct {
	Path         string
	OriginalName string
	Size         int64
	ContentType  string
}

// Repository persists receipt metadata rows.
type Repository interface {
	Create(ctx context.Context, r *Receipt) error
	GetByID(ctx context.Context, id int64) (*Receipt, error)
	ListForOrder(ctx context.Context, orderID int64) ([]Receipt, error)
	Delete(ctx context.Context, id int64) error
}

// FileRemover deletes a stored file. Removal failures are logged by the
// service, never escalated.
type FileRemover interface {
	Remove(path string) error
}

// Service implements receipt attachment on top of the order store and the
// upload collaborator.
type Service struct {
	receipts Repository
	orders   order.Repository
	files    FileRemover
	logErr   func(msg string, err error)
}

// NewService creates a receipt Service. logErr receives best-effort
// failures (file removal); pass nil to discard them.
func NewService(receipts Repository, orders order.Repository, files FileRemover, logErr func(string, error)) *Service {
	if logErr == nil {
		logErr = func(string, error) {}
	}
	return &Service{
		receipts: receipts,
		orders:   orders,
		files:    files,
		logErr:   logErr,
	}
}

// Attach records an uploaded proof-of-payment file against an order. The
// order must exist and be paid by bank transfer; the uploader must be the
// owning user or staff.
func (s *Service) Attach(ctx context.Context, p auth.Principal, orderID int64, f StoredFile) (*Receipt, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != p.UserID && !p.IsStaff() {
		return nil, ErrAccessDenied
	}
	if o.PaymentMethod != order.PaymentBankTransfer {
		return nil, ErrNotBankTransfer
	}

	r := &Receipt{
		OrderID:          orderID,
		FilePath:         f.Path,
		OriginalFilename: f.OriginalName,
		FileSize:         f.Size,
		MimeType:         f.ContentType,
		UploadedBy:       p.UserID,
	}
	if err := s.receipts.Create(ctx, r); err != nil {
		return nil, errors.Wrap(err, "create receipt")
	}
	return r, nil
}

// ListForOrder returns an order's receipts, newest first. Access follows
// the same owner-or-staff rule as reading the order itself.
func (s *Service) ListForOrder(ctx context.Context, p auth.Principal, orderID int64) ([]Receipt, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != p.UserID && !p.IsStaff() {
		return nil, ErrAccessDenied
	}
	return s.receipts.ListForOrder(ctx, orderID)
}

// Delete removes a receipt: the stored file best-effort, then the
// metadata row.
func (s *Service) Delete(ctx context.Context, id int64) error {
	r, err := s.receipts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.files.Remove(r.FilePath); err != nil {
		s.logErr("remove receipt file", err)
	}

	return s.receipts.Delete(ctx, id)
}
