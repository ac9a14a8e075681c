package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/voltstore/storefront/internal/domain/order"
	"github.com/voltstore/storefront/internal/domain/product"
	"github.com/voltstore/storefront/internal/domain/receipt"
	"github.com/voltstore/storefront/internal/upload"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// respondError maps domain errors onto the HTTP error envelope. Anything
// unrecognized becomes an opaque 500.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		insufficientStock *order.InsufficientStockError
		productNotFound   *order.ProductNotFoundError
		invalidQuantity   *order.InvalidQuantityError
		invalidTransition *order.InvalidTransitionError
	)
	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrMissingFields),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrInvalidPaymentMethod),
		errors.Is(err, receipt.ErrNotBankTransfer),
		errors.Is(err, upload.ErrTooLarge),
		errors.As(err, &insufficientStock),
		errors.As(err, &productNotFound),
		errors.As(err, &invalidQuantity),
		errors.As(err, &invalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, order.ErrAccessDenied),
		errors.Is(err, receipt.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied")

	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, receipt.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	default:
		s.lg.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
