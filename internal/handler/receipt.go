package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voltstore/storefront/internal/domain/receipt"
)

type receiptView struct {
	ID               int64     `json:"id"`
	OrderID          int64     `json:"order_id"`
	FilePath         string    `json:"file_path"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	FileSize         int64     `json:"file_size,omitempty"`
	MimeType         string    `json:"mime_type,omitempty"`
	UploadedByName   string    `json:"uploaded_by_name,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toReceiptView(rc *receipt.Receipt) receiptView {
	return receiptView{
		ID:               rc.ID,
		OrderID:          rc.OrderID,
		FilePath:         rc.FilePath,
		OriginalFilename: rc.OriginalFilename,
		FileSize:         rc.FileSize,
		MimeType:         rc.MimeType,
		UploadedByName:   rc.UploadedByName,
		CreatedAt:        rc.CreatedAt,
	}
}

func (s *Server) uploadReceipt(w http.ResponseWriter, r *http.Request) {
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

	file, header, err := r.FormFile("receipt")
	if err != nil {
		writeError(w, http.StatusBadRequest, "receipt file is required")
		return
	}
	defer file.Close()

	stored, err := s.uploads.SaveReceipt(file, header)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rc, err := s.receipts.Attach(r.Context(), p, id, receipt.StoredFile{
		Path:         stored.Path,
		OriginalName: stored.OriginalName,
		Size:         stored.Size,
		ContentType:  stored.ContentType,
	})
	if err != nil {
		// The order rejected the file; drop the orphaned upload.
		if rmErr := s.uploads.Remove(stored.Path); rmErr != nil {
			s.lg.Warn("removing orphaned receipt upload", zap.Error(rmErr))
		}
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptView(rc))
}

func (s *Server) listReceipts(w http.ResponseWriter, r *http.Request) {
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

	receipts, err := s.receipts.ListForOrder(r.Context(), p, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	views := make([]receiptView, len(receipts))
	for i := range receipts {
		views[i] = toReceiptView(&receipts[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": views})
}

func (s *Server) deleteReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "receipt not found")
		return
	}

	if err := s.receipts.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
