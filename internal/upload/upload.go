// Package upload stores incoming multipart files on local disk. It is the
// upload collaborator for receipt attachment: it hands out stored-file
// descriptors and never looks inside the files.
package upload

import (
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// maxReceiptSize caps receipt uploads at 10 MiB, matching the limit the
// admin panel advertises.
const maxReceiptSize = 10 << 20

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("file too large")

// Stored describes a persisted upload.
type Stored struct {
	// Path is the public reference recorded in the database.
	Path         string
	OriginalName string
	Size         int64
	ContentType  string
}

// Store saves files under a base directory.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// SaveReceipt writes an uploaded receipt under <base>/receipts with a
// generated filename, preserving the original extension.
func (s *Store) SaveReceipt(file multipart.File, header *multipart.FileHeader) (*Stored, error) {
	if header.Size > maxReceiptSize {
		return nil, ErrTooLarge
	}

	dir := filepath.Join(s.baseDir, "receipts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create upload dir")
	}

	name := uuid.New().String() + filepath.Ext(header.Filename)
	dst, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, errors.Wrap(err, "create file")
	}
	defer dst.Close()

	n, err := io.Copy(dst, io.LimitReader(file, maxReceiptSize+1))
	if err != nil {
		_ = os.Remove(dst.Name())
		return nil, errors.Wrap(err, "write file")
	}
	if n > maxReceiptSize {
		_ = os.Remove(dst.Name())
		return nil, ErrTooLarge
	}

	return &Stored{
		Path:         "/uploads/receipts/" + name,
		OriginalName: header.Filename,
		Size:         n,
		ContentType:  header.Header.Get("Content-Type"),
	}, nil
}

// Remove deletes a stored file by its public path. Unknown paths are
// rejected rather than resolved outside the base directory.
func (s *Store) Remove(path string) error {
	rel, ok := publicToRelative(path)
	if !ok {
		return errors.Errorf("not an upload path: %s", path)
	}
	return os.Remove(filepath.Join(s.baseDir, rel))
}

func publicToRelative(path string) (string, bool) {
	const prefix = "/uploads/"
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return "", false
	}
	rel := filepath.Clean(path[len(prefix):])
	if rel == ".." || len(rel) >= 3 && rel[:3] == ".."+string(filepath.Separator) {
		return "", false
	}
	return rel, true
}
