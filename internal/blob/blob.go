// Package blob stores uploaded file contents under opaque keys.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob_not_found")

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// NewKey returns a fresh date-partitioned key that keeps the file extension.
func NewKey(name string) string {
	d := time.Now().UTC()
	return fmt.Sprintf("uploads/%d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.NewString(), path.Ext(name))
}
