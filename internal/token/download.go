package token

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
)

// DownloadEngine maps permanent download tokens to files. Tokens never
// expire and are never rotated.
type DownloadEngine struct {
	files store.FileStore
}

func NewDownloadEngine(files store.FileStore) *DownloadEngine {
	return &DownloadEngine{files: files}
}

// IssueForFile gives f a download token unless it already has one.
func (e *DownloadEngine) IssueForFile(f model.UploadedFile) (model.UploadedFile, error) {
	if f.DownloadToken != "" {
		return f, nil
	}
	id, err := NewIdentifier()
	if err != nil {
		return model.UploadedFile{}, err
	}
	f.DownloadToken = id
	return f, nil
}

// Resolve returns the file whose token is exactly identifier.
func (e *DownloadEngine) Resolve(ctx context.Context, identifier string) (model.UploadedFile, error) {
	if strings.TrimSpace(identifier) == "" {
		return model.UploadedFile{}, ErrNotFound
	}
	f, err := e.files.GetFileByDownloadToken(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return model.UploadedFile{}, ErrNotFound
	}
	if err != nil {
		return model.UploadedFile{}, fmt.Errorf("resolve download token: %w", err)
	}
	return *f, nil
}
