// Package files handles uploads by operations users and token-gated
// downloads by clients.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"securefiles/server/internal/blob"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
	"securefiles/server/internal/token"
)

var (
	ErrValidationFailed = errors.New("validation_failed")
	ErrNotFound         = errors.New("file_not_found")
)

// allowedTypes maps each accepted extension to the only content type
// accepted with it.
var allowedTypes = map[string]string{
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// ValidateUpload accepts only .pptx, .docx and .xlsx files declared with
// the matching OOXML content type.
func ValidateUpload(name, contentType string) error {
	ext := strings.ToLower(path.Ext(name))
	want, ok := allowedTypes[ext]
	if !ok {
		return fmt.Errorf("%w: only .pptx, .docx, .xlsx files allowed", ErrValidationFailed)
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil || mt != want {
		return fmt.Errorf("%w: invalid file MIME type", ErrValidationFailed)
	}
	return nil
}

type Service struct {
	files     store.FileStore
	downloads *token.DownloadEngine
	blobs     blob.Store
	baseURL   string
	log       logging.Logger
}

func NewService(files store.FileStore, downloads *token.DownloadEngine, blobs blob.Store, baseURL string, log logging.Logger) *Service {
	return &Service{
		files:     files,
		downloads: downloads,
		blobs:     blobs,
		baseURL:   strings.TrimRight(baseURL, "/"),
		log:       log.With("component", "files"),
	}
}

// cleanName drops any directory part a browser may send.
func cleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	return path.Base(strings.TrimSpace(name))
}

// Upload stores body and records the file with a fresh download token.
// Only operations users may upload.
func (s *Service) Upload(ctx context.Context, uploader model.User, name, contentType string, body io.Reader, size int64) (model.UploadedFile, error) {
	if uploader.Role != model.RoleOperations || !uploader.Active {
		return model.UploadedFile{}, token.ErrIneligible
	}
	name = cleanName(name)
	if err := ValidateUpload(name, contentType); err != nil {
		return model.UploadedFile{}, err
	}

	f, err := s.downloads.IssueForFile(model.UploadedFile{
		UploaderID:  uploader.ID,
		Name:        name,
		ContentType: contentType,
		Size:        size,
		BlobKey:     blob.NewKey(name),
	})
	if err != nil {
		return model.UploadedFile{}, err
	}

	if err := s.blobs.Put(ctx, f.BlobKey, body, size, contentType); err != nil {
		return model.UploadedFile{}, fmt.Errorf("store blob: %w", err)
	}
	saved, err := s.files.CreateFile(ctx, f)
	if err != nil {
		if derr := s.blobs.Delete(context.WithoutCancel(ctx), f.BlobKey); derr != nil {
			s.log.Error(ctx, "orphaned blob after failed upload", "blob_key", f.BlobKey, "error", derr)
		}
		return model.UploadedFile{}, fmt.Errorf("record file: %w", err)
	}

	s.log.Info(ctx, "file uploaded", "file_id", saved.ID, "uploader_id", uploader.ID, "size", size)
	return saved, nil
}

func (s *Service) List(ctx context.Context) ([]model.UploadedFile, error) {
	out, err := s.files.ListFiles(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.UploadedFile{}
	}
	return out, nil
}

// DownloadURL is the absolute secure-download URL for a token.
func (s *Service) DownloadURL(tok string) string {
	return s.baseURL + "/secure-download/" + tok + "/"
}

// DownloadLink returns the permanent download URL of a file.
func (s *Service) DownloadLink(ctx context.Context, fileID string) (string, error) {
	f, err := s.files.GetFile(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return s.DownloadURL(f.DownloadToken), nil
}

// Open resolves a download token and opens the blob. The caller closes
// the reader.
func (s *Service) Open(ctx context.Context, downloadToken string) (model.UploadedFile, io.ReadCloser, error) {
	f, err := s.downloads.Resolve(ctx, downloadToken)
	if err != nil {
		return model.UploadedFile{}, nil, err
	}
	rc, err := s.blobs.Get(ctx, f.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		s.log.Error(ctx, "blob missing for file", "file_id", f.ID)
		return model.UploadedFile{}, nil, ErrNotFound
	}
	if err != nil {
		return model.UploadedFile{}, nil, err
	}
	return f, rc, nil
}
