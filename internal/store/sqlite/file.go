package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"securefiles/server/internal/model"
)

const fileColumns = `id, uploader_id, name, content_type, size, blob_key, uploaded_at, download_token`

func scanFile(row interface{ Scan(...any) error }) (model.UploadedFile, error) {
	var (
		f        model.UploadedFile
		uploaded int64
	)
	if err := row.Scan(&f.ID, &f.UploaderID, &f.Name, &f.ContentType, &f.Size, &f.BlobKey, &uploaded, &f.DownloadToken); err != nil {
		return model.UploadedFile{}, err
	}
	f.UploadedAt = fromNanos(uploaded)
	return f, nil
}

func (s *Store) CreateFile(ctx context.Context, f model.UploadedFile) (model.UploadedFile, error) {
	if strings.TrimSpace(f.DownloadToken) == "" {
		return model.UploadedFile{}, errors.New("download_token_required")
	}
	f.ID = newID()
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploaded_files (`+fileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.UploaderID, f.Name, f.ContentType, f.Size, f.BlobKey, toNanos(f.UploadedAt), f.DownloadToken)
	if err != nil {
		return model.UploadedFile{}, mapErr(err)
	}
	return f, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*model.UploadedFile, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE id = ?`, id))
	if err != nil {
		return nil, mapErr(err)
	}
	return &f, nil
}

func (s *Store) GetFileByDownloadToken(ctx context.Context, token string) (*model.UploadedFile, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE download_token = ?`, token))
	if err != nil {
		return nil, mapErr(err)
	}
	return &f, nil
}

func (s *Store) ListFiles(ctx context.Context) ([]model.UploadedFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM uploaded_files ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []model.UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
