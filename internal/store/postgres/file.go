package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"securefiles/server/internal/model"

	"github.com/jackc/pgx/v5"
)

const fileColumns = `id::text, uploader_id::text, name, content_type, size, blob_key, uploaded_at, download_token`

func scanFile(row pgx.Row) (model.UploadedFile, error) {
	var f model.UploadedFile
	err := row.Scan(&f.ID, &f.UploaderID, &f.Name, &f.ContentType, &f.Size, &f.BlobKey, &f.UploadedAt, &f.DownloadToken)
	return f, err
}

func (s *Store) CreateFile(ctx context.Context, f model.UploadedFile) (model.UploadedFile, error) {
	if strings.TrimSpace(f.DownloadToken) == "" {
		return model.UploadedFile{}, errors.New("download_token_required")
	}
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}

	out, err := scanFile(s.pool.QueryRow(ctx, `
		insert into public.uploaded_files (uploader_id, name, content_type, size, blob_key, uploaded_at, download_token)
		values ($1::uuid, $2, $3, $4, $5, $6, $7)
		returning `+fileColumns,
		f.UploaderID, f.Name, f.ContentType, f.Size, f.BlobKey, f.UploadedAt, f.DownloadToken))
	if err != nil {
		return model.UploadedFile{}, mapPgErr(err)
	}
	return out, nil
}

func (s *Store) GetFile(ctx context.Context, id string) (*model.UploadedFile, error) {
	f, err := scanFile(s.pool.QueryRow(ctx, `
		select `+fileColumns+`
		from public.uploaded_files
		where id = $1::uuid
	`, id))
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &f, nil
}

func (s *Store) GetFileByDownloadToken(ctx context.Context, token string) (*model.UploadedFile, error) {
	f, err := scanFile(s.pool.QueryRow(ctx, `
		select `+fileColumns+`
		from public.uploaded_files
		where download_token = $1
	`, token))
	if err != nil {
		return nil, mapPgErr(err)
	}
	return &f, nil
}

func (s *Store) ListFiles(ctx context.Context) ([]model.UploadedFile, error) {
	rows, err := s.pool.Query(ctx, `
		select `+fileColumns+`
		from public.uploaded_files
		order by uploaded_at desc
	`)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []model.UploadedFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, mapPgErr(err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
