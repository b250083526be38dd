package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
)

func (s *Store) CreateFile(_ context.Context, f model.UploadedFile) (model.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(f.DownloadToken) == "" {
		return model.UploadedFile{}, errWithCode("download_token_required")
	}
	if _, ok := s.users[f.UploaderID]; !ok {
		return model.UploadedFile{}, store.ErrNotFound
	}
	if _, ok := s.downloads[f.DownloadToken]; ok {
		return model.UploadedFile{}, store.ErrConflict
	}

	f.ID = newID()
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	s.files[f.ID] = f
	s.downloads[f.DownloadToken] = f.ID
	return f, nil
}

func (s *Store) GetFile(_ context.Context, id string) (*model.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &f, nil
}

func (s *Store) GetFileByDownloadToken(_ context.Context, token string) (*model.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.downloads[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	f := s.files[id]
	return &f, nil
}

func (s *Store) ListFiles(_ context.Context) ([]model.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.UploadedFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UploadedAt.After(out[j].UploadedAt)
	})
	return out, nil
}
