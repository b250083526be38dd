package store

import (
	"context"
	"errors"
	"time"

	"securefiles/server/internal/model"
)

var (
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrTokenUsed    = errors.New("token_used")
	ErrTokenExpired = errors.New("token_expired")
)

type UserStore interface {
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, u model.User) (model.User, error)
}

type LoginTokenStore interface {
	// ReissueLoginToken marks every unused token of t.UserID as used and
	// inserts t, as one atomic step per user. It returns how many tokens
	// were invalidated.
	ReissueLoginToken(ctx context.Context, t model.LoginToken) (int, error)

	// ConsumeLoginToken flips used to true if the token is unused and
	// now < expires_at. At most one concurrent caller succeeds. Failures are
	// ErrNotFound, ErrTokenExpired (checked first) or ErrTokenUsed.
	ConsumeLoginToken(ctx context.Context, token string, now time.Time) (*model.LoginToken, error)

	GetLoginToken(ctx context.Context, token string) (*model.LoginToken, error)

	// PurgeLoginTokens deletes tokens with expires_at < expiredBefore or
	// created_at < createdBefore, used or not.
	PurgeLoginTokens(ctx context.Context, expiredBefore, createdBefore time.Time) (int, error)
}

type FileStore interface {
	CreateFile(ctx context.Context, f model.UploadedFile) (model.UploadedFile, error)
	GetFile(ctx context.Context, id string) (*model.UploadedFile, error)
	GetFileByDownloadToken(ctx context.Context, token string) (*model.UploadedFile, error)
	ListFiles(ctx context.Context) ([]model.UploadedFile, error)
}

type Store interface {
	UserStore
	LoginTokenStore
	FileStore
}

// ClassifyToken explains why t cannot be consumed at now.
// Backends call it after a failed conditional update.
func ClassifyToken(t model.LoginToken, now time.Time) error {
	if !now.Before(t.ExpiresAt) {
		return ErrTokenExpired
	}
	if t.Used {
		return ErrTokenUsed
	}
	return nil
}
