package model

import "time"

// LoginToken is a single-use magic login credential bound to one user.
type LoginToken struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
	LoginIP   string    `json:"login_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Valid reports whether the token can still be consumed at now.
// A token is invalid from the instant now reaches ExpiresAt.
func (t LoginToken) Valid(now time.Time) bool {
	return !t.Used && now.Before(t.ExpiresAt)
}

// RequestContext is the audit data captured when a link is requested.
type RequestContext struct {
	IP        string
	UserAgent string
}

type UploadedFile struct {
	ID          string    `json:"id"`
	UploaderID  string    `json:"uploader_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	BlobKey     string    `json:"-"`
	UploadedAt  time.Time `json:"uploaded_at"`

	// DownloadToken never expires and is never rotated.
	DownloadToken string `json:"-"`
}
