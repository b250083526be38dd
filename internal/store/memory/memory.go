package memory

import (
	"strings"
	"sync"

	"securefiles/server/internal/model"

	"github.com/google/uuid"
)

// Store keeps everything in maps guarded by one mutex. Every method is a
// single critical section, which gives the token operations their atomicity.
type Store struct {
	mu sync.Mutex

	users  map[string]model.User
	tokens map[string]model.LoginToken
	files  map[string]model.UploadedFile

	// lowered email -> user id
	emails map[string]string
	// download token -> file id
	downloads map[string]string
}

func NewStore() *Store {
	return &Store{
		users:     make(map[string]model.User),
		tokens:    make(map[string]model.LoginToken),
		files:     make(map[string]model.UploadedFile),
		emails:    make(map[string]string),
		downloads: make(map[string]string),
	}
}

type errWithCode string

func (e errWithCode) Error() string { return string(e) }

func newID() string {
	return uuid.NewString()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
