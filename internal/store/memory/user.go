package memory

import (
	"context"
	"strings"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
)

func (s *Store) CreateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(u.Email)
	if email == "" {
		return model.User{}, errWithCode("email_required")
	}
	if _, ok := s.emails[email]; ok {
		return model.User{}, store.ErrConflict
	}
	if u.Role == "" {
		u.Role = model.RoleUnassigned
	}

	now := time.Now().UTC()
	u.ID = newID()
	u.Email = email
	u.Username = strings.TrimSpace(u.Username)
	u.CreatedAt = now
	u.UpdatedAt = now
	s.users[u.ID] = u
	s.emails[email] = u.ID
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[normalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) UpdateUser(_ context.Context, u model.User) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return model.User{}, store.ErrNotFound
	}

	email := normalizeEmail(u.Email)
	if email == "" {
		return model.User{}, errWithCode("email_required")
	}
	if email != existing.Email {
		if _, taken := s.emails[email]; taken {
			return model.User{}, store.ErrConflict
		}
		delete(s.emails, existing.Email)
		s.emails[email] = u.ID
	}

	existing.Email = email
	existing.Username = strings.TrimSpace(u.Username)
	existing.Active = u.Active
	existing.Role = u.Role
	existing.EmailVerified = u.EmailVerified
	existing.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = existing
	return existing, nil
}
