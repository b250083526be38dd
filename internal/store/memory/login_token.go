package memory

import (
	"context"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
)

func (s *Store) ReissueLoginToken(_ context.Context, t model.LoginToken) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Token == "" {
		return 0, errWithCode("token_required")
	}
	if _, ok := s.users[t.UserID]; !ok {
		return 0, store.ErrNotFound
	}
	if _, ok := s.tokens[t.Token]; ok {
		return 0, store.ErrConflict
	}

	invalidated := 0
	for k, existing := range s.tokens {
		if existing.UserID == t.UserID && !existing.Used {
			existing.Used = true
			s.tokens[k] = existing
			invalidated++
		}
	}

	t.Used = false
	s.tokens[t.Token] = t
	return invalidated, nil
}

func (s *Store) ConsumeLoginToken(_ context.Context, token string, now time.Time) (*model.LoginToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lt, ok := s.tokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := store.ClassifyToken(lt, now); err != nil {
		return nil, err
	}

	lt.Used = true
	s.tokens[token] = lt
	return &lt, nil
}

func (s *Store) GetLoginToken(_ context.Context, token string) (*model.LoginToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lt, ok := s.tokens[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &lt, nil
}

func (s *Store) PurgeLoginTokens(_ context.Context, expiredBefore, createdBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, lt := range s.tokens {
		if lt.ExpiresAt.Before(expiredBefore) || lt.CreatedAt.Before(createdBefore) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}
