// Package accounts creates users and manages their activation.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"securefiles/server/internal/delivery"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
	"securefiles/server/internal/session"
	"securefiles/server/internal/store"
)

var (
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidRole  = errors.New("invalid_role")
	ErrInvalidLink  = errors.New("invalid_verification_link")
)

type Service struct {
	users   store.UserStore
	signer  *session.Signer
	mailer  session.Mailer
	baseURL string
	log     logging.Logger
}

func NewService(users store.UserStore, signer *session.Signer, mailer session.Mailer, baseURL string, log logging.Logger) *Service {
	return &Service{
		users:   users,
		signer:  signer,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With("component", "accounts"),
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register creates an active operations or client user.
func (s *Service) Register(ctx context.Context, email, username string, role model.Role) (model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return model.User{}, err
	}
	if role != model.RoleOperations && role != model.RoleClient {
		return model.User{}, ErrInvalidRole
	}

	u, err := s.users.CreateUser(ctx, model.User{
		Email:    email,
		Username: username,
		Active:   true,
		Role:     role,
	})
	if err != nil {
		return model.User{}, err
	}
	s.log.Info(ctx, "user registered", "user_id", u.ID, "role", string(role))
	return u, nil
}

// VerificationLink is the absolute URL for a signed email token.
func (s *Service) VerificationLink(signed string) string {
	return s.baseURL + "/api/verify-email/" + signed + "/"
}

// Signup creates an inactive client and emails a verification link. The
// link is returned even when delivery fails; the error then wraps
// delivery.ErrDeliveryFailed.
func (s *Service) Signup(ctx context.Context, email, username string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	u, err := s.users.CreateUser(ctx, model.User{
		Email:    email,
		Username: username,
		Active:   false,
		Role:     model.RoleClient,
	})
	if err != nil {
		return "", err
	}

	signed, err := s.signer.SignEmail(u.Email)
	if err != nil {
		return "", err
	}
	link := s.VerificationLink(signed)

	name := u.Username
	if name == "" {
		name = u.Email
	}
	msg, err := delivery.VerifyEmailMessage(u.Email, delivery.VerifyEmailData{
		Name:      name,
		Link:      link,
		ExpiresIn: session.EmailVerifyMaxAge,
	})
	if err != nil {
		return "", err
	}
	if err := s.mailer.Deliver(ctx, msg); err != nil {
		return link, err
	}

	s.log.Info(ctx, "signup verification sent", "user_id", u.ID)
	return link, nil
}

// VerifyEmail activates the user bound by a verification token. An already
// verified user gets ErrInvalidLink.
func (s *Service) VerifyEmail(ctx context.Context, signed string) (model.User, error) {
	email, err := s.signer.VerifyEmail(signed)
	if err != nil {
		return model.User{}, ErrInvalidLink
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return model.User{}, err
	}
	// A link activates once; later activation changes belong to SetActive.
	if u.EmailVerified {
		return model.User{}, ErrInvalidLink
	}
	u.Active = true
	u.EmailVerified = true

	out, err := s.users.UpdateUser(ctx, *u)
	if err != nil {
		return model.User{}, fmt.Errorf("activate user: %w", err)
	}
	s.log.Info(ctx, "email verified", "user_id", out.ID)
	return out, nil
}

// SetActive deactivates or reactivates a user. Outstanding login tokens of
// a deactivated user stop working at consumption time.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) (model.User, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	u.Active = active

	out, err := s.users.UpdateUser(ctx, *u)
	if err != nil {
		return model.User{}, err
	}
	s.log.Info(ctx, "user activation changed", "user_id", out.ID, "active", active)
	return out, nil
}
