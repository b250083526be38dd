// Package session turns magic-link requests into delivered links and
// consumed links into signed sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"securefiles/server/internal/delivery"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
	"securefiles/server/internal/token"
)

// GenericLinkMessage is shown after every link request, whether or not the
// email belongs to anyone.
const GenericLinkMessage = "If that email is registered, a verification login link has been sent."

// GenericInvalidLinkMessage is the only failure text shown for a bad link.
const GenericInvalidLinkMessage = "This login link is invalid, expired or already used. Please request a new one."

var ErrEmailRequired = errors.New("email_required")

type State string

const (
	StateRequested   State = "requested"
	StateLinkSent    State = "link_sent"
	StateConsumed    State = "consumed"
	StateExpired     State = "expired"
	StateAlreadyUsed State = "already_used"
	StateNotFound    State = "not_found"
)

// StateOf maps a Consume error to its terminal state.
func StateOf(err error) State {
	switch {
	case err == nil:
		return StateConsumed
	case errors.Is(err, token.ErrExpired):
		return StateExpired
	case errors.Is(err, token.ErrAlreadyUsed):
		return StateAlreadyUsed
	default:
		return StateNotFound
	}
}

// Landing returns the route a freshly logged-in user is sent to.
func Landing(r model.Role) string {
	switch r {
	case model.RoleOperations:
		return "/dashboard-ops/"
	case model.RoleClient:
		return "/dashboard-client/"
	default:
		return "/"
	}
}

type Mailer interface {
	Deliver(ctx context.Context, msg delivery.Message) error
}

type LinkResult struct {
	State State
}

type Session struct {
	User      model.User
	Token     string
	ExpiresAt time.Time
	Landing   string
}

type Binder struct {
	users   store.UserStore
	logins  *token.LoginEngine
	mailer  Mailer
	signer  *Signer
	baseURL string
	log     logging.Logger
}

func NewBinder(users store.UserStore, logins *token.LoginEngine, mailer Mailer, signer *Signer, baseURL string, log logging.Logger) *Binder {
	return &Binder{
		users:   users,
		logins:  logins,
		mailer:  mailer,
		signer:  signer,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With("component", "binder"),
	}
}

// MagicLink is the absolute URL for a login token.
func (b *Binder) MagicLink(tok string) string {
	return b.baseURL + "/magic-login/" + tok + "/"
}

// RequestLink emails a magic link to the active user owning email. class
// restricts the lookup to one role; RoleUnassigned accepts either.
// No eligible user is not an error: the result stays StateRequested.
func (b *Binder) RequestLink(ctx context.Context, email string, class model.Role, rc model.RequestContext) (LinkResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return LinkResult{State: StateRequested}, ErrEmailRequired
	}

	u, err := b.users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		b.log.Info(ctx, "magic link requested for unknown email")
		return LinkResult{State: StateRequested}, nil
	}
	if err != nil {
		return LinkResult{State: StateRequested}, fmt.Errorf("lookup user: %w", err)
	}
	if !u.CanLogin() || (class != model.RoleUnassigned && u.Role != class) {
		b.log.Info(ctx, "magic link requested for ineligible user", "user_id", u.ID, "class", string(class))
		return LinkResult{State: StateRequested}, nil
	}

	if err := b.SendLink(ctx, *u, rc); err != nil {
		return LinkResult{State: StateRequested}, err
	}
	return LinkResult{State: StateLinkSent}, nil
}

// IssueLink creates a token for u and returns its link without sending it.
func (b *Binder) IssueLink(ctx context.Context, u model.User, rc model.RequestContext) (string, model.LoginToken, error) {
	t, err := b.logins.CreateToken(ctx, u, rc)
	if err != nil {
		return "", model.LoginToken{}, err
	}
	return b.MagicLink(t.Token), t, nil
}

// SendLink issues a token for u and delivers it. The token is committed
// before delivery starts.
func (b *Binder) SendLink(ctx context.Context, u model.User, rc model.RequestContext) error {
	link, t, err := b.IssueLink(ctx, u, rc)
	if err != nil {
		return err
	}

	name := u.Username
	if name == "" {
		name = u.Email
	}
	msg, err := delivery.MagicLinkMessage(u.Email, delivery.MagicLinkData{
		Name:        name,
		Link:        link,
		ExpiresIn:   t.ExpiresAt.Sub(t.CreatedAt),
		RequestedAt: t.CreatedAt.Format("January 2, 2006 at 03:04 PM MST"),
		IP:          rc.IP,
		UserAgent:   rc.UserAgent,
	})
	if err != nil {
		return err
	}
	if err := b.mailer.Deliver(ctx, msg); err != nil {
		return err
	}
	b.log.Info(ctx, "magic link sent", "user_id", u.ID)
	return nil
}

// Consume redeems a magic link and opens a session for its user.
func (b *Binder) Consume(ctx context.Context, identifier string) (Session, error) {
	u, err := b.logins.ValidateAndConsume(ctx, identifier)
	if err != nil {
		return Session{}, err
	}

	tok, exp, err := b.signer.IssueSession(u)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: tok, ExpiresAt: exp, Landing: Landing(u.Role)}, nil
}
