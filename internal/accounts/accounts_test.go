package accounts

import (
	"context"
	"strings"
	"testing"
	"time"

	"securefiles/server/internal/delivery"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
	"securefiles/server/internal/session"
	"securefiles/server/internal/store"
	"securefiles/server/internal/store/memory"
	"securefiles/server/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMailer struct {
	err  error
	sent []delivery.Message
}

func (m *stubMailer) Deliver(_ context.Context, msg delivery.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func newService(t *testing.T) (*Service, *memory.Store, *stubMailer) {
	t.Helper()
	s := memory.NewStore()
	signer, err := session.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	mailer := &stubMailer{}
	return NewService(s, signer, mailer, "https://files.example.com", logging.Discard()), s, mailer
}

func TestRegister(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, " Ops@Example.com", "ops", model.RoleOperations)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", u.Email)
	assert.True(t, u.Active)
	assert.True(t, u.CanLogin())

	_, err = svc.Register(ctx, "ops@example.com", "dup", model.RoleClient)
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.Register(ctx, "not-an-email", "x", model.RoleClient)
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Register(ctx, "x@example.com", "x", model.RoleUnassigned)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestSignupAndVerify(t *testing.T) {
	svc, s, mailer := newService(t)
	ctx := context.Background()

	link, err := svc.Signup(ctx, "new@x.com", "newbie")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://files.example.com/api/verify-email/"))
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].PlainBody, link)

	u, err := s.GetUserByEmail(ctx, "new@x.com")
	require.NoError(t, err)
	assert.False(t, u.Active)
	assert.Equal(t, model.RoleClient, u.Role)

	// inactive users cannot get login tokens yet
	logins := token.NewLoginEngine(s, logging.Discard())
	_, err = logins.CreateToken(ctx, *u, model.RequestContext{})
	assert.ErrorIs(t, err, token.ErrIneligible)

	signed := strings.TrimSuffix(strings.TrimPrefix(link, "https://files.example.com/api/verify-email/"), "/")
	verified, err := svc.VerifyEmail(ctx, signed)
	require.NoError(t, err)
	assert.True(t, verified.Active)
	assert.True(t, verified.EmailVerified)

	_, err = logins.CreateToken(ctx, verified, model.RequestContext{})
	assert.NoError(t, err)
}

func TestSignup_DeliveryFailureStillReturnsLink(t *testing.T) {
	svc, _, mailer := newService(t)
	mailer.err = delivery.ErrDeliveryFailed

	link, err := svc.Signup(context.Background(), "new@x.com", "")
	assert.ErrorIs(t, err, delivery.ErrDeliveryFailed)
	assert.NotEmpty(t, link)
}

func TestVerifyEmail_BadToken(t *testing.T) {
	svc, _, _ := newService(t)

	_, err := svc.VerifyEmail(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidLink)
}

func TestVerifyEmail_LinkCannotReactivate(t *testing.T) {
	svc, s, _ := newService(t)
	ctx := context.Background()

	link, err := svc.Signup(ctx, "new@x.com", "newbie")
	require.NoError(t, err)
	signed := strings.TrimSuffix(strings.TrimPrefix(link, "https://files.example.com/api/verify-email/"), "/")

	u, err := svc.VerifyEmail(ctx, signed)
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, u.ID, false)
	require.NoError(t, err)

	_, err = svc.VerifyEmail(ctx, signed)
	assert.ErrorIs(t, err, ErrInvalidLink)

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestVerifyEmail_UserGone(t *testing.T) {
	svc, _, _ := newService(t)

	signed, err := svc.signer.SignEmail("nobody@x.com")
	require.NoError(t, err)
	_, err = svc.VerifyEmail(context.Background(), signed)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetActive(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "c@x.com", "c", model.RoleClient)
	require.NoError(t, err)

	off, err := svc.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active)

	on, err := svc.SetActive(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, on.Active)

	_, err = svc.SetActive(ctx, "missing", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
