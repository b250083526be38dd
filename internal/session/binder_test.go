package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"securefiles/server/internal/delivery"
	"securefiles/server/internal/logging"
	"securefiles/server/internal/model"
	"securefiles/server/internal/store/memory"
	"securefiles/server/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	err  error
	sent []delivery.Message
}

func (m *recordingMailer) Deliver(_ context.Context, msg delivery.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) last(t *testing.T) delivery.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

type fixture struct {
	store  *memory.Store
	binder *Binder
	mailer *recordingMailer
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), mailer: &recordingMailer{}, now: time.Now().UTC()}
	clock := func() time.Time { return f.now }

	logins := token.NewLoginEngine(f.store, logging.Discard(), token.WithClock(clock))
	signer, err := NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	f.binder = NewBinder(f.store, logins, f.mailer, signer, "https://files.example.com/", logging.Discard())
	return f
}

func (f *fixture) user(t *testing.T, email string, role model.Role, active bool) model.User {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), model.User{Email: email, Username: "name", Active: active, Role: role})
	require.NoError(t, err)
	return u
}

func linkToken(t *testing.T, body string) string {
	t.Helper()
	const prefix = "https://files.example.com/magic-login/"
	i := strings.Index(body, prefix)
	require.GreaterOrEqual(t, i, 0, "no link in %q", body)
	rest := body[i+len(prefix):]
	return rest[:strings.Index(rest, "/")]
}

var rc = model.RequestContext{IP: "198.51.100.1", UserAgent: "test"}

func TestRequestLink_AndConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@x.com", model.RoleClient, true)

	res, err := f.binder.RequestLink(ctx, "A@X.com ", model.RoleUnassigned, rc)
	require.NoError(t, err)
	assert.Equal(t, StateLinkSent, res.State)

	msg := f.mailer.last(t)
	assert.Equal(t, "a@x.com", msg.To)
	tok := linkToken(t, msg.PlainBody)

	sess, err := f.binder.Consume(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.User.ID)
	assert.Equal(t, "/dashboard-client/", sess.Landing)
	assert.NotEmpty(t, sess.Token)

	id, role, err := f.binder.signer.ParseSession(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	assert.Equal(t, model.RoleClient, role)

	_, err = f.binder.Consume(ctx, tok)
	assert.ErrorIs(t, err, token.ErrAlreadyUsed)
	assert.Equal(t, StateAlreadyUsed, StateOf(err))
}

func TestRequestLink_NoEnumeration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "off@x.com", model.RoleClient, false)
	f.user(t, "none@x.com", model.RoleUnassigned, true)
	f.user(t, "ops@x.com", model.RoleOperations, true)

	cases := []struct {
		email string
		class model.Role
	}{
		{"ghost@x.com", model.RoleUnassigned},
		{"off@x.com", model.RoleUnassigned},
		{"none@x.com", model.RoleUnassigned},
		{"ops@x.com", model.RoleClient},
	}
	for _, tc := range cases {
		res, err := f.binder.RequestLink(ctx, tc.email, tc.class, rc)
		require.NoError(t, err, tc.email)
		assert.Equal(t, StateRequested, res.State, tc.email)
	}
	assert.Empty(t, f.mailer.sent)
}

func TestRequestLink_EmptyEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.binder.RequestLink(context.Background(), "  ", model.RoleUnassigned, rc)
	assert.ErrorIs(t, err, ErrEmailRequired)
}

func TestRequestLink_DeliveryFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "a@x.com", model.RoleOperations, true)
	f.mailer.err = delivery.ErrDeliveryFailed

	res, err := f.binder.RequestLink(ctx, "a@x.com", model.RoleOperations, rc)
	assert.ErrorIs(t, err, delivery.ErrDeliveryFailed)
	assert.Equal(t, StateRequested, res.State)
}

func TestRequestLink_ReissueInvalidatesEarlierLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "a@x.com", model.RoleOperations, true)

	_, err := f.binder.RequestLink(ctx, "a@x.com", model.RoleOperations, rc)
	require.NoError(t, err)
	first := linkToken(t, f.mailer.last(t).PlainBody)

	_, err = f.binder.RequestLink(ctx, "a@x.com", model.RoleOperations, rc)
	require.NoError(t, err)
	second := linkToken(t, f.mailer.last(t).PlainBody)

	_, err = f.binder.Consume(ctx, first)
	assert.Equal(t, StateAlreadyUsed, StateOf(err))

	sess, err := f.binder.Consume(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "/dashboard-ops/", sess.Landing)
}

func TestConsume_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, "a@x.com", model.RoleClient, true)

	link, tok, err := f.binder.IssueLink(ctx, u, rc)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/magic-login/"+tok.Token+"/", link)

	f.now = tok.ExpiresAt
	_, err = f.binder.Consume(ctx, tok.Token)
	assert.Equal(t, StateExpired, StateOf(err))
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, StateConsumed, StateOf(nil))
	assert.Equal(t, StateNotFound, StateOf(token.ErrNotFound))
	assert.Equal(t, StateNotFound, StateOf(errors.New("boom")))
	assert.Equal(t, StateExpired, StateOf(token.ErrExpired))
}

func TestLanding(t *testing.T) {
	assert.Equal(t, "/dashboard-ops/", Landing(model.RoleFromFlags(true, true)))
	assert.Equal(t, "/dashboard-client/", Landing(model.RoleClient))
	assert.Equal(t, "/", Landing(model.RoleUnassigned))
}
