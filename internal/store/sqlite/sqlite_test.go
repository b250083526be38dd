package sqlite

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"
	"securefiles/server/internal/store/storetest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return openTemp(t) })
}

func TestOpen_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "securefiles.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	u, err := s.CreateUser(ctx, model.User{Email: "Keep@X.com", Active: true, Role: model.RoleClient})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetUserByEmail(ctx, "keep@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, model.RoleClient, got.Role)
}

func TestReissueLoginToken_UnknownUser(t *testing.T) {
	s := openTemp(t)

	_, err := s.ReissueLoginToken(context.Background(), model.LoginToken{
		Token:     "t",
		UserID:    "missing",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateFile_UnknownUploader(t *testing.T) {
	s := openTemp(t)

	_, err := s.CreateFile(context.Background(), model.UploadedFile{
		UploaderID:    "missing",
		Name:          "a.pdf",
		DownloadToken: "dl",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

var loginTokenCols = []string{"token", "user_id", "created_at", "expires_at", "used", "login_ip", "user_agent"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestConsumeLoginToken_ConditionalUpdate(t *testing.T) {
	s, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()
	created := now.Add(-time.Minute)
	expires := now.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE login_tokens SET used = 1 WHERE token = ? AND used = 0 AND expires_at > ?`)).
		WithArgs("tok", now.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT token, user_id`)).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(loginTokenCols).
			AddRow("tok", "u1", created.UnixNano(), expires.UnixNano(), true, "10.0.0.1", "curl"))
	mock.ExpectCommit()

	got, err := s.ConsumeLoginToken(context.Background(), "tok", now)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.Used)
	assert.True(t, got.ExpiresAt.Equal(expires))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeLoginToken_LostRaceRollsBack(t *testing.T) {
	s, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE login_tokens SET used = 1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT token, user_id`)).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(loginTokenCols).
			AddRow("tok", "u1", now.UnixNano(), now.Add(time.Hour).UnixNano(), true, "", ""))
	mock.ExpectRollback()

	_, err := s.ConsumeLoginToken(context.Background(), "tok", now)
	assert.ErrorIs(t, err, store.ErrTokenUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeLoginToken_ExpiredBeatsUsed(t *testing.T) {
	s, mock := newMock(t)
	now := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE login_tokens SET used = 1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT token, user_id`)).
		WillReturnRows(sqlmock.NewRows(loginTokenCols).
			AddRow("tok", "u1", now.Add(-2*time.Hour).UnixNano(), now.Add(-time.Hour).UnixNano(), true, "", ""))
	mock.ExpectRollback()

	_, err := s.ConsumeLoginToken(context.Background(), "tok", now)
	assert.ErrorIs(t, err, store.ErrTokenExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeLoginTokens_Query(t *testing.T) {
	s, mock := newMock(t)
	expiredBefore := time.Unix(1_700_000_000, 0).UTC()
	createdBefore := expiredBefore.Add(-7 * 24 * time.Hour)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM login_tokens WHERE expires_at < ? OR created_at < ?`)).
		WithArgs(expiredBefore.UnixNano(), createdBefore.UnixNano()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.PurgeLoginTokens(context.Background(), expiredBefore, createdBefore)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
