package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wp-fleet-manager/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedWebsite(t *testing.T, s *Store) (*models.User, *models.Client, *models.Website) {
	t.Helper()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "owner@example.com", "hunter22")
	require.NoError(t, err)
	c := &models.Client{UserID: u.ID, Name: "Acme", Email: "ops@acme.test"}
	require.NoError(t, s.CreateClient(ctx, c))
	w := &models.Website{ClientID: c.ID, Name: "Acme blog", URL: "https://blog.acme.test", APIKey: "secret"}
	require.NoError(t, s.CreateWebsite(ctx, u.ID, w))
	return u, c, w
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	var n int
	require.NoError(t, s.DB().Get(&n, `SELECT COUNT(*) FROM schema_migrations`))
	assert.Equal(t, len(migrations), n)
}

func TestUsers_Authenticate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, " Admin@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", u.Email)

	_, err = s.CreateUser(ctx, "admin@example.com", "other")
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	got, err := s.AuthenticateUser(ctx, "ADMIN@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.AuthenticateUser(ctx, "admin@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.AuthenticateUser(ctx, "nobody@example.com", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestWebsites_OwnershipAndStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, c, w := seedWebsite(t, s)

	got, err := s.GetWebsite(ctx, u.ID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", got.APIKey)
	assert.Equal(t, models.ConnectionUnknown, got.ConnectionStatus)
	assert.Nil(t, got.LastCheckedAt)

	_, err = s.GetWebsite(ctx, u.ID+1, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	other, err := s.CreateUser(ctx, "other@example.com", "pw")
	require.NoError(t, err)
	err = s.CreateWebsite(ctx, other.ID, &models.Website{ClientID: c.ID, URL: "https://x.test", APIKey: "k"})
	assert.ErrorIs(t, err, ErrNotFound)

	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateConnectionStatus(ctx, w.ID, models.ConnectionError, checked))
	got, err = s.GetWebsite(ctx, u.ID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionError, got.ConnectionStatus)
	require.NotNil(t, got.LastCheckedAt)
	assert.True(t, checked.Equal(*got.LastCheckedAt))

	counts, err := s.CountByConnectionStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.ConnectionError])

	assert.ErrorIs(t, s.UpdateConnectionStatus(ctx, 9999, models.ConnectionConnected, checked), ErrNotFound)

	list, err := s.ListWebsites(ctx, u.ID, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = s.ListWebsites(ctx, other.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestHistory_ScansLogsActivities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, _, w := seedWebsite(t, s)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertScan(ctx, &models.Scan{
			WebsiteID: w.ID, WordPressVersion: "6.5", PluginUpdates: i, CoreUpdate: i == 2,
			CheckedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	scans, err := s.ListScans(ctx, w.ID, 2)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, 2, scans[0].PluginUpdates)
	assert.True(t, scans[0].CoreUpdate)

	result := models.NewUpdateResult(base)
	item := models.NewItemResult(models.ItemPlugin, "akismet")
	item.Succeed("updated")
	result.Plugins = append(result.Plugins, item)
	result.Finish(base.Add(time.Minute), "PartialUpdateFailure", "UpdateInProgressTimeout")

	entry, err := s.InsertUpdateLog(ctx, w.ID, u.ID, result)
	require.NoError(t, err)
	assert.Len(t, entry.ID, 36)

	logs, err := s.ListUpdateLogs(ctx, w.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].Success)
	assert.JSONEq(t, string(entry.Result), string(logs[0].Result))

	s.LogActivity(ctx, u.ID, &w.ID, "info", "synced")
	s.LogActivity(ctx, u.ID, nil, "info", "logged in")
	acts, err := s.ListActivities(ctx, u.ID, 100)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "logged in", acts[0].Message)
	assert.Nil(t, acts[0].WebsiteID)
	require.NotNil(t, acts[1].WebsiteID)
	assert.Equal(t, w.ID, *acts[1].WebsiteID)
}

func TestDeleteClient_Cascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u, c, w := seedWebsite(t, s)
	require.NoError(t, s.InsertScan(ctx, &models.Scan{WebsiteID: w.ID}))
	s.LogActivity(ctx, u.ID, &w.ID, "info", "synced")

	require.NoError(t, s.DeleteClient(ctx, u.ID, c.ID))

	_, err := s.GetWebsite(ctx, u.ID, w.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	scans, err := s.ListScans(ctx, w.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, scans)

	assert.ErrorIs(t, s.DeleteClient(ctx, u.ID, c.ID), ErrNotFound)
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(sqlx.NewDb(db, "sqlmock"), DriverSQLite)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM site_scans WHERE website_id = ?`)).
		WithArgs(int64(7)).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = s.Transaction(context.Background(), func(tx *sqlx.Tx) error {
		return deleteWebsiteRows(context.Background(), tx, 7)
	})
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetClient_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(sqlx.NewDb(db, "sqlmock"), DriverMySQL)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, name, email, created_at FROM clients WHERE id = ? AND user_id = ?`)).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "email", "created_at"}))

	_, err = s.GetClient(context.Background(), 1, 3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
