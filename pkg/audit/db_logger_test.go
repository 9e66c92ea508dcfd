package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDBLogger(t *testing.T) (*DBLogger, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	logger, err := NewDBLogger(db)
	require.NoError(t, err)

	return logger, mock, db
}

func TestNewDBLoggerRequiresDB(t *testing.T) {
	_, err := NewDBLogger(nil)
	assert.Error(t, err)
}

func TestDBLoggerLog(t *testing.T) {
	logger, mock, db := newMockDBLogger(t)
	defer db.Close()

	principalID := int64(42)
	event := NewEvent(context.Background(), EventTypeTokenIssued, EventStatusSuccess)
	event.PrincipalID = &principalID
	event.Username = "jdoe"
	event.JTI = "jti-1"
	event.IPAddress = "10.1.2.3"
	event.Detail["foo"] = "bar"

	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs(
			sqlmock.AnyArg(), // timestamp
			"token_issued",
			"success",
			principalID,
			"jdoe",
			"jti-1",
			"", // app_name
			"10.1.2.3",
			"", // user_agent
			"", // request_id
			"", // reason
			"", // message
			sqlmock.AnyArg(), // detail JSON
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	require.NoError(t, logger.Log(context.Background(), event))
	assert.Equal(t, int64(7), event.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLoggerLogEmptyDetailSkipsMarshal(t *testing.T) {
	logger, mock, db := newMockDBLogger(t)
	defer db.Close()

	event := NewEvent(context.Background(), EventTypeLoginFailed, EventStatusFailure)
	event.Username = "nobody"

	mock.ExpectQuery("INSERT INTO audit_events").
		WithArgs(
			sqlmock.AnyArg(), "login_failed", "failure",
			nil, "nobody", "", "", "", "", "", "", "",
			sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	require.NoError(t, logger.Log(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLoggerSearch(t *testing.T) {
	logger, mock, db := newMockDBLogger(t)
	defer db.Close()

	now := time.Now().UTC()
	principalID := int64(42)

	rows := sqlmock.NewRows([]string{
		"id", "timestamp", "event_type", "status",
		"principal_id", "username", "jti", "app_name",
		"ip_address", "user_agent", "request_id",
		"reason", "message", "detail",
	}).AddRow(
		int64(1), now, "token_revoked", "success",
		principalID, "jdoe", "jti-1", "",
		"", "", "",
		"logout", "", []byte(`{"revoked_count":2}`),
	)

	mock.ExpectQuery("SELECT(.+)FROM audit_events").
		WithArgs(principalID, sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	events, err := logger.Search(context.Background(), SearchFilter{
		PrincipalID: &principalID,
		EventTypes:  []EventType{EventTypeTokenRevoked},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, EventTypeTokenRevoked, events[0].EventType)
	assert.Equal(t, "jdoe", events[0].Username)
	assert.Equal(t, float64(2), events[0].Detail["revoked_count"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLoggerCleanup(t *testing.T) {
	logger, mock, db := newMockDBLogger(t)
	defer db.Close()

	mock.ExpectExec("DELETE FROM audit_events").
		WithArgs(30).
		WillReturnResult(sqlmock.NewResult(0, 12))

	purged, err := logger.Cleanup(context.Background(), RetentionPolicy{RetentionDays: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(12), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
