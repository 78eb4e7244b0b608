package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func ptr[T any](v T) *T { return &v }

var appColumnNames = []string{
	"id", "job_title", "company", "platform", "job_url", "applied_date", "status",
	"match_score", "cover_letter", "resume_version", "application_id", "screenshot_path",
	"response_received", "interview_date", "notes",
}

func newMockStore(t *testing.T, logger *zap.Logger) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := NewPostgres(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func TestNewPostgres(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresMigrate(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())

	migrations, err := loadMigrations("postgres")
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	for _, m := range migrations {
		mockPool.ExpectExec(regexp.QuoteMeta(m.sql)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresCreateApplicationRecord(t *testing.T) {
	ctx := context.Background()
	app := schemas.NewApplication{
		JobTitle: "Senior AR Executive",
		Company:  "ACME Corp",
		Platform: "NaukriGulf",
		JobURL:   "https://www.naukrigulf.com/senior-ar-executive-jid-1",
	}

	t.Run("returns the generated id", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		s, mockPool := newMockStore(t, zap.New(core))

		mockPool.ExpectQuery(flexibleSQLMatcher(pgInsertApplication)).
			WithArgs(app.JobTitle, app.Company, app.Platform, ptr(app.JobURL), schemas.StatusApplied,
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

		id, err := s.CreateApplicationRecord(ctx, app)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
		assert.NoError(t, mockPool.ExpectationsWereMet())

		require.Equal(t, 1, logs.FilterMessage("Application recorded").Len())
	})

	t.Run("wraps failures as persistence errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		dbErr := errors.New("unique violation")
		mockPool.ExpectQuery(flexibleSQLMatcher(pgInsertApplication)).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(dbErr)

		_, err := s.CreateApplicationRecord(ctx, app)
		require.Error(t, err)
		assert.Equal(t, schemas.KindPersistence, schemas.KindOf(err))
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresGetApplicationRecord(t *testing.T) {
	ctx := context.Background()
	applied := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	query := flexibleSQLMatcher(`SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`)

	t.Run("found", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(query).WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(appColumnNames).AddRow(
				int64(7), "Credit Controller", "Globex", "NaukriGulf", ptr("https://x/jid-7"), applied, "applied",
				nil, nil, nil, nil, nil, false, nil, ptr("follow up"),
			))

		got, err := s.GetApplicationRecord(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.ID)
		assert.Equal(t, "Globex", got.Company)
		assert.Equal(t, "https://x/jid-7", got.JobURL)
		assert.Equal(t, applied, got.AppliedDate)
		require.NotNil(t, got.Notes)
		assert.Equal(t, "follow up", *got.Notes)
		assert.Nil(t, got.MatchScore)
	})

	t.Run("absent id", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectQuery(query).WithArgs(int64(99)).WillReturnError(pgx.ErrNoRows)

		got, err := s.GetApplicationRecord(ctx, 99)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, schemas.ErrNotFound)
	})
}

func TestPostgresListApplicationRecords(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	newer := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-24 * time.Hour)

	mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT ` + applicationColumns + ` FROM applications ORDER BY applied_date DESC, id DESC`)).
		WillReturnRows(pgxmock.NewRows(appColumnNames).
			AddRow(int64(2), "B", "Beta", "NaukriGulf", nil, newer, "applied", nil, nil, nil, nil, nil, false, nil, nil).
			AddRow(int64(1), "A", "Alpha", "NaukriGulf", nil, older, "applied", nil, nil, nil, nil, nil, false, nil, nil))

	got, err := s.ListApplicationRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(1), got[1].ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPostgresUpdateNotes(t *testing.T) {
	ctx := context.Background()
	query := flexibleSQLMatcher(`UPDATE applications SET notes = $1 WHERE id = $2`)

	t.Run("existing record", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectExec(query).WithArgs("called back", int64(3)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		ok, err := s.UpdateNotes(ctx, 3, "called back")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing record", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		mockPool.ExpectExec(query).WithArgs("x", int64(4)).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		ok, err := s.UpdateNotes(ctx, 4, "x")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPostgresUpsertAndLog(t *testing.T) {
	ctx := context.Background()
	s, mockPool := newMockStore(t, zap.NewNop())

	mockPool.ExpectExec(flexibleSQLMatcher(pgUpsertJob)).
		WithArgs("https://x/jid-1", "Title", "Company", pgxmock.AnyArg(), pgxmock.AnyArg(), ptr("Dubai"), pgxmock.AnyArg(), ptr(`["SAP","Excel"]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec(flexibleSQLMatcher(`INSERT INTO logs (action, status, error_message, job_id) VALUES ($1, $2, $3, $4)`)).
		WithArgs("apply", "failed", ptr("timeout"), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertDiscoveredJob(ctx, schemas.DiscoveredJob{
		JobURL: "https://x/jid-1", Title: "Title", Company: "Company", Location: "Dubai",
		SkillsRequired: []string{"SAP", "Excel"},
	}))
	require.NoError(t, s.LogEvent(ctx, schemas.EventLog{Action: "apply", Status: "failed", ErrorMessage: "timeout"}))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"}, zap.NewNop())
	assert.ErrorContains(t, err, "unsupported database driver")
}
