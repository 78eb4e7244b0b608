package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// sqliteTime is fixed width so TEXT ordering matches chronological order.
// It shares its prefix with SQLite's CURRENT_TIMESTAMP format.
const sqliteTime = "2006-01-02 15:04:05.000000"

// SQLiteStore is the embedded single-file implementation of schemas.Store.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

var _ schemas.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and runs pending
// migrations. ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection avoids "database is locked" and keeps an
	// in-memory database alive for the life of the store.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, log: logger.Named("store.sqlite"), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	s.log.Debug("SQLite store opened", zap.String("path", path))
	return s, nil
}

// migrate applies each embedded migration not yet recorded in schema_version.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	migrations, err := loadMigrations("sqlite")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		var applied int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version WHERE version = ?", m.version).Scan(&applied); err != nil {
			return fmt.Errorf("checking migration %d: %w", m.version, err)
		}
		if applied > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}
	return nil
}

// AppliedMigrations returns applied migration versions in ascending order.
func (s *SQLiteStore) AppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStore) CreateApplicationRecord(ctx context.Context, app schemas.NewApplication) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (job_title, company, platform, job_url, applied_date, status,
			match_score, cover_letter, resume_version, screenshot_path, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.JobTitle, app.Company, app.Platform, nullable(app.JobURL),
		s.now().UTC().Format(sqliteTime), statusOrDefault(app.Status),
		app.MatchScore, app.CoverLetter, app.ResumeVersion, app.ScreenshotPath, app.Notes,
	)
	if err != nil {
		return 0, &schemas.PersistenceError{Op: "create application", Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &schemas.PersistenceError{Op: "create application", Err: err}
	}
	s.log.Info("Application recorded",
		zap.Int64("id", id),
		zap.String("title", app.JobTitle),
		zap.String("company", app.Company),
	)
	return id, nil
}

// parseSQLiteTime accepts our fixed layout and SQLite's CURRENT_TIMESTAMP.
func parseSQLiteTime(v string) (time.Time, error) {
	for _, layout := range []string{sqliteTime, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", v)
}

func scanSQLiteApplication(row rowScanner) (schemas.ApplicationRecord, error) {
	var (
		r             schemas.ApplicationRecord
		jobURL        sql.NullString
		appliedDate   string
		interviewDate sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.JobTitle, &r.Company, &r.Platform, &jobURL, &appliedDate, &r.Status,
		&r.MatchScore, &r.CoverLetter, &r.ResumeVersion, &r.ApplicationID, &r.ScreenshotPath,
		&r.ResponseReceived, &interviewDate, &r.Notes,
	); err != nil {
		return r, err
	}
	r.JobURL = jobURL.String

	t, err := parseSQLiteTime(appliedDate)
	if err != nil {
		return r, fmt.Errorf("parsing applied_date: %w", err)
	}
	r.AppliedDate = t

	if interviewDate.Valid && interviewDate.String != "" {
		it, err := parseSQLiteTime(interviewDate.String)
		if err != nil {
			return r, fmt.Errorf("parsing interview_date: %w", err)
		}
		r.InterviewDate = &it
	}
	return r, nil
}

func (s *SQLiteStore) GetApplicationRecord(ctx context.Context, id int64) (*schemas.ApplicationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	r, err := scanSQLiteApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, schemas.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application %d: %w", id, err)
	}
	return &r, nil
}

func (s *SQLiteStore) ListApplicationRecords(ctx context.Context) ([]schemas.ApplicationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY applied_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	out := []schemas.ApplicationRecord{}
	for rows.Next() {
		r, err := scanSQLiteApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateNotes(ctx context.Context, id int64, notes string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE applications SET notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return false, &schemas.PersistenceError{Op: "update notes", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &schemas.PersistenceError{Op: "update notes", Err: err}
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpsertDiscoveredJob(ctx context.Context, job schemas.DiscoveredJob) error {
	skills, err := encodeSkills(job.SkillsRequired)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (job_url, title, company, description, salary_range, location, match_score, skills_required)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_url) DO UPDATE SET
			title = excluded.title,
			company = excluded.company,
			description = COALESCE(excluded.description, jobs.description),
			salary_range = COALESCE(excluded.salary_range, jobs.salary_range),
			location = excluded.location,
			match_score = COALESCE(excluded.match_score, jobs.match_score),
			skills_required = COALESCE(excluded.skills_required, jobs.skills_required)`,
		job.JobURL, job.Title, job.Company, nullable(job.Description), nullable(job.SalaryRange),
		nullable(job.Location), job.MatchScore, skills,
	)
	if err != nil {
		return &schemas.PersistenceError{Op: "upsert job", Err: err}
	}
	return nil
}

// DiscoveredJobCount returns the number of cached listings.
func (s *SQLiteStore) DiscoveredJobCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) LogEvent(ctx context.Context, ev schemas.EventLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (timestamp, action, status, error_message, job_id) VALUES (?, ?, ?, ?, ?)`,
		s.now().UTC().Format(sqliteTime), ev.Action, ev.Status, nullable(ev.ErrorMessage), ev.JobID,
	)
	if err != nil {
		return &schemas.PersistenceError{Op: "log event", Err: err}
	}
	return nil
}

// RecentEvents returns the newest log entries, newest first.
func (s *SQLiteStore) RecentEvents(ctx context.Context, limit int) ([]schemas.EventLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, status, error_message, job_id FROM logs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schemas.EventLog
	for rows.Next() {
		var ev schemas.EventLog
		var msg sql.NullString
		if err := rows.Scan(&ev.Action, &ev.Status, &msg, &ev.JobID); err != nil {
			return nil, err
		}
		ev.ErrorMessage = msg.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
