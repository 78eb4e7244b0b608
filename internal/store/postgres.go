package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore is the PostgreSQL implementation of schemas.Store.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Store = (*PostgresStore)(nil)

// NewPostgres creates a store instance and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		log:  logger.Named("store.postgres"),
	}, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	migrations, err := loadMigrations("postgres")
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		s.log.Debug("Applied migration", zap.String("migration", m.name))
	}
	return nil
}

const pgInsertApplication = `
	INSERT INTO applications (job_title, company, platform, job_url, status, match_score,
		cover_letter, resume_version, screenshot_path, notes)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`

func (s *PostgresStore) CreateApplicationRecord(ctx context.Context, app schemas.NewApplication) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, pgInsertApplication,
		app.JobTitle, app.Company, app.Platform, nullable(app.JobURL), statusOrDefault(app.Status),
		app.MatchScore, app.CoverLetter, app.ResumeVersion, app.ScreenshotPath, app.Notes,
	).Scan(&id)
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

func scanApplication(row rowScanner) (schemas.ApplicationRecord, error) {
	var r schemas.ApplicationRecord
	var jobURL *string
	err := row.Scan(
		&r.ID, &r.JobTitle, &r.Company, &r.Platform, &jobURL, &r.AppliedDate, &r.Status,
		&r.MatchScore, &r.CoverLetter, &r.ResumeVersion, &r.ApplicationID, &r.ScreenshotPath,
		&r.ResponseReceived, &r.InterviewDate, &r.Notes,
	)
	r.JobURL = deref(jobURL)
	return r, err
}

func (s *PostgresStore) GetApplicationRecord(ctx context.Context, id int64) (*schemas.ApplicationRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)
	r, err := scanApplication(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, schemas.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application %d: %w", id, err)
	}
	return &r, nil
}

func (s *PostgresStore) ListApplicationRecords(ctx context.Context) ([]schemas.ApplicationRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY applied_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	out := []schemas.ApplicationRecord{}
	for rows.Next() {
		r, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateNotes(ctx context.Context, id int64, notes string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE applications SET notes = $1 WHERE id = $2`, notes, id)
	if err != nil {
		return false, &schemas.PersistenceError{Op: "update notes", Err: err}
	}
	return tag.RowsAffected() > 0, nil
}

const pgUpsertJob = `
	INSERT INTO jobs (job_url, title, company, description, salary_range, location, match_score, skills_required)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (job_url) DO UPDATE SET
		title = EXCLUDED.title,
		company = EXCLUDED.company,
		description = COALESCE(EXCLUDED.description, jobs.description),
		salary_range = COALESCE(EXCLUDED.salary_range, jobs.salary_range),
		location = EXCLUDED.location,
		match_score = COALESCE(EXCLUDED.match_score, jobs.match_score),
		skills_required = COALESCE(EXCLUDED.skills_required, jobs.skills_required)`

func (s *PostgresStore) UpsertDiscoveredJob(ctx context.Context, job schemas.DiscoveredJob) error {
	skills, err := encodeSkills(job.SkillsRequired)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}
	_, err = s.pool.Exec(ctx, pgUpsertJob,
		job.JobURL, job.Title, job.Company, nullable(job.Description), nullable(job.SalaryRange),
		nullable(job.Location), job.MatchScore, skills,
	)
	if err != nil {
		return &schemas.PersistenceError{Op: "upsert job", Err: err}
	}
	return nil
}

func (s *PostgresStore) LogEvent(ctx context.Context, ev schemas.EventLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO logs (action, status, error_message, job_id) VALUES ($1, $2, $3, $4)`,
		ev.Action, ev.Status, nullable(ev.ErrorMessage), ev.JobID,
	)
	if err != nil {
		return &schemas.PersistenceError{Op: "log event", Err: err}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
