// File: api/schemas/interfaces.go
package schemas

import (
	"context"
)

// Store is the persistence sink for applications, discovered jobs and the
// operational event log. Each call is its own unit of work.
type Store interface {
	CreateApplicationRecord(ctx context.Context, app NewApplication) (int64, error)
	// GetApplicationRecord returns ErrNotFound when id does not exist.
	GetApplicationRecord(ctx context.Context, id int64) (*ApplicationRecord, error)
	// ListApplicationRecords returns records most recent first.
	ListApplicationRecords(ctx context.Context) ([]ApplicationRecord, error)
	// UpdateNotes reports false when id does not exist.
	UpdateNotes(ctx context.Context, id int64, notes string) (bool, error)
	UpsertDiscoveredJob(ctx context.Context, job DiscoveredJob) error
	LogEvent(ctx context.Context, ev EventLog) error
	Close() error
}

// SessionStore persists authenticated browser sessions between runs.
type SessionStore interface {
	Save(ctx context.Context, s Session) error
	// Load returns (nil, nil) when no session has been saved.
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}

// TextGenerator produces application documents.
type TextGenerator interface {
	GenerateCoverLetter(ctx context.Context, jobDescription, company, title string, profile Profile) (string, error)
	// TailorResume returns a copy of master with summary, skills and
	// experience rewritten for the job.
	TailorResume(ctx context.Context, jobDescription string, master map[string]any) (map[string]any, error)
}
