package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/labeldash/internal/labels"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	// timeLayout is fixed width so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// ErrInvalidSubmission is returned when a submission has no job id.
var ErrInvalidSubmission = errors.New("history: submission has no job id")

// Entry is one recorded print job.
type Entry struct {
	JobID       string             `json:"job_id"`
	DashboardID string             `json:"dashboard_id"`
	Topic       string             `json:"topic"`
	Qty         int                `json:"qty"`
	Items       []labels.LabelItem `json:"items"`
	SubmittedAt time.Time          `json:"submitted_at"`
}

var _ labels.Recorder = (*Repository)(nil)

// Repository stores print jobs in SQLite.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a Repository over an open, migrated database.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// RecordJob inserts a submitted job. Recording the same job id twice is a
// no-op.
func (r *Repository) RecordJob(ctx context.Context, sub labels.Submission) error {
	if sub.Job.JobID == "" {
		return ErrInvalidSubmission
	}

	items, err := json.Marshal(sub.Job.Items)
	if err != nil {
		return fmt.Errorf("marshalling label items: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO print_jobs (job_id, dashboard_id, topic, qty, items, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.Job.JobID,
		sub.Job.ID,
		sub.Topic,
		sub.Job.Qty,
		string(items),
		sub.SubmittedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting print job: %w", err)
	}
	return nil
}

// List returns recent jobs, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - limit: Maximum entries to return (default 50, max 500)
func (r *Repository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT job_id, dashboard_id, topic, qty, items, submitted_at
		 FROM print_jobs
		 ORDER BY submitted_at DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying print jobs: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var items, submittedAt string
		if err := rows.Scan(&e.JobID, &e.DashboardID, &e.Topic, &e.Qty, &items, &submittedAt); err != nil {
			return nil, fmt.Errorf("scanning print job: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &e.Items); err != nil {
			return nil, fmt.Errorf("unmarshalling label items of %s: %w", e.JobID, err)
		}
		e.SubmittedAt, err = time.Parse(timeLayout, submittedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing submitted_at of %s: %w", e.JobID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating print jobs: %w", err)
	}
	return entries, nil
}

// Prune deletes jobs submitted longer ago than olderThan.
//
// Returns:
//   - int64: Number of rows deleted
func (r *Repository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM print_jobs WHERE submitted_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting print jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
