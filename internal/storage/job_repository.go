package storage

import (
	"context"
	"database/sql"
	"time"
)

// JobRecord is one row of the job history.
type JobRecord struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	Model       string     `json:"model"`
	Device      string     `json:"device"`
	Precision   string     `json:"precision"`
	Language    string     `json:"language"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// StatusCount is one row of the per-status aggregate.
type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

// JobRepository is the data-access layer for the job history.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Record inserts a freshly submitted job.
func (r *JobRepository) Record(ctx context.Context, rec *JobRecord) error {
	if rec.Status == "" {
		rec.Status = "queued"
	}
	rec.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, filename, model, device, precision, language, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.Model, rec.Device, rec.Precision, rec.Language, rec.Status, rec.CreatedAt,
	)
	return err
}

// MarkRunning stamps the job as started.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', started_at = ? WHERE id = ?`, now, id)
	return err
}

// MarkDone stamps the job as completed.
func (r *JobRepository) MarkDone(ctx context.Context, id string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'done', completed_at = ? WHERE id = ?`, now, id)
	return err
}

// MarkError stamps the job as failed with its diagnostic message.
func (r *JobRepository) MarkError(ctx context.Context, id, errMsg string) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'error', error = ?, completed_at = ? WHERE id = ?`, errMsg, now, id)
	return err
}

// GetByID returns one record, or nil if absent.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*JobRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, filename, model, device, precision, language, status, error, created_at, started_at, completed_at
		 FROM jobs WHERE id = ?`, id)

	rec, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*JobRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, filename, model, device, precision, language, status, error, created_at, started_at, completed_at
		 FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListByStatus returns up to limit records in one status, newest first.
func (r *JobRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*JobRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, filename, model, device, precision, language, status, error, created_at, started_at, completed_at
		 FROM jobs WHERE status = ? ORDER BY created_at DESC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// CountByStatus returns record counts grouped by status.
func (r *JobRepository) CountByStatus(ctx context.Context) ([]StatusCount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var sc StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*JobRecord, error) {
	var rec JobRecord
	var errMsg sql.NullString
	err := row.Scan(
		&rec.ID, &rec.Filename, &rec.Model, &rec.Device, &rec.Precision,
		&rec.Language, &rec.Status, &errMsg, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Error = errMsg.String
	return &rec, nil
}

func scanJobs(rows *sql.Rows) ([]*JobRecord, error) {
	var records []*JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
