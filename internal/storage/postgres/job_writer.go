package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/unclebandit/mailqueue-backend/internal/bulk"
	"github.com/unclebandit/mailqueue-backend/internal/model"
)

// JobWriter creates a job row and its items in a single transaction.
type JobWriter struct {
	db     *DB
	loader *bulk.Loader
}

func NewJobWriter(db *DB, loader *bulk.Loader) *JobWriter {
	return &JobWriter{db: db, loader: loader}
}

// CreateWithItems inserts the job, bulk loads one item per email and sets the
// job total to the number of item rows that landed. Nothing is visible to the
// dispatcher until the transaction commits.
func (w *JobWriter) CreateWithItems(ctx context.Context, job *model.Job, emails []string) error {
	tx, err := w.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO jobs (template_ref, status, start_at, rate_per_minute, total, sent, failed, created_at)
		VALUES ($1, 'pending', $2, $3, 0, 0, 0, NOW())
		RETURNING id, created_at`,
		job.TemplateRef, job.StartAt.UTC(), job.RatePerMinute,
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	inserted, err := w.loader.Load(ctx, job.ID, emails, &txInserter{tx: tx})
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `UPDATE jobs SET total=$1 WHERE id=$2`, inserted, job.ID); err != nil {
		return fmt.Errorf("set total: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	job.Status = model.JobPending
	job.Total = int(inserted)
	return nil
}

// txInserter runs each batch inside a savepoint so a failed batch does not
// abort the surrounding transaction.
type txInserter struct {
	tx pgx.Tx
}

func (t *txInserter) InsertBatch(ctx context.Context, jobID int64, emails []string) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	placeholders := make([]string, 0, len(emails))
	args := make([]any, 0, len(emails)*2)
	argi := 1
	for _, e := range emails {
		placeholders = append(placeholders, fmt.Sprintf("($%d,$%d,'queued',0)", argi, argi+1))
		args = append(args, jobID, e)
		argi += 2
	}
	sql := "INSERT INTO job_items (job_id, email, status, attempts) VALUES " + strings.Join(placeholders, ",")

	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return 0, err
	}
	ct, err := sp.Exec(ctx, sql, args...)
	if err != nil {
		_ = sp.Rollback(ctx)
		return 0, err
	}
	if err := sp.Commit(ctx); err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
