package repository

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    "github.com/lib/pq"

    appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
    "github.com/unclebandit/mailqueue-backend/internal/model"
)

type JobRepositoryInterface interface {
    GetByID(ctx context.Context, id int64) (*model.Job, error)
    List(ctx context.Context, offset, limit int, status string) ([]*model.Job, int, error)
    UpdateSettings(ctx context.Context, j *model.Job) error
    Delete(ctx context.Context, id int64) error

    // Dispatcher operations
    NextEligible(ctx context.Context, now, dayStart time.Time, excludeID int64) (*model.Job, error)
    Transition(ctx context.Context, id int64, from []model.JobStatus, to model.JobStatus) (bool, error)
    IncrementCounters(ctx context.Context, id int64, sent, failed int) error
    SyncCounters(ctx context.Context, id int64) (int, int, error)
    ExpireStale(ctx context.Context, dayStart time.Time) ([]int64, error)
    PurgeExpired(ctx context.Context, before time.Time) (int64, error)
    HasActive(ctx context.Context) (bool, error)
}

type JobRepository struct {
    DB *sql.DB
}

const jobColumns = `id, template_ref, status, start_at, rate_per_minute, total, sent, failed, created_at, updated_at`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
    var j model.Job
    var status string
    err := row.Scan(&j.ID, &j.TemplateRef, &status, &j.StartAt, &j.RatePerMinute,
        &j.Total, &j.Sent, &j.Failed, &j.CreatedAt, &j.UpdatedAt)
    if err != nil {
        return nil, err
    }
    j.Status = model.JobStatus(status)
    j.StartAt = j.StartAt.UTC()
    return &j, nil
}

func statusArray(statuses []model.JobStatus) interface{} {
    out := make([]string, len(statuses))
    for i, s := range statuses {
        out[i] = string(s)
    }
    return pq.Array(out)
}

// ====================== Job CRUD ======================

func (r *JobRepository) GetByID(ctx context.Context, id int64) (*model.Job, error) {
    query := `SELECT ` + jobColumns + ` FROM jobs WHERE id=$1`
    j, err := scanJob(r.DB.QueryRowContext(ctx, query, id))
    if err != nil {
        if err == sql.ErrNoRows {
            return nil, appErrors.NewJobNotFound(id)
        }
        return nil, err
    }
    return j, nil
}

func (r *JobRepository) List(ctx context.Context, offset, limit int, status string) ([]*model.Job, int, error) {
    jobs := []*model.Job{}
    query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
    args := []interface{}{}
    argPos := 1

    if status != "" {
        query += fmt.Sprintf(" AND status=$%d", argPos)
        args = append(args, status)
        argPos++
    }

    query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
    args = append(args, limit, offset)

    rows, err := r.DB.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, 0, err
    }
    defer rows.Close()

    for rows.Next() {
        j, err := scanJob(rows)
        if err != nil {
            return nil, 0, err
        }
        jobs = append(jobs, j)
    }
    if err := rows.Err(); err != nil {
        return nil, 0, err
    }

    // Count total
    countQuery := `SELECT COUNT(*) FROM jobs`
    countArgs := []interface{}{}
    if status != "" {
        countQuery += ` WHERE status=$1`
        countArgs = append(countArgs, status)
    }

    var total int
    if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
        return nil, 0, err
    }

    return jobs, total, nil
}

// UpdateSettings applies an administrative edit. Only pending or running jobs
// accept edits.
func (r *JobRepository) UpdateSettings(ctx context.Context, j *model.Job) error {
    query := `
        UPDATE jobs
        SET template_ref=$1, start_at=$2, rate_per_minute=$3, updated_at=NOW()
        WHERE id=$4 AND status IN ('pending', 'running')
    `
    res, err := r.DB.ExecContext(ctx, query, j.TemplateRef, j.StartAt.UTC(), j.RatePerMinute, j.ID)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 1 {
        return nil
    }
    if _, err := r.GetByID(ctx, j.ID); err != nil {
        return err
    }
    return appErrors.ErrJobNotEditable
}

// Delete removes the job; job_items rows go with it through ON DELETE CASCADE.
func (r *JobRepository) Delete(ctx context.Context, id int64) error {
    res, err := r.DB.ExecContext(ctx, `DELETE FROM jobs WHERE id=$1`, id)
    if err != nil {
        return err
    }
    if n, _ := res.RowsAffected(); n == 0 {
        return appErrors.NewJobNotFound(id)
    }
    return nil
}

// ====================== Dispatch ======================

// NextEligible returns the lowest-id dispatchable job whose start falls between
// the start of the current day and now. excludeID 0 excludes nothing.
func (r *JobRepository) NextEligible(ctx context.Context, now, dayStart time.Time, excludeID int64) (*model.Job, error) {
    query := `
        SELECT ` + jobColumns + `
        FROM jobs
        WHERE status IN ('pending', 'running')
          AND start_at <= $1
          AND start_at >= $2
          AND id <> $3
        ORDER BY id ASC
        LIMIT 1
    `
    j, err := scanJob(r.DB.QueryRowContext(ctx, query, now.UTC(), dayStart.UTC(), excludeID))
    if err != nil {
        if err == sql.ErrNoRows {
            return nil, nil
        }
        return nil, err
    }
    return j, nil
}

// Transition moves a job to `to` only if it is currently in one of `from`.
func (r *JobRepository) Transition(ctx context.Context, id int64, from []model.JobStatus, to model.JobStatus) (bool, error) {
    query := `UPDATE jobs SET status=$1, updated_at=NOW() WHERE id=$2 AND status = ANY($3)`
    res, err := r.DB.ExecContext(ctx, query, string(to), id, statusArray(from))
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// IncrementCounters adds to sent/failed relative to the stored values.
func (r *JobRepository) IncrementCounters(ctx context.Context, id int64, sent, failed int) error {
    if sent == 0 && failed == 0 {
        return nil
    }
    query := `UPDATE jobs SET sent=sent+$1, failed=failed+$2, updated_at=NOW() WHERE id=$3`
    _, err := r.DB.ExecContext(ctx, query, sent, failed, id)
    return err
}

// SyncCounters recomputes sent/failed from the job's items and returns them.
func (r *JobRepository) SyncCounters(ctx context.Context, id int64) (int, int, error) {
    query := `
        UPDATE jobs SET
            sent=(SELECT COUNT(*) FROM job_items WHERE job_id=$1 AND status='sent'),
            failed=(SELECT COUNT(*) FROM job_items WHERE job_id=$1 AND status='failed'),
            updated_at=NOW()
        WHERE id=$1
        RETURNING sent, failed
    `
    var sent, failed int
    err := r.DB.QueryRowContext(ctx, query, id).Scan(&sent, &failed)
    if err == sql.ErrNoRows {
        return 0, 0, nil
    }
    return sent, failed, err
}

// ExpireStale marks dispatchable jobs whose start day is over as expired and
// returns their ids.
func (r *JobRepository) ExpireStale(ctx context.Context, dayStart time.Time) ([]int64, error) {
    query := `
        UPDATE jobs SET status='expired', updated_at=NOW()
        WHERE status IN ('pending', 'running') AND start_at < $1
        RETURNING id
    `
    rows, err := r.DB.QueryContext(ctx, query, dayStart.UTC())
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var ids []int64
    for rows.Next() {
        var id int64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

// PurgeExpired deletes expired jobs (and their items) that started before `before`.
func (r *JobRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
    res, err := r.DB.ExecContext(ctx, `DELETE FROM jobs WHERE status='expired' AND start_at < $1`, before.UTC())
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

func (r *JobRepository) HasActive(ctx context.Context) (bool, error) {
    var exists bool
    err := r.DB.QueryRowContext(ctx,
        `SELECT EXISTS (SELECT 1 FROM jobs WHERE status IN ('pending', 'running'))`).Scan(&exists)
    return exists, err
}

var _ JobRepositoryInterface = (*JobRepository)(nil)
