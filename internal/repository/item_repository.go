package repository

import (
    "context"
    "database/sql"
    "fmt"

    "github.com/unclebandit/mailqueue-backend/internal/model"
)

type ItemRepositoryInterface interface {
    NextQueued(ctx context.Context, jobID int64, limit int) ([]model.Item, error)
    MarkOutcome(ctx context.Context, id int64, status model.ItemStatus, reason string) (bool, error)
    HasQueued(ctx context.Context, jobID int64) (bool, error)
    List(ctx context.Context, jobID int64, status string, offset, limit int) ([]model.Item, error)
    Stats(ctx context.Context, jobID int64) (map[string]int, error)
}

type ItemRepository struct {
    DB *sql.DB
}

// NextQueued returns up to limit queued items of a job in insertion order.
func (r *ItemRepository) NextQueued(ctx context.Context, jobID int64, limit int) ([]model.Item, error) {
    query := `
        SELECT id, job_id, email, status, attempts, COALESCE(error, ''), updated_at
        FROM job_items
        WHERE job_id=$1 AND status='queued'
        ORDER BY id ASC
        LIMIT $2
    `
    return r.query(ctx, query, jobID, limit)
}

// MarkOutcome records the terminal outcome of a queued item. It reports false
// when the item already left the queued state.
func (r *ItemRepository) MarkOutcome(ctx context.Context, id int64, status model.ItemStatus, reason string) (bool, error) {
    var errText sql.NullString
    if status == model.ItemFailed {
        errText = sql.NullString{String: reason, Valid: true}
    }
    query := `
        UPDATE job_items
        SET status=$1, error=$2, attempts=attempts+1, updated_at=NOW()
        WHERE id=$3 AND status='queued'
    `
    res, err := r.DB.ExecContext(ctx, query, string(status), errText, id)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

func (r *ItemRepository) HasQueued(ctx context.Context, jobID int64) (bool, error) {
    var exists bool
    err := r.DB.QueryRowContext(ctx,
        `SELECT EXISTS (SELECT 1 FROM job_items WHERE job_id=$1 AND status='queued')`, jobID).Scan(&exists)
    return exists, err
}

func (r *ItemRepository) List(ctx context.Context, jobID int64, status string, offset, limit int) ([]model.Item, error) {
    query := `SELECT id, job_id, email, status, attempts, COALESCE(error, ''), updated_at FROM job_items WHERE job_id=$1`
    args := []interface{}{jobID}
    argPos := 2
    if status != "" {
        query += fmt.Sprintf(" AND status=$%d", argPos)
        args = append(args, status)
        argPos++
    }
    query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", argPos, argPos+1)
    args = append(args, limit, offset)
    return r.query(ctx, query, args...)
}

func (r *ItemRepository) Stats(ctx context.Context, jobID int64) (map[string]int, error) {
    rows, err := r.DB.QueryContext(ctx,
        `SELECT status, COUNT(*) FROM job_items WHERE job_id=$1 GROUP BY status`, jobID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    stats := map[string]int{"queued": 0, "sent": 0, "failed": 0}
    for rows.Next() {
        var status string
        var count int
        if err := rows.Scan(&status, &count); err != nil {
            return nil, err
        }
        stats[status] = count
    }
    return stats, rows.Err()
}

func (r *ItemRepository) query(ctx context.Context, query string, args ...interface{}) ([]model.Item, error) {
    rows, err := r.DB.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    items := []model.Item{}
    for rows.Next() {
        var it model.Item
        var status string
        if err := rows.Scan(&it.ID, &it.JobID, &it.Email, &status, &it.Attempts, &it.Error, &it.UpdatedAt); err != nil {
            return nil, err
        }
        it.Status = model.ItemStatus(status)
        items = append(items, it)
    }
    return items, rows.Err()
}

var _ ItemRepositoryInterface = (*ItemRepository)(nil)
