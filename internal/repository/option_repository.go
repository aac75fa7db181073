package repository

import (
	"context"
	"database/sql"
)

// OptionRepository is a key/value table for small settings such as the
// trigger secret and its rotation state.
type OptionRepository struct {
	DB *sql.DB
}

func (r *OptionRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM options WHERE key=$1`, key).Scan(&v)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

func (r *OptionRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO options (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`,
		key, value)
	return err
}

func (r *OptionRepository) Delete(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM options WHERE key=$1`, key)
	return err
}
