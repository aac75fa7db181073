// internal/db/db.go
package db

import (
    "database/sql"
    "fmt"
    "time"

    _ "github.com/lib/pq"
    "github.com/rs/zerolog"
)

// Open connects the database/sql pool used by the repositories.
func Open(dsn string, log zerolog.Logger) (*sql.DB, error) {
    conn, err := sql.Open("postgres", dsn)
    if err != nil {
        return nil, fmt.Errorf("open db: %w", err)
    }

    conn.SetMaxOpenConns(10)
    conn.SetConnMaxIdleTime(5 * time.Minute)

    if err = conn.Ping(); err != nil {
        conn.Close()
        return nil, fmt.Errorf("ping db: %w", err)
    }

    log.Info().Msg("✅ Connected to database")
    return conn, nil
}
