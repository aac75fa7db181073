package bulk

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/mailqueue-backend/internal/errors"
)

const (
	// PacketFraction is the share of the statement ceiling a single batch may use.
	PacketFraction = 0.40

	// EstimatedRowBytes approximates one encoded (job_id, email, status, attempts) tuple.
	EstimatedRowBytes = 96

	// StatementOverheadBytes covers the INSERT prefix and protocol framing.
	StatementOverheadBytes = 512

	MinBatchRows = 100
	MaxBatchRows = 1000

	// DefaultFallbackBytes is used when the ceiling cannot be queried.
	DefaultFallbackBytes int64 = 1 << 20
)

// BatchInserter writes one multi-row statement.
type BatchInserter interface {
	InsertBatch(ctx context.Context, jobID int64, emails []string) (int64, error)
}

// LimitSource reports the transport's maximum statement size in bytes.
type LimitSource interface {
	MaxStatementBytes(ctx context.Context) (int64, error)
}

// Loader splits recipient sets into size-bounded batches. The batch size is
// computed once per Loader.
type Loader struct {
	limits   LimitSource
	fallback int64
	log      zerolog.Logger

	once      sync.Once
	batchSize int
}

func NewLoader(limits LimitSource, fallback int64, log zerolog.Logger) *Loader {
	if fallback <= 0 {
		fallback = DefaultFallbackBytes
	}
	return &Loader{
		limits:   limits,
		fallback: fallback,
		log:      log.With().Str("component", "bulk-loader").Logger(),
	}
}

// ComputeBatchSize derives rows per statement from a statement ceiling.
func ComputeBatchSize(maxStatementBytes int64) int {
	budget := int64(float64(maxStatementBytes)*PacketFraction) - StatementOverheadBytes
	rows := budget / EstimatedRowBytes
	if rows < MinBatchRows {
		return MinBatchRows
	}
	if rows > MaxBatchRows {
		return MaxBatchRows
	}
	return int(rows)
}

// EstimateStatementBytes approximates the encoded size of one batch.
func EstimateStatementBytes(emails []string) int {
	n := StatementOverheadBytes
	for _, e := range emails {
		n += len(e) + EstimatedRowBytes/2
	}
	return n
}

// BatchSize returns the memoized rows-per-statement value.
func (l *Loader) BatchSize(ctx context.Context) int {
	l.once.Do(func() {
		ceiling := l.fallback
		if l.limits != nil {
			queried, err := l.limits.MaxStatementBytes(ctx)
			if err != nil || queried <= 0 {
				l.log.Warn().Err(err).Int64("fallback_bytes", l.fallback).Msg("statement ceiling unavailable, using fallback")
			} else {
				ceiling = queried
			}
		}
		l.batchSize = ComputeBatchSize(ceiling)
		l.log.Info().Int64("ceiling_bytes", ceiling).Int("batch_rows", l.batchSize).Msg("bulk batch size computed")
	})
	return l.batchSize
}

// Load inserts one item per email. A failing batch is logged and skipped; the
// call fails only when no batch landed.
func (l *Loader) Load(ctx context.Context, jobID int64, emails []string, ins BatchInserter) (int64, error) {
	if len(emails) == 0 {
		return 0, appErrors.ErrNoRecipients
	}

	size := l.BatchSize(ctx)
	batches := (len(emails) + size - 1) / size

	var inserted int64
	succeeded := 0
	for i := 0; i < batches; i++ {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		start := i * size
		end := start + size
		if end > len(emails) {
			end = len(emails)
		}
		chunk := emails[start:end]

		n, err := ins.InsertBatch(ctx, jobID, chunk)
		if err != nil {
			l.log.Error().Err(err).
				Int64("job_id", jobID).
				Int("batch", i+1).
				Int("batches", batches).
				Int("rows", len(chunk)).
				Int("statement_bytes", EstimateStatementBytes(chunk)).
				Msg("bulk insert batch failed")
			continue
		}
		inserted += n
		succeeded++
	}

	l.log.Info().
		Int64("job_id", jobID).
		Int64("inserted", inserted).
		Int("requested", len(emails)).
		Int("batches_ok", succeeded).
		Int("batches", batches).
		Msg("bulk load finished")

	if succeeded == 0 {
		return 0, fmt.Errorf("%w: %d of %d batches failed", appErrors.ErrBulkLoadFailed, batches, batches)
	}
	return inserted, nil
}
