package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx so numbers can be
// drawn inside the transaction that creates the document.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Sequencer hands out gap-tolerant sequential document numbers from a
// dedicated counter per (tenant, document type, year). The counter is bumped
// with a single atomic upsert, never derived from counting the target table.
type Sequencer struct {
	pool *pgxpool.Pool
}

// NewSequencer constructs a Sequencer.
func NewSequencer(pool *pgxpool.Pool) *Sequencer {
	return &Sequencer{pool: pool}
}

// Next increments and returns the counter for (tenant, docType, year).
func (s *Sequencer) Next(ctx context.Context, tenantID, docType string, year int) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("sequencer not initialised")
	}
	return NextIn(ctx, s.pool, tenantID, docType, year)
}

// NextIn is like Next but runs against the supplied querier, typically the
// transaction creating the document so the number is never burned on rollback
// visibility anomalies within that unit of work.
func NextIn(ctx context.Context, q Querier, tenantID, docType string, year int) (int64, error) {
	if tenantID == "" {
		return 0, errors.New("sequence: tenant required")
	}
	if docType == "" {
		return 0, errors.New("sequence: document type required")
	}
	const query = `
		INSERT INTO document_counters (tenant_id, doc_type, year, value)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, doc_type, year)
		DO UPDATE SET value = document_counters.value + 1
		RETURNING value`
	var value int64
	if err := q.QueryRow(ctx, query, tenantID, docType, year).Scan(&value); err != nil {
		return 0, fmt.Errorf("sequence: next %s/%d: %w", docType, year, err)
	}
	return value, nil
}

// DocNumber formats a document number as PREFIX-YEAR-NNNNN with the given
// zero-padded width.
func DocNumber(prefix string, year int, seq int64, width int) string {
	return fmt.Sprintf("%s-%d-%0*d", prefix, year, width, seq)
}

// ClaimNumber formats a warranty claim number from a timestamp.
func ClaimNumber(at time.Time) string {
	return fmt.Sprintf("CLM-%d", at.UnixMilli())
}
