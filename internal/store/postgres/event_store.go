package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The journal is
// append-only; replays of an already-stored sequence number are no-ops so a
// crashed write-through can safely retry.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append stores one journal record keyed by its sequence number.
func (s *EventStore) Append(ctx context.Context, rec domain.EventRecord) error {
	const query = `
		INSERT INTO ledger_events (seq, type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (seq) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		int64(rec.Seq), string(rec.Type), rec.Payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %d: %w", rec.Seq, err)
	}
	return nil
}

// List returns journal records, newest first, optionally filtered by type and
// created_at window.
func (s *EventStore) List(ctx context.Context, typ domain.EventType, opts domain.ListOpts) ([]domain.EventRecord, error) {
	query := `SELECT seq, type, payload, created_at FROM ledger_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if typ != "" {
		query += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, string(typ))
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY seq DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// MaxSeq returns the highest stored sequence number, zero for an empty
// journal.
func (s *EventStore) MaxSeq(ctx context.Context) (uint64, error) {
	var maxSeq int64
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM ledger_events").Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("postgres: max event seq: %w", err)
	}
	return uint64(maxSeq), nil
}

// ListBefore returns up to limit journal records older than the given time in
// sequence order (for archiving).
func (s *EventStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.EventRecord, error) {
	query := `SELECT seq, type, payload, created_at
		FROM ledger_events WHERE created_at < $1 ORDER BY seq ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()
	return scanEventRows(rows)
}

// DeleteThrough deletes journal records with sequence numbers up to and
// including seq. Returns the number deleted.
func (s *EventStore) DeleteThrough(ctx context.Context, seq uint64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ledger_events WHERE seq <= $1`, int64(seq))
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events through %d: %w", seq, err)
	}
	return tag.RowsAffected(), nil
}

func scanEventRows(rows pgx.Rows) ([]domain.EventRecord, error) {
	var records []domain.EventRecord
	for rows.Next() {
		var (
			rec domain.EventRecord
			seq int64
			typ string
		)
		if err := rows.Scan(&seq, &typ, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		rec.Seq = uint64(seq)
		rec.Type = domain.EventType(typ)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: event rows: %w", err)
	}
	return records, nil
}
