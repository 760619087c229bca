package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gogratta/pm-contracts/internal/domain"
)

// ConditionStore implements domain.ConditionStore using PostgreSQL.
type ConditionStore struct {
	pool *pgxpool.Pool
}

// NewConditionStore creates a new ConditionStore backed by the given connection pool.
func NewConditionStore(pool *pgxpool.Pool) *ConditionStore {
	return &ConditionStore{pool: pool}
}

const conditionCols = `id, oracle, question_id, outcome_slot_count,
	payout_numerators, payout_denominator, prepared_at, resolved_at`

// Upsert inserts or updates a single condition.
func (s *ConditionStore) Upsert(ctx context.Context, c domain.Condition) error {
	const query = `
		INSERT INTO conditions (
			id, oracle, question_id, outcome_slot_count,
			payout_numerators, payout_denominator,
			prepared_at, resolved_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			payout_numerators  = EXCLUDED.payout_numerators,
			payout_denominator = EXCLUDED.payout_denominator,
			resolved_at        = EXCLUDED.resolved_at,
			updated_at         = NOW()`

	_, err := s.pool.Exec(ctx, query,
		c.ID.Hex(), c.Oracle.Hex(), c.QuestionID.Hex(), int64(c.OutcomeSlotCount),
		toNumerics(c.PayoutNumerators), toNumeric(c.PayoutDenominator),
		c.PreparedAt, c.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert condition %s: %w", c.ID, err)
	}
	return nil
}

// Resolve records the payout vector reported for an already-stored condition.
func (s *ConditionStore) Resolve(ctx context.Context, id common.Hash, numerators []*uint256.Int, denominator *uint256.Int, result []byte, at time.Time) error {
	const query = `
		UPDATE conditions SET
			payout_numerators  = $2,
			payout_denominator = $3,
			result             = $4,
			resolved_at        = $5,
			updated_at         = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		id.Hex(), toNumerics(numerators), toNumeric(denominator), result, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: resolve condition %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanCondition scans a single condition row into a domain.Condition.
func scanCondition(row pgx.Row) (domain.Condition, error) {
	var (
		c           domain.Condition
		idHex       string
		oracleHex   string
		questionHex string
		slotCount   int64
		numerators  []pgtype.Numeric
		denominator pgtype.Numeric
	)
	err := row.Scan(
		&idHex, &oracleHex, &questionHex, &slotCount,
		&numerators, &denominator, &c.PreparedAt, &c.ResolvedAt,
	)
	if err != nil {
		return domain.Condition{}, err
	}
	c.ID = common.HexToHash(idHex)
	c.Oracle = common.HexToAddress(oracleHex)
	c.QuestionID = common.HexToHash(questionHex)
	c.OutcomeSlotCount = uint(slotCount)
	if c.PayoutNumerators, err = fromNumerics(numerators); err != nil {
		return domain.Condition{}, err
	}
	if c.PayoutDenominator, err = fromNumeric(denominator); err != nil {
		return domain.Condition{}, err
	}
	return c, nil
}

// GetByID retrieves a condition by its hash.
func (s *ConditionStore) GetByID(ctx context.Context, id common.Hash) (domain.Condition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE id = $1`, id.Hex())
	c, err := scanCondition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Condition{}, domain.ErrNotFound
		}
		return domain.Condition{}, fmt.Errorf("postgres: get condition %s: %w", id, err)
	}
	return c, nil
}

// GetByQuestion retrieves every condition prepared over a question, one per
// (oracle, outcome count) pairing.
func (s *ConditionStore) GetByQuestion(ctx context.Context, questionID common.Hash) ([]domain.Condition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conditionCols+` FROM conditions WHERE question_id = $1 ORDER BY prepared_at ASC`,
		questionID.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: get conditions by question %s: %w", questionID, err)
	}
	defer rows.Close()
	return scanConditionRows(rows)
}

// List returns conditions with pagination and optional time filtering on
// prepared_at.
func (s *ConditionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Condition, error) {
	query := `SELECT ` + conditionCols + ` FROM conditions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND prepared_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND prepared_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY prepared_at DESC"

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
		return nil, fmt.Errorf("postgres: list conditions: %w", err)
	}
	defer rows.Close()
	return scanConditionRows(rows)
}

func scanConditionRows(rows pgx.Rows) ([]domain.Condition, error) {
	var conditions []domain.Condition
	for rows.Next() {
		c, err := scanCondition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan condition: %w", err)
		}
		conditions = append(conditions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list conditions rows: %w", err)
	}
	return conditions, nil
}

// Count returns the total number of stored conditions.
func (s *ConditionStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM conditions").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count conditions: %w", err)
	}
	return count, nil
}
