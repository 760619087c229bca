package postgres

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5/pgtype"
)

// Balances and payout values are 256-bit words stored in NUMERIC(78,0)
// columns, which hold the full uint256 range exactly.

// toNumeric converts a 256-bit value for a NUMERIC column. Nil encodes as zero.
func toNumeric(v *uint256.Int) pgtype.Numeric {
	if v == nil {
		return pgtype.Numeric{Int: new(big.Int), Valid: true}
	}
	return pgtype.Numeric{Int: v.ToBig(), Valid: true}
}

// toNumerics converts a payout vector for a NUMERIC[] column.
func toNumerics(vs []*uint256.Int) []pgtype.Numeric {
	if vs == nil {
		return nil
	}
	out := make([]pgtype.Numeric, len(vs))
	for i, v := range vs {
		out[i] = toNumeric(v)
	}
	return out
}

// fromNumeric converts a scanned NUMERIC back into a 256-bit value.
func fromNumeric(n pgtype.Numeric) (*uint256.Int, error) {
	if !n.Valid || n.Int == nil {
		return new(uint256.Int), nil
	}
	b := new(big.Int).Set(n.Int)
	switch {
	case n.Exp > 0:
		b.Mul(b, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n.Exp)), nil))
	case n.Exp < 0:
		return nil, fmt.Errorf("postgres: numeric %s has a fractional part", n.Int)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("postgres: numeric %s is negative", b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("postgres: numeric %s exceeds 256 bits", b)
	}
	return v, nil
}

// fromNumerics converts a scanned NUMERIC[] back into a payout vector.
func fromNumerics(ns []pgtype.Numeric) ([]*uint256.Int, error) {
	if ns == nil {
		return nil, nil
	}
	out := make([]*uint256.Int, len(ns))
	for i, n := range ns {
		v, err := fromNumeric(n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
