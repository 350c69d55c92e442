// README: Pricing store backed by PostgreSQL.
package pricing

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// GetTiers returns the configured fee tiers ordered by distance band.
func (s *Store) GetTiers(ctx context.Context) ([]FeeTier, error) {
	rows, err := s.db.Query(ctx, `
		SELECT upto_km, fee_paise
		FROM delivery_fee_tiers
		ORDER BY CASE WHEN upto_km = 0 THEN 1 ELSE 0 END, upto_km`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []FeeTier
	for rows.Next() {
		var t FeeTier
		if err := rows.Scan(&t.UptoKm, &t.Fee); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}
