package persistence

import (
	"context"
	"database/sql"

	"SwapLedger/internal/amount"
)

// PriceHistoryStore resolves historical USD prices from
// event_log.price_history. It satisfies the party.PriceOracle
// interface used for portfolio valuation.
type PriceHistoryStore struct {
	db *sql.DB
}

func NewPriceHistoryStore(db *sql.DB) *PriceHistoryStore {
	return &PriceHistoryStore{db: db}
}

// MaxTimePriceBy returns the latest recorded USD price for a currency
// at or before the given unix-milli time. ok=false means no price data
// exists that early.
func (s *PriceHistoryStore) MaxTimePriceBy(
	ctx context.Context,
	cur amount.Currency,
	atOrBefore int64,
) (float64, bool, error) {
	var price float64
	err := s.db.QueryRowContext(ctx, `
		SELECT price_usd
		FROM event_log.price_history
		WHERE currency = $1 AND time <= $2
		ORDER BY time DESC
		LIMIT 1
	`, cur.String(), atOrBefore).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}

// LatestPrice returns the most recent recorded USD price for a
// currency regardless of time.
func (s *PriceHistoryStore) LatestPrice(ctx context.Context, cur amount.Currency) (float64, bool, error) {
	var price float64
	err := s.db.QueryRowContext(ctx, `
		SELECT price_usd
		FROM event_log.price_history
		WHERE currency = $1
		ORDER BY time DESC
		LIMIT 1
	`, cur.String()).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return price, true, nil
}
