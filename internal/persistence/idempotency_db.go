package persistence

import (
	"context"
	"database/sql"
	"time"
)

// PostgresIdempotencyChecker implements second-tier deduplication
// against the persisted event log, behind the in-memory LRU.
type PostgresIdempotencyChecker struct {
	db *sql.DB
}

func NewPostgresIdempotencyChecker(db *sql.DB) *PostgresIdempotencyChecker {
	return &PostgresIdempotencyChecker{
		db: db,
	}
}

// IsDuplicate checks whether an event identifier already exists in the
// party's event log.
func (pic *PostgresIdempotencyChecker) IsDuplicate(partyKey, identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM event_log.party_events
        WHERE party_key = $1 AND identifier = $2
        LIMIT 1
    `

	var exists int
	err := pic.db.QueryRowContext(ctx, query, partyKey, identifier).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
