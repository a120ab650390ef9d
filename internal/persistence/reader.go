package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"SwapLedger/internal/event"
)

// EventLogReader loads persisted events for startup replay. The party
// state is rebuilt entirely by re-folding the event log in sequence
// order; there is no separate aggregate snapshot.
type EventLogReader struct {
	db *sql.DB
}

func NewEventLogReader(db *sql.DB) *EventLogReader {
	return &EventLogReader{db: db}
}

// LoadEnvelopesFrom loads decoded envelopes for one party starting at
// fromSequence, in apply order.
func (r *EventLogReader) LoadEnvelopesFrom(
	ctx context.Context,
	partyKey string,
	fromSequence int64,
	limit int,
) ([]event.Envelope, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload
		FROM event_log.party_events
		WHERE party_key = $1 AND sequence >= $2
		ORDER BY sequence ASC
		LIMIT $3
	`, partyKey, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var envelopes []event.Envelope
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		env, err := event.DecodeEnvelope(payload)
		if err != nil {
			return nil, fmt.Errorf("replay envelope: %w", err)
		}
		envelopes = append(envelopes, env)
	}

	return envelopes, rows.Err()
}

// LatestSequence returns the highest persisted sequence for a party.
func (r *EventLogReader) LatestSequence(ctx context.Context, partyKey string) (int64, error) {
	var seq sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.party_events WHERE party_key = $1
	`, partyKey).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil // Empty event log
	}
	return seq.Int64, nil
}
