package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// EventLogWriter writes observed events to Postgres using batch
// inserts. Multi-row INSERT with ON CONFLICT DO NOTHING keeps writes
// idempotent across redeliveries and restarts.
type EventLogWriter struct {
	db           *sql.DB
	batchSize    int
	flushTimeout time.Duration
}

// EventRow represents a row in event_log.party_events. Payload is the
// JSON-encoded event envelope.
type EventRow struct {
	Sequence   int64
	PartyKey   string
	EventKind  string
	Identifier string
	Payload    []byte
	ReceivedAt time.Time
}

// PriceRow represents a row in event_log.price_history.
type PriceRow struct {
	Currency string
	PriceUSD float64
	Time     int64
}

// execer abstracts *sql.DB and *sql.Tx so batches can run inside an
// enclosing transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewEventLogWriter(db *sql.DB, batchSize int, flushTimeout time.Duration) *EventLogWriter {
	return &EventLogWriter{
		db:           db,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
	}
}

// WriteEventBatch writes a batch of events to event_log.party_events
// using multi-row INSERT.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.party_events
		(sequence, party_key, event_kind, identifier, payload, received_at)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*6)

	for i, e := range events {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args,
			e.Sequence, e.PartyKey, e.EventKind, e.Identifier, e.Payload, e.ReceivedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (party_key, identifier) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WritePriceBatch writes a batch of oracle price observations to
// event_log.price_history.
func (w *EventLogWriter) WritePriceBatch(ctx context.Context, ex execer, prices []PriceRow) error {
	if len(prices) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.price_history (currency, price_usd, time)
		VALUES `

	values := make([]string, 0, len(prices))
	args := make([]interface{}, 0, len(prices)*3)

	for i, p := range prices {
		base := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, p.Currency, p.PriceUSD, p.Time)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (currency, time) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}
